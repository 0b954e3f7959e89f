package datastore

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/newtron-network/ifbridge/pkg/xpath"
)

// Tree is an ordered data tree built from instance paths. Children keep the
// order in which they were first set. A Tree is not safe for concurrent
// mutation.
type Tree struct {
	root node
}

type node struct {
	seg      xpath.Segment
	leaf     bool
	value    *string
	children []*node
}

// Leaf is one path/value pair of a Tree.
type Leaf struct {
	Path  string
	Value *string
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{}
}

// String returns a pointer to s, for use as a leaf value.
func String(s string) *string {
	return &s
}

// SetLeaf sets the leaf at path, creating intermediate containers and list
// entries. List entries get their key leaves automatically. A nil value
// creates a leaf with no value.
func (t *Tree) SetLeaf(path string, value *string) error {
	segs, err := xpath.Parse(path)
	if err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}

	n := &t.root
	for i, seg := range segs {
		child := n.child(seg)
		if child == nil {
			child = &node{seg: seg}
			for _, p := range seg.Predicates {
				v := p.Value
				child.children = append(child.children, &node{
					seg:   xpath.Segment{Name: p.Key},
					leaf:  true,
					value: &v,
				})
			}
			n.children = append(n.children, child)
		}
		if i == len(segs)-1 {
			if len(child.children) > 0 && !child.leaf {
				if len(seg.Predicates) == 0 {
					return fmt.Errorf("set %s: node has children", path)
				}
				// Setting a list entry itself only creates it.
				return nil
			}
			child.leaf = true
			child.value = value
		} else if child.leaf {
			return fmt.Errorf("set %s: %s is a leaf", path, seg.Name)
		}
		n = child
	}
	return nil
}

// Get returns the value of the leaf at path. ok is false when no such leaf
// exists.
func (t *Tree) Get(path string) (value *string, ok bool) {
	segs, err := xpath.Parse(path)
	if err != nil {
		return nil, false
	}
	n := &t.root
	for _, seg := range segs {
		if n = n.child(seg); n == nil {
			return nil, false
		}
	}
	if !n.leaf {
		return nil, false
	}
	return n.value, true
}

// Leaves returns every leaf in tree order.
func (t *Tree) Leaves() []Leaf {
	var out []Leaf
	var walk func(n *node, path []xpath.Segment)
	walk = func(n *node, path []xpath.Segment) {
		for _, c := range n.children {
			p := append(path[:len(path):len(path)], c.seg)
			if c.leaf {
				out = append(out, Leaf{Path: xpath.Format(p), Value: c.value})
				continue
			}
			walk(c, p)
		}
	}
	walk(&t.root, nil)
	return out
}

// Empty reports whether nothing has been set.
func (t *Tree) Empty() bool {
	return len(t.root.children) == 0
}

func (n *node) child(seg xpath.Segment) *node {
	for _, c := range n.children {
		if sameSegment(c.seg, seg) {
			return c
		}
	}
	return nil
}

func sameSegment(a, b xpath.Segment) bool {
	if a.Prefix != b.Prefix || a.Name != b.Name || len(a.Predicates) != len(b.Predicates) {
		return false
	}
	for i := range a.Predicates {
		if a.Predicates[i] != b.Predicates[i] {
			return false
		}
	}
	return true
}

// MarshalJSON renders the tree as RFC 7951 JSON: top-level members and
// members whose module differs from their parent are module-qualified, list
// entries are rendered as arrays and valueless leaves as [null].
func (t *Tree) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeObject(&buf, &t.root, ""); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeObject(buf *bytes.Buffer, n *node, module string) error {
	buf.WriteByte('{')
	written := make(map[string]bool)
	first := true
	for _, c := range n.children {
		name := memberName(c.seg, module)
		if written[name] {
			continue
		}
		written[name] = true

		if !first {
			buf.WriteByte(',')
		}
		first = false

		key, _ := json.Marshal(name)
		buf.Write(key)
		buf.WriteByte(':')

		childModule := module
		if c.seg.Prefix != "" {
			childModule = c.seg.Prefix
		}

		switch {
		case c.leaf:
			if c.value == nil {
				buf.WriteString("[null]")
				continue
			}
			v, err := json.Marshal(*c.value)
			if err != nil {
				return err
			}
			buf.Write(v)
		case len(c.seg.Predicates) > 0:
			buf.WriteByte('[')
			entries := 0
			for _, e := range n.children {
				if memberName(e.seg, module) != name {
					continue
				}
				if entries > 0 {
					buf.WriteByte(',')
				}
				entries++
				if err := writeObject(buf, e, childModule); err != nil {
					return err
				}
			}
			buf.WriteByte(']')
		default:
			if err := writeObject(buf, c, childModule); err != nil {
				return err
			}
		}
	}
	buf.WriteByte('}')
	return nil
}

func memberName(seg xpath.Segment, module string) string {
	if seg.Prefix != "" && seg.Prefix != module {
		return seg.Prefix + ":" + seg.Name
	}
	return seg.Name
}
