// Package xpath splits schema-qualified instance paths into typed segments.
//
// An instance path is a sequence of segments separated by '/':
//
//	/goldstone-interfaces:interfaces/interface[name='eth0']/state/admin-status
//
// Each segment carries an optional namespace prefix, a node name (which may be
// the wildcard '*'), and zero or more list-key predicates. Parsing is a single
// left-to-right pass with no backtracking.
package xpath

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/newtron-network/ifbridge/pkg/util"
)

var segmentRE = regexp.MustCompile(`^(?:(?P<prefix>[-\w]+):)?(?P<name>[-\w\*]+)`)

// Predicate is one [key='value'] list-key condition
type Predicate struct {
	Key   string
	Value string
}

// Segment is one step of an instance path. Prefix is empty when the segment
// has no namespace qualifier.
type Segment struct {
	Prefix     string
	Name       string
	Predicates []Predicate
}

// ParseErrorKind classifies a parse failure
type ParseErrorKind int

const (
	// Empty is returned for an empty input path
	Empty ParseErrorKind = iota
	// MissingEquals is returned when a predicate's '[' has no following '='
	MissingEquals
	// UnterminatedPredicate is returned when no matching closing quote exists
	UnterminatedPredicate
	// InvalidSegment is returned when no node name can be matched
	InvalidSegment
)

func (k ParseErrorKind) String() string {
	switch k {
	case Empty:
		return "empty path"
	case MissingEquals:
		return "couldn't find '='"
	case UnterminatedPredicate:
		return "no closing quote"
	case InvalidSegment:
		return "invalid segment"
	}
	return "unknown"
}

// ParseError reports why an instance path could not be split
type ParseError struct {
	Kind   ParseErrorKind
	Path   string
	Offset int
}

func (e *ParseError) Error() string {
	if e.Kind == Empty {
		return "xpath: empty path"
	}
	return fmt.Sprintf("xpath: %s at offset %d in %q", e.Kind, e.Offset, e.Path)
}

func (e *ParseError) Unwrap() error {
	return util.ErrInvalidPath
}

// Parse splits path into its segments in source order. Duplicate predicate
// keys within a segment are preserved as encountered.
func Parse(path string) ([]Segment, error) {
	if path == "" {
		return nil, &ParseError{Kind: Empty}
	}

	var out []Segment
	i := 0
	for {
		if strings.HasPrefix(path[i:], "/") {
			i++
		}
		m := segmentRE.FindStringSubmatchIndex(path[i:])
		if m == nil {
			return nil, &ParseError{Kind: InvalidSegment, Path: path, Offset: i}
		}
		seg := Segment{Name: path[i+m[4] : i+m[5]]}
		if m[2] >= 0 {
			seg.Prefix = path[i+m[2] : i+m[3]]
		}
		i += m[1]

		for strings.HasPrefix(path[i:], "[") {
			i++ // '['
			j := strings.IndexByte(path[i:], '=')
			if j < 0 {
				return nil, &ParseError{Kind: MissingEquals, Path: path, Offset: i}
			}
			eq := i + j
			key := path[i:eq]
			if eq+1 >= len(path) {
				return nil, &ParseError{Kind: UnterminatedPredicate, Path: path, Offset: eq}
			}
			quote := path[eq+1]
			if quote != '\'' && quote != '"' {
				return nil, &ParseError{Kind: UnterminatedPredicate, Path: path, Offset: eq + 1}
			}
			i = eq + 2
			l := strings.IndexByte(path[i:], quote)
			if l < 0 {
				return nil, &ParseError{Kind: UnterminatedPredicate, Path: path, Offset: i}
			}
			seg.Predicates = append(seg.Predicates, Predicate{Key: key, Value: path[i : i+l]})
			i += l + 2 // closing quote and ']'
			if i > len(path) {
				i = len(path)
			}
		}

		out = append(out, seg)
		if i >= len(path) {
			break
		}
	}
	return out, nil
}

// Format renders segments back into an instance path. Predicate values are
// single-quoted unless they contain a single quote.
func Format(segs []Segment) string {
	var b strings.Builder
	for _, s := range segs {
		b.WriteByte('/')
		if s.Prefix != "" {
			b.WriteString(s.Prefix)
			b.WriteByte(':')
		}
		b.WriteString(s.Name)
		for _, p := range s.Predicates {
			q := "'"
			if strings.Contains(p.Value, "'") {
				q = `"`
			}
			b.WriteString("[" + p.Key + "=" + q + p.Value + q + "]")
		}
	}
	return b.String()
}

// Quotable reports whether v can be written as a predicate value. A value
// containing both quote characters has no quoting Parse can read back.
func Quotable(v string) bool {
	return !strings.ContainsRune(v, '\'') || !strings.ContainsRune(v, '"')
}

// ScopeError is returned by InterfaceName for a path that is not under the
// module's interface list.
type ScopeError struct {
	Path   string
	Module string
	Reason string
}

func (e *ScopeError) Error() string {
	return fmt.Sprintf("xpath: %q is not an interface path of %s: %s", e.Path, e.Module, e.Reason)
}

func (e *ScopeError) Unwrap() error {
	return util.ErrInvalidPath
}

// InterfaceName returns the interface name addressed by path.
//
// Preconditions: the first segment is (module, "interfaces") and, when a second
// segment exists, it is "interface" with exactly one predicate. Change
// subscriptions are scoped to the module so well-formed deliveries always
// satisfy this; a violation returns a *ScopeError.
//
// ok is false when path addresses the interfaces container itself.
func InterfaceName(path, module string) (name string, ok bool, err error) {
	segs, err := Parse(path)
	if err != nil {
		return "", false, err
	}
	if segs[0].Prefix != module || segs[0].Name != "interfaces" {
		return "", false, &ScopeError{Path: path, Module: module, Reason: "first segment must be " + module + ":interfaces"}
	}
	if len(segs) == 1 {
		return "", false, nil
	}
	if segs[1].Name != "interface" || len(segs[1].Predicates) != 1 {
		return "", false, &ScopeError{Path: path, Module: module, Reason: "second segment must be interface[name=...]"}
	}
	return segs[1].Predicates[0].Value, true, nil
}

// LastName returns the node name of the final segment of path.
func LastName(path string) (string, error) {
	segs, err := Parse(path)
	if err != nil {
		return "", err
	}
	return segs[len(segs)-1].Name, nil
}
