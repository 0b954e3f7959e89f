// Package schema holds the registry of management schema modules the bridge
// can serve: their top-level containers, notifications and known node paths.
//
// A Registry is read-only once loaded and safe for concurrent use.
package schema

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/newtron-network/ifbridge/pkg/util"
	"gopkg.in/yaml.v3"
)

//go:embed modules.yaml
var defaultModules []byte

// AddressNode is the schema node whose presence enables the IPv4 address and
// neighbor sub-trees.
const AddressNode = "interfaces/interface/ipv4"

// Module describes one schema module
type Module struct {
	Name          string   `yaml:"name"`
	Containers    []string `yaml:"containers"`
	Notifications []string `yaml:"notifications,omitempty"`
	Nodes         []string `yaml:"nodes"`
}

// Registry is a set of modules keyed by name
type Registry struct {
	Modules []*Module `yaml:"modules"`

	byName map[string]*Module
}

// Default returns the registry built into the binary
func Default() *Registry {
	r, err := Load(bytes.NewReader(defaultModules))
	if err != nil {
		panic(fmt.Sprintf("schema: embedded modules invalid: %v", err))
	}
	return r
}

// LoadFile reads a registry from a YAML file
func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses and validates a YAML registry
func Load(r io.Reader) (*Registry, error) {
	var reg Registry
	if err := yaml.NewDecoder(r).Decode(&reg); err != nil {
		return nil, fmt.Errorf("parsing schema YAML: %w", err)
	}
	if err := reg.validate(); err != nil {
		return nil, fmt.Errorf("validating schema: %w", err)
	}
	return &reg, nil
}

func (r *Registry) validate() error {
	if len(r.Modules) == 0 {
		return fmt.Errorf("at least one module is required")
	}
	r.byName = make(map[string]*Module, len(r.Modules))
	for i, m := range r.Modules {
		if m == nil || m.Name == "" {
			return fmt.Errorf("module %d: name is required", i)
		}
		if _, dup := r.byName[m.Name]; dup {
			return fmt.Errorf("module %s: defined more than once", m.Name)
		}
		for _, n := range m.Nodes {
			if n == "" || strings.HasPrefix(n, "/") || strings.ContainsAny(n, "[]") {
				return fmt.Errorf("module %s: node %q must be a relative path without keys", m.Name, n)
			}
		}
		r.byName[m.Name] = m
	}
	return nil
}

// Module returns the named module
func (r *Registry) Module(name string) (*Module, error) {
	m, ok := r.byName[name]
	if !ok {
		return nil, util.NewNotFoundError("schema module", name)
	}
	return m, nil
}

// TopContainer returns the instance path of the module's first top-level
// container, e.g. "/goldstone-interfaces:interfaces".
func (r *Registry) TopContainer(module string) (string, error) {
	m, err := r.Module(module)
	if err != nil {
		return "", err
	}
	if len(m.Containers) == 0 {
		return "", util.NewNotFoundError("top-level container of module", module)
	}
	return "/" + m.Name + ":" + m.Containers[0], nil
}

// NotificationPath returns the instance path of a module notification.
func (r *Registry) NotificationPath(module, name string) (string, error) {
	m, err := r.Module(module)
	if err != nil {
		return "", err
	}
	for _, n := range m.Notifications {
		if n == name {
			return "/" + m.Name + ":" + n, nil
		}
	}
	return "", util.NewNotFoundError("notification", module+":"+name)
}

// HasNode reports whether path names a node of the module or an ancestor of
// one. Namespace prefixes are ignored on both sides.
func (r *Registry) HasNode(module, path string) bool {
	m, ok := r.byName[module]
	if !ok {
		return false
	}
	want := stripPrefixes(path)
	for _, n := range m.Nodes {
		have := stripPrefixes(n)
		if have == want || strings.HasPrefix(have, want+"/") {
			return true
		}
	}
	return false
}

// AddressSupport reports whether the module carries the IPv4 container.
func (r *Registry) AddressSupport(module string) bool {
	return r.HasNode(module, AddressNode)
}

func stripPrefixes(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, p := range parts {
		if j := strings.IndexByte(p, ':'); j >= 0 {
			parts[i] = p[j+1:]
		}
	}
	return strings.Join(parts, "/")
}
