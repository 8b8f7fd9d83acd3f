// Package schema describes the ports a process reads and writes.
//
// A [Port] is either a leaf (a single value with a default, an updater and an
// emit flag) or a group of named member ports. Schemas are built once when a
// process is constructed and validated structurally at composite build time.
package schema

import (
	"fmt"
	"sort"

	"github.com/san-kum/composim/internal/store"
)

type Kind int

const (
	KindLeaf Kind = iota
	KindGroup
)

func (k Kind) String() string {
	if k == KindGroup {
		return "group"
	}
	return "leaf"
}

// Port is a tagged variant: Spec is meaningful for leaves, Members for groups.
type Port struct {
	Kind    Kind
	Spec    store.LeafSchema
	Members map[string]Port
}

// Schema maps port names to their declarations.
type Schema map[string]Port

func Leaf(def any, updater store.Updater, emit bool) Port {
	return Port{Kind: KindLeaf, Spec: store.LeafSchema{Default: def, Updater: updater, Emit: emit}}
}

func Group(members map[string]Port) Port {
	if members == nil {
		members = map[string]Port{}
	}
	return Port{Kind: KindGroup, Members: members}
}

// Uniform declares one leaf member per key, all sharing spec.
func Uniform(keys []string, spec store.LeafSchema) Port {
	members := make(map[string]Port, len(keys))
	for _, k := range keys {
		members[k] = Port{Kind: KindLeaf, Spec: spec}
	}
	return Group(members)
}

// UniformValues is Uniform with a per-key default.
func UniformValues(defaults map[string]float64, updater store.Updater, emit bool) Port {
	members := make(map[string]Port, len(defaults))
	for k, v := range defaults {
		members[k] = Leaf(v, updater, emit)
	}
	return Group(members)
}

// Names returns the port names in sorted order.
func (s Schema) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Clone deep copies s, including leaf defaults.
func (s Schema) Clone() Schema {
	if s == nil {
		return nil
	}
	out := make(Schema, len(s))
	for name, p := range s {
		out[name] = p.clone()
	}
	return out
}

func (p Port) clone() Port {
	out := Port{Kind: p.Kind, Spec: p.Spec}
	out.Spec.Default = store.Copy(p.Spec.Default)
	if p.Members != nil {
		out.Members = make(map[string]Port, len(p.Members))
		for k, m := range p.Members {
			out.Members[k] = m.clone()
		}
	}
	return out
}

// Validate checks the schema structure: non-empty names, an updater on every
// leaf, and a known kind on every port.
func (s Schema) Validate() error {
	for _, name := range s.Names() {
		if err := s[name].validate(store.Path{name}); err != nil {
			return err
		}
	}
	return nil
}

func (p Port) validate(at store.Path) error {
	if at[len(at)-1] == "" {
		return fmt.Errorf("schema: empty port name under %q", at[:len(at)-1])
	}
	switch p.Kind {
	case KindLeaf:
		if p.Spec.Updater.IsZero() {
			return fmt.Errorf("schema: port %q has no updater", at)
		}
		if p.Spec.Updater.Reduce == nil {
			return fmt.Errorf("schema: port %q updater %q has no reduce function", at, p.Spec.Updater.Name)
		}
	case KindGroup:
		for name, m := range p.Members {
			if err := m.validate(at.Join(name)); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("schema: port %q has unknown kind %d", at, p.Kind)
	}
	return nil
}

// LeafEntry is a leaf port addressed relative to its process: Port is the
// top-level port name and Rel the member path inside it (empty for leaf ports).
type LeafEntry struct {
	Port string
	Rel  store.Path
	Spec store.LeafSchema
}

// Leaves flattens the schema into its leaves, sorted by port then member path.
func (s Schema) Leaves() []LeafEntry {
	var out []LeafEntry
	for _, name := range s.Names() {
		s[name].walk(nil, func(rel store.Path, spec store.LeafSchema) {
			out = append(out, LeafEntry{Port: name, Rel: rel, Spec: spec})
		})
	}
	return out
}

func (p Port) walk(rel store.Path, fn func(store.Path, store.LeafSchema)) {
	if p.Kind == KindLeaf {
		fn(rel, p.Spec)
		return
	}
	keys := make([]string, 0, len(p.Members))
	for k := range p.Members {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		p.Members[k].walk(rel.Join(k), fn)
	}
}

// Lookup resolves a member path inside port name.
func (s Schema) Lookup(name string, rel store.Path) (Port, bool) {
	p, ok := s[name]
	if !ok {
		return Port{}, false
	}
	for _, seg := range rel {
		if p.Kind != KindGroup {
			return Port{}, false
		}
		p, ok = p.Members[seg]
		if !ok {
			return Port{}, false
		}
	}
	return p, true
}

// Defaults returns the schema defaults shaped like a process state.
func (s Schema) Defaults() map[string]any {
	out := make(map[string]any, len(s))
	for name, p := range s {
		out[name] = p.defaults()
	}
	return out
}

func (p Port) defaults() any {
	if p.Kind == KindLeaf {
		return store.Copy(p.Spec.Default)
	}
	out := make(map[string]any, len(p.Members))
	for k, m := range p.Members {
		out[k] = m.defaults()
	}
	return out
}
