package store

import (
	"sort"
)

// LeafSchema declares a leaf: its default value, merge strategy and whether it
// is recorded in the emitted timeseries.
type LeafSchema struct {
	Default any
	Updater Updater
	Emit    bool
}

// Leaf is a declared value slot.
type Leaf struct {
	Value   any
	Default any
	Updater Updater
	Emit    bool
}

// Node is either an interior node (children != nil) or a leaf.
type Node struct {
	children map[string]*Node
	leaf     *Leaf
}

func (n *Node) IsLeaf() bool { return n.leaf != nil }

// Delta is an update addressed to an absolute leaf path.
type Delta struct {
	Path  Path
	Value any
}

// Store is the hierarchical state shared by a composite.
type Store struct {
	root *Node
}

func New() *Store {
	return &Store{root: &Node{children: make(map[string]*Node)}}
}

// Declare creates the leaf at p, creating interior nodes along the way. A
// second declaration of the same leaf is accepted only when both use the same
// updater; the first default wins and emit flags are OR-ed.
func (s *Store) Declare(p Path, ls LeafSchema) error {
	if len(p) == 0 {
		return schemaErr(p, "cannot declare the root as a leaf")
	}
	if ls.Updater.IsZero() {
		ls.Updater = Set
	}
	n := s.root
	for i, seg := range p[:len(p)-1] {
		child, ok := n.children[seg]
		if !ok {
			child = &Node{children: make(map[string]*Node)}
			n.children[seg] = child
		}
		if child.IsLeaf() {
			return schemaErr(p, "segment %q is a leaf", p[:i+1].String())
		}
		n = child
	}
	last := p[len(p)-1]
	existing, ok := n.children[last]
	if !ok {
		n.children[last] = &Node{leaf: &Leaf{
			Value:   Copy(ls.Default),
			Default: Copy(ls.Default),
			Updater: ls.Updater,
			Emit:    ls.Emit,
		}}
		return nil
	}
	if !existing.IsLeaf() {
		return schemaErr(p, "path is an interior node")
	}
	if existing.leaf.Updater.Name != ls.Updater.Name {
		return &ConflictError{Path: p.Clone(), Existing: existing.leaf.Updater.Name, Incoming: ls.Updater.Name}
	}
	existing.leaf.Emit = existing.leaf.Emit || ls.Emit
	return nil
}

func (s *Store) lookup(p Path) (*Node, error) {
	n := s.root
	for i, seg := range p {
		if n.IsLeaf() {
			return nil, schemaErr(p, "segment %q is a leaf", p[:i].String())
		}
		child, ok := n.children[seg]
		if !ok {
			return nil, schemaErr(p, "undeclared path")
		}
		n = child
	}
	return n, nil
}

// Has reports whether p addresses a declared node.
func (s *Store) Has(p Path) bool {
	_, err := s.lookup(p)
	return err == nil
}

// Leaf returns a copy of the leaf declared at p.
func (s *Store) Leaf(p Path) (Leaf, error) {
	n, err := s.lookup(p)
	if err != nil {
		return Leaf{}, err
	}
	if !n.IsLeaf() {
		return Leaf{}, schemaErr(p, "path is an interior node")
	}
	l := *n.leaf
	l.Value = Copy(l.Value)
	l.Default = Copy(l.Default)
	return l, nil
}

// Get returns a copy of the value at p. Interior nodes are returned as nested
// map[string]any.
func (s *Store) Get(p Path) (any, error) {
	n, err := s.lookup(p)
	if err != nil {
		return nil, err
	}
	return n.value(), nil
}

func (n *Node) value() any {
	if n.IsLeaf() {
		return Copy(n.leaf.Value)
	}
	out := make(map[string]any, len(n.children))
	for k, c := range n.children {
		out[k] = c.value()
	}
	return out
}

// Set overwrites a leaf value without consulting its updater. It is meant for
// seeding initial state, never for run-time updates.
func (s *Store) Set(p Path, value any) error {
	n, err := s.lookup(p)
	if err != nil {
		return err
	}
	if !n.IsLeaf() {
		return schemaErr(p, "path is an interior node")
	}
	n.leaf.Value = Copy(value)
	return nil
}

// SetTree seeds every declared leaf below p from a nested map. Keys that do
// not address declared nodes fail with a SchemaError.
func (s *Store) SetTree(p Path, tree map[string]any) error {
	for k, v := range tree {
		child := p.Join(k)
		n, err := s.lookup(child)
		if err != nil {
			return err
		}
		if sub, ok := v.(map[string]any); ok && !n.IsLeaf() {
			if err := s.SetTree(child, sub); err != nil {
				return err
			}
			continue
		}
		if err := s.Set(child, v); err != nil {
			return err
		}
	}
	return nil
}

// Apply integrates delta into the leaf at p with the leaf's updater.
func (s *Store) Apply(p Path, delta any) error {
	n, err := s.lookup(p)
	if err != nil {
		return err
	}
	if !n.IsLeaf() {
		return schemaErr(p, "cannot apply to an interior node")
	}
	v, err := n.leaf.Updater.Reduce(n.leaf.Value, delta)
	if err != nil {
		return schemaErr(p, "%s: %v", n.leaf.Updater.Name, err)
	}
	n.leaf.Value = v
	return nil
}

// ApplyAll applies deltas in order and stops at the first failure.
func (s *Store) ApplyAll(deltas []Delta) error {
	for _, d := range deltas {
		if err := s.Apply(d.Path, d.Value); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot returns a deep copy of the whole tree as nested maps.
func (s *Store) Snapshot() map[string]any {
	return s.root.value().(map[string]any)
}

// LeafEntry pairs a leaf with its absolute path.
type LeafEntry struct {
	Path Path
	Leaf Leaf
}

// Leaves walks every leaf in lexical path order.
func (s *Store) Leaves() []LeafEntry {
	var out []LeafEntry
	var walk func(p Path, n *Node)
	walk = func(p Path, n *Node) {
		if n.IsLeaf() {
			l := *n.leaf
			l.Value = Copy(l.Value)
			out = append(out, LeafEntry{Path: p.Clone(), Leaf: l})
			return
		}
		keys := make([]string, 0, len(n.children))
		for k := range n.children {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			walk(p.Join(k), n.children[k])
		}
	}
	walk(nil, s.root)
	return out
}

// Emitted returns the values of every leaf marked emit, keyed by path string.
func (s *Store) Emitted() map[string]any {
	out := make(map[string]any)
	for _, e := range s.Leaves() {
		if e.Leaf.Emit {
			out[e.Path.String()] = e.Leaf.Value
		}
	}
	return out
}

// Clone returns an independent copy of the store, schema included.
func (s *Store) Clone() *Store {
	return &Store{root: s.root.clone()}
}

func (n *Node) clone() *Node {
	if n.IsLeaf() {
		l := *n.leaf
		l.Value = Copy(l.Value)
		l.Default = Copy(l.Default)
		return &Node{leaf: &l}
	}
	c := &Node{children: make(map[string]*Node, len(n.children))}
	for k, child := range n.children {
		c.children[k] = child.clone()
	}
	return c
}
