// Package topology maps the logical ports of a process onto absolute paths in
// the shared store.
//
// Two processes whose topologies point at the same path are coupled: they
// read and write the same leaves. Processes wired to disjoint paths never
// observe each other, whatever their port names.
package topology

import (
	"errors"
	"fmt"
	"sort"

	"github.com/san-kum/composim/internal/process"
	"github.com/san-kum/composim/internal/schema"
	"github.com/san-kum/composim/internal/store"
)

// Topology maps one process's port names to absolute store paths. A port
// mapped to a nil path is detached: it reads its schema default and its
// updates are dropped.
type Topology map[string]store.Path

// Wiring holds the topology of every process in a composite, keyed by
// process id.
type Wiring map[string]Topology

// Identity wires every port of s to a top-level node of the same name.
func Identity(s schema.Schema) Topology {
	t := make(Topology, len(s))
	for name := range s {
		t[name] = store.Path{name}
	}
	return t
}

// ErrTopology is matched by every [TopologyError].
var ErrTopology = errors.New("topology: invalid wiring")

// TopologyError reports a build-time wiring failure.
type TopologyError struct {
	Process string
	Port    string
	Reason  string
	Err     error
}

func (e *TopologyError) Error() string {
	msg := fmt.Sprintf("topology: process %q", e.Process)
	if e.Port != "" {
		msg += fmt.Sprintf(" port %q", e.Port)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TopologyError) Unwrap() error { return e.Err }

func (e *TopologyError) Is(target error) bool { return target == ErrTopology }

// Validate checks that t covers every port of s and names no unknown port.
func Validate(id string, s schema.Schema, t Topology) error {
	if err := s.Validate(); err != nil {
		return &TopologyError{Process: id, Reason: "invalid schema", Err: err}
	}
	for _, name := range s.Names() {
		if _, ok := t[name]; !ok {
			return &TopologyError{Process: id, Port: name, Reason: "port has no topology entry"}
		}
	}
	ports := make([]string, 0, len(t))
	for port := range t {
		ports = append(ports, port)
	}
	sort.Strings(ports)
	for _, port := range ports {
		if _, ok := s[port]; !ok {
			return &TopologyError{Process: id, Port: port, Reason: "topology names a port the schema does not declare"}
		}
	}
	return nil
}

// Detached reports whether port is explicitly disconnected.
func (t Topology) Detached(port string) bool {
	p, ok := t[port]
	return ok && p == nil
}

// Resolve maps a port and a member path inside it to an absolute path.
func (t Topology) Resolve(port string, rel store.Path) (store.Path, bool) {
	base, ok := t[port]
	if !ok || base == nil {
		return nil, false
	}
	return base.Join(rel...), true
}

// Declare creates the store leaves for every connected port of s. Shape and
// updater conflicts with leaves other processes already declared are
// reported as TopologyError.
func Declare(st *store.Store, id string, s schema.Schema, t Topology) error {
	for _, l := range s.Leaves() {
		abs, ok := t.Resolve(l.Port, l.Rel)
		if !ok {
			continue
		}
		if err := st.Declare(abs, l.Spec); err != nil {
			var ce *store.ConflictError
			if errors.As(err, &ce) {
				return &TopologyError{Process: id, Port: l.Port, Reason: fmt.Sprintf("conflicting updaters on shared path %s", abs), Err: err}
			}
			return &TopologyError{Process: id, Port: l.Port, Reason: fmt.Sprintf("shape mismatch at %s", abs), Err: err}
		}
	}
	return nil
}

// View projects the store onto the ports of one process. Only declared
// members are included, so two processes sharing a group node see only the
// members they declared.
func View(st *store.Store, s schema.Schema, t Topology) (process.State, error) {
	view := make(process.State, len(s))
	for name, port := range s {
		v, err := project(st, port, t, name, nil)
		if err != nil {
			return nil, err
		}
		view[name] = v
	}
	return view, nil
}

func project(st *store.Store, p schema.Port, t Topology, name string, rel store.Path) (any, error) {
	if p.Kind == schema.KindLeaf {
		abs, ok := t.Resolve(name, rel)
		if !ok {
			return store.Copy(p.Spec.Default), nil
		}
		return st.Get(abs)
	}
	out := make(map[string]any, len(p.Members))
	for k, m := range p.Members {
		v, err := project(st, m, t, name, rel.Join(k))
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

// Route converts a port-keyed update into deltas on absolute paths. Deltas
// are ordered by port then member path. Ports or members the schema does not
// declare fail with a store.SchemaError; updates to detached ports are
// dropped.
func Route(s schema.Schema, t Topology, u process.Update) ([]store.Delta, error) {
	ports := make([]string, 0, len(u))
	for port := range u {
		ports = append(ports, port)
	}
	sort.Strings(ports)

	var deltas []store.Delta
	for _, port := range ports {
		p, ok := s[port]
		if !ok {
			return nil, &store.SchemaError{Path: store.Path{port}, Reason: "update names an undeclared port"}
		}
		var err error
		deltas, err = route(deltas, p, t, port, nil, u[port])
		if err != nil {
			return nil, err
		}
	}
	return deltas, nil
}

func route(acc []store.Delta, p schema.Port, t Topology, port string, rel store.Path, v any) ([]store.Delta, error) {
	if p.Kind == schema.KindLeaf {
		abs, ok := t.Resolve(port, rel)
		if !ok {
			return acc, nil
		}
		return append(acc, store.Delta{Path: abs, Value: v}), nil
	}

	members, err := asMembers(v)
	if err != nil {
		return nil, &store.SchemaError{Path: store.Path{port}.Join(rel...), Reason: err.Error()}
	}
	keys := make([]string, 0, len(members))
	for k := range members {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		m, ok := p.Members[k]
		if !ok {
			return nil, &store.SchemaError{Path: store.Path{port}.Join(rel.Join(k)...), Reason: "update names an undeclared member"}
		}
		acc, err = route(acc, m, t, port, rel.Join(k), members[k])
		if err != nil {
			return nil, err
		}
	}
	return acc, nil
}

func asMembers(v any) (map[string]any, error) {
	switch m := v.(type) {
	case map[string]any:
		return m, nil
	case map[string]float64:
		out := make(map[string]any, len(m))
		for k, f := range m {
			out[k] = f
		}
		return out, nil
	}
	return nil, fmt.Errorf("group port update must be a map, got %T", v)
}
