package store

import "strings"

// Separator joins path segments in [Path.String].
const Separator = "/"

// Path addresses a node from the root of a store.
type Path []string

// ParsePath splits a "/"-joined path. Empty segments are dropped.
func ParsePath(s string) Path {
	parts := strings.Split(s, Separator)
	p := make(Path, 0, len(parts))
	for _, part := range parts {
		if part != "" {
			p = append(p, part)
		}
	}
	return p
}

func (p Path) String() string { return strings.Join(p, Separator) }

func (p Path) Clone() Path {
	if p == nil {
		return nil
	}
	c := make(Path, len(p))
	copy(c, p)
	return c
}

// Join returns a new path with segs appended.
func (p Path) Join(segs ...string) Path {
	c := make(Path, 0, len(p)+len(segs))
	c = append(c, p...)
	return append(c, segs...)
}

func (p Path) Equal(o Path) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether q is an ancestor of (or equal to) p.
func (p Path) HasPrefix(q Path) bool {
	if len(q) > len(p) {
		return false
	}
	return p[:len(q)].Equal(q)
}
