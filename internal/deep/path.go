package deep

import (
	"fmt"
	"strconv"
	"strings"

	kerrors "github.com/conneroisu/kreate/internal/errors"
)

// segment is one step of a dotted path: a mapping key or, for "[n]", a
// sequence index.
type segment struct {
	key   string
	index int
	isIdx bool
}

func (s segment) String() string {
	if s.isIdx {
		return fmt.Sprintf("[%d]", s.index)
	}
	return s.key
}

func splitPath(path string) []segment {
	if path == "" {
		return nil
	}
	parts := strings.Split(path, ".")
	segs := make([]segment, 0, len(parts))
	for _, p := range parts {
		if len(p) > 2 && p[0] == '[' && p[len(p)-1] == ']' {
			if n, err := strconv.Atoi(p[1 : len(p)-1]); err == nil && n >= 0 {
				segs = append(segs, segment{index: n, isIdx: true})
				continue
			}
		}
		segs = append(segs, segment{key: p})
	}
	return segs
}

// Lookup resolves path inside obj. The empty path resolves to obj.
func Lookup(obj any, path string) (any, bool) {
	cur := obj
	for _, seg := range splitPath(path) {
		if seg.isIdx {
			seq, ok := cur.([]any)
			if !ok || seg.index >= len(seq) {
				return nil, false
			}
			cur = seq[seg.index]
			continue
		}
		m, ok := cur.(Map)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg.key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Get resolves path inside obj, returning def when it is absent.
func Get(obj any, path string, def any) any {
	if v, ok := Lookup(obj, path); ok {
		return v
	}
	return def
}

// Require resolves a mandatory path, failing with MissingPath.
func Require(obj any, path string) (any, error) {
	if v, ok := Lookup(obj, path); ok {
		return v, nil
	}
	return nil, kerrors.NewMissingPath(path)
}

// GetMap resolves path to a mapping; anything else yields nil.
func GetMap(obj any, path string) Map {
	m, _ := Get(obj, path, nil).(Map)
	return m
}

// GetString resolves path to a string, formatting scalars.
func GetString(obj any, path string, def string) string {
	switch v := Get(obj, path, nil).(type) {
	case nil:
		return def
	case string:
		return v
	case Map, []any:
		return def
	default:
		return fmt.Sprint(v)
	}
}

// GetList resolves path to a sequence. A single scalar is promoted to a
// one-element sequence.
func GetList(obj any, path string) []any {
	switch v := Get(obj, path, nil).(type) {
	case nil:
		return nil
	case []any:
		return v
	default:
		return []any{v}
	}
}

// Set stores value at path, creating intermediate mappings. A "[n]"
// segment on an absent key creates a sequence; n may be at most the
// current sequence length, in which case the sequence grows by one.
func Set(obj Map, path string, value any) error {
	segs := splitPath(path)
	if len(segs) == 0 {
		return kerrors.NewMissingPath(path)
	}
	if segs[0].isIdx {
		return kerrors.NewMergeConflict(path, obj, []any{})
	}
	_, err := setIn(obj, segs, value, "")
	return err
}

func setIn(node any, segs []segment, value any, prefix string) (any, error) {
	seg := segs[0]
	path := joinSeg(prefix, seg)
	last := len(segs) == 1

	if seg.isIdx {
		var seq []any
		switch t := node.(type) {
		case nil:
			seq = []any{}
		case []any:
			seq = t
		default:
			return node, kerrors.NewMergeConflict(path, node, []any{})
		}
		switch {
		case seg.index == len(seq):
			seq = append(seq, nil)
		case seg.index > len(seq):
			return node, kerrors.NewMissingPath(path)
		}
		if last {
			seq[seg.index] = value
			return seq, nil
		}
		child, err := setIn(seq[seg.index], segs[1:], value, path)
		if err != nil {
			return node, err
		}
		seq[seg.index] = child
		return seq, nil
	}

	var m Map
	switch t := node.(type) {
	case nil:
		m = Map{}
	case Map:
		m = t
	default:
		return node, kerrors.NewMergeConflict(path, node, Map{})
	}
	if last {
		m[seg.key] = value
		return m, nil
	}
	child, err := setIn(m[seg.key], segs[1:], value, path)
	if err != nil {
		return node, err
	}
	m[seg.key] = child
	return m, nil
}

// Delete removes the value at path and reports whether anything was
// removed. A sequence holding a single element is stepped through when
// the path continues with a key, so "spec.containers.image" reaches the
// only container.
func Delete(obj Map, path string) bool {
	segs := splitPath(path)
	if len(segs) == 0 {
		return false
	}
	_, removed := deleteIn(obj, segs)
	return removed
}

func deleteIn(node any, segs []segment) (any, bool) {
	seg := segs[0]
	last := len(segs) == 1

	if !seg.isIdx {
		if seq, ok := node.([]any); ok && len(seq) == 1 {
			child, removed := deleteIn(seq[0], segs)
			if removed {
				seq[0] = child
			}
			return seq, removed
		}
		m, ok := node.(Map)
		if !ok {
			return node, false
		}
		child, ok := m[seg.key]
		if !ok {
			return node, false
		}
		if last {
			delete(m, seg.key)
			return m, true
		}
		newChild, removed := deleteIn(child, segs[1:])
		if removed {
			m[seg.key] = newChild
		}
		return m, removed
	}

	seq, ok := node.([]any)
	if !ok || seg.index >= len(seq) {
		return node, false
	}
	if last {
		out := make([]any, 0, len(seq)-1)
		out = append(out, seq[:seg.index]...)
		out = append(out, seq[seg.index+1:]...)
		return out, true
	}
	newChild, removed := deleteIn(seq[seg.index], segs[1:])
	if removed {
		seq[seg.index] = newChild
	}
	return seq, removed
}

func joinSeg(prefix string, seg segment) string {
	return join(prefix, seg.String())
}
