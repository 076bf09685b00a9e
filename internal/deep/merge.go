// Package deep implements the layered value store that all konfig data
// flows through: deep merging of YAML-shaped trees, an eager fallback chain
// over ordered layers, and dotted-path access.
//
// Trees are built from Map, []any and scalars. Strings count as scalars,
// never as sequences. A key holding a mapping in one layer must hold a
// mapping in every layer that defines it; Merge and Chain report a
// MergeConflict otherwise.
package deep

import (
	"fmt"

	kerrors "github.com/conneroisu/kreate/internal/errors"
)

// Map is a decoded YAML mapping.
type Map = map[string]any

// NoOverwriteKey marks a layer as non-destructive defaults: when its value
// is true at the top level of a merge source, existing scalars are kept.
const NoOverwriteKey = "_no_overwrite"

// Merge merges source into target. Mappings recurse, sequences are
// appended to and scalars replace existing values only when overwrite is
// set or the key is absent.
func Merge(target, source Map, overwrite bool) error {
	m := merger{overwrite: overwrite}
	return m.merge(target, source, "")
}

// MergeAt is Merge with sequence items inserted at index of the existing
// sequence instead of appended. Index is clamped to the sequence length; a
// negative index counts from the end, -1 being after the last item.
func MergeAt(target, source Map, overwrite bool, index int) error {
	m := merger{overwrite: overwrite, index: index, insert: true}
	return m.merge(target, source, "")
}

type merger struct {
	overwrite bool
	index     int
	insert    bool
}

func (m merger) merge(target, source Map, prefix string) error {
	if target == nil || source == nil {
		return nil
	}
	if prefix == "" {
		if flag, ok := source[NoOverwriteKey].(bool); ok && flag {
			m.overwrite = false
		}
	}

	for key, value := range source {
		if prefix == "" && key == NoOverwriteKey {
			continue
		}
		path := join(prefix, key)
		existing, present := target[key]
		if existing == nil {
			present = false
		}

		switch v := value.(type) {
		case Map:
			if !present {
				sub := Map{}
				if err := m.merge(sub, v, path); err != nil {
					return err
				}
				target[key] = sub
				continue
			}
			sub, ok := existing.(Map)
			if !ok {
				return kerrors.NewMergeConflict(path, existing, value)
			}
			if err := m.merge(sub, v, path); err != nil {
				return err
			}
		case []any:
			if !present {
				target[key] = Copy(v)
				continue
			}
			seq, ok := existing.([]any)
			if !ok {
				return kerrors.NewMergeConflict(path, existing, value)
			}
			target[key] = m.extend(seq, Copy(v).([]any))
		case nil:
			// A key without a value defines nothing over an existing one.
			if !present {
				target[key] = nil
			}
		default:
			if present {
				switch existing.(type) {
				case Map, []any:
					return kerrors.NewMergeConflict(path, existing, value)
				}
			}
			if m.overwrite || !present {
				target[key] = value
			}
		}
	}
	return nil
}

func (m merger) extend(seq, items []any) []any {
	pos := len(seq)
	if m.insert {
		if m.index >= 0 {
			pos = min(m.index, len(seq))
		} else {
			pos = max(len(seq)+m.index+1, 0)
		}
	}
	out := make([]any, 0, len(seq)+len(items))
	out = append(out, seq[:pos]...)
	out = append(out, items...)
	out = append(out, seq[pos:]...)
	return out
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// Copy returns a deep copy of v. Maps and sequences are duplicated,
// scalars are returned as is.
func Copy(v any) any {
	switch t := v.(type) {
	case Map:
		out := make(Map, len(t))
		for k, val := range t {
			out[k] = Copy(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Copy(val)
		}
		return out
	default:
		return v
	}
}

// CopyMap is Copy for a Map; a nil map yields an empty one.
func CopyMap(m Map) Map {
	if m == nil {
		return Map{}
	}
	return Copy(m).(Map)
}

// Normalize converts the map[any]any and typed slices some decoders
// produce into Map and []any, recursively.
func Normalize(v any) any {
	switch t := v.(type) {
	case Map:
		for k, val := range t {
			t[k] = Normalize(val)
		}
		return t
	case map[any]any:
		out := make(Map, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = Normalize(val)
		}
		return out
	case []any:
		for i, val := range t {
			t[i] = Normalize(val)
		}
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case []Map:
		out := make([]any, len(t))
		for i, m := range t {
			out[i] = Normalize(m)
		}
		return out
	default:
		return v
	}
}
