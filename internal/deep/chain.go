package deep

import (
	kerrors "github.com/conneroisu/kreate/internal/errors"
)

// Chain resolves layers, given highest priority first, into one owned
// tree. For every key the highest-priority layer defining it wins, except
// that mappings are combined key by key under the same rule. Sequences
// are not concatenated. The result shares no memory with any layer, so
// mutating a layer afterwards leaves the chain untouched.
func Chain(layers ...Map) (Map, error) {
	result := Map{}
	for _, layer := range layers {
		if err := chainInto(result, layer, ""); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func chainInto(result, layer Map, prefix string) error {
	for key, value := range layer {
		path := join(prefix, key)
		existing, present := result[key]
		if !present || existing == nil {
			result[key] = Copy(value)
			continue
		}
		if value == nil {
			continue
		}

		have, haveMap := existing.(Map)
		incoming, incomingMap := value.(Map)
		switch {
		case haveMap && incomingMap:
			if err := chainInto(have, incoming, path); err != nil {
				return err
			}
		case haveMap != incomingMap:
			return kerrors.NewMergeConflict(path, existing, value)
		}
	}
	return nil
}
