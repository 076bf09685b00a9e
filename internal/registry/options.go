package registry

import (
	"fmt"
	"sort"

	"github.com/conneroisu/kreate/internal/deep"
	kerrors "github.com/conneroisu/kreate/internal/errors"
)

// ArgShape is the argument form an option accepts.
type ArgShape int

const (
	ArgNone ArgShape = iota
	ArgPositional
	ArgKeyword
	ArgScalar
)

func (s ArgShape) String() string {
	switch s {
	case ArgNone:
		return "no argument"
	case ArgPositional:
		return "a list"
	case ArgKeyword:
		return "a mapping"
	case ArgScalar:
		return "a scalar"
	}
	return "unknown"
}

// OptionArgs carries the argument of one option call in its declared shape.
type OptionArgs struct {
	Positional []any
	Keyword    deep.Map
	Scalar     any
}

// OptionFunc edits one rendered document.
type OptionFunc func(k *Komponent, doc deep.Map, args OptionArgs) error

// Option is one entry of an options command table.
type Option struct {
	Shape ArgShape
	Run   OptionFunc
}

type optionCall struct {
	name   string
	option Option
	args   OptionArgs
}

var resourceOptions = map[string]Option{
	"label":        {Shape: ArgKeyword, Run: setEach("metadata.labels")},
	"annotation":   {Shape: ArgKeyword, Run: setEach("metadata.annotations")},
	"namespace":    {Shape: ArgScalar, Run: setScalar("metadata.namespace")},
	"no_namespace": {Shape: ArgNone, Run: removePaths("metadata.namespace")},
	"remove":       {Shape: ArgPositional, Run: removeArgs},
}

var workloadOptions = extend(resourceOptions, map[string]Option{
	"replicas": {Shape: ArgScalar, Run: setScalar("spec.replicas")},
})

// OptionsFor returns the options command table of a variant. Text files
// accept no options.
func OptionsFor(v Variant) map[string]Option {
	switch v {
	case VariantResource, VariantPatch, VariantMultiDocument:
		return resourceOptions
	case VariantWorkload:
		return workloadOptions
	}
	return nil
}

func extend(base, more map[string]Option) map[string]Option {
	out := make(map[string]Option, len(base)+len(more))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range more {
		out[k] = v
	}
	return out
}

// parseOptions validates an options list against the table of v. Entries
// are either a bare option name or a single-key mapping of name to
// argument; the argument's form must match the declared shape.
func parseOptions(id string, v Variant, raw []any) ([]optionCall, error) {
	table := OptionsFor(v)
	calls := make([]optionCall, 0, len(raw))
	for _, entry := range raw {
		var (
			name string
			arg  any
		)
		switch e := entry.(type) {
		case string:
			name = e
		case deep.Map:
			if len(e) != 1 {
				return nil, kerrors.NewInvalidOption(id, fmt.Sprint(sortedKeys(e)), "entry must have exactly one key")
			}
			for k, val := range e {
				name, arg = k, val
			}
		default:
			return nil, kerrors.NewInvalidOption(id, fmt.Sprint(entry), "entry must be a name or a mapping")
		}

		opt, ok := table[name]
		if !ok {
			return nil, kerrors.NewInvalidOption(id, name, fmt.Sprintf("unknown option for %s komponents", v))
		}
		args, shape := classify(arg)
		if shape != opt.Shape {
			return nil, kerrors.NewInvalidOption(id, name, fmt.Sprintf("expects %s, got %s", opt.Shape, shape))
		}
		calls = append(calls, optionCall{name: name, option: opt, args: args})
	}
	return calls, nil
}

func classify(arg any) (OptionArgs, ArgShape) {
	switch a := arg.(type) {
	case nil:
		return OptionArgs{}, ArgNone
	case []any:
		return OptionArgs{Positional: a}, ArgPositional
	case deep.Map:
		return OptionArgs{Keyword: a}, ArgKeyword
	default:
		return OptionArgs{Scalar: a}, ArgScalar
	}
}

func setEach(prefix string) OptionFunc {
	return func(_ *Komponent, doc deep.Map, args OptionArgs) error {
		m, err := ensureMap(doc, prefix)
		if err != nil {
			return err
		}
		for key, value := range args.Keyword {
			m[key] = value
		}
		return nil
	}
}

func setScalar(path string) OptionFunc {
	return func(_ *Komponent, doc deep.Map, args OptionArgs) error {
		return deep.Set(doc, path, args.Scalar)
	}
}

func removePaths(paths ...string) OptionFunc {
	return func(_ *Komponent, doc deep.Map, _ OptionArgs) error {
		for _, p := range paths {
			deep.Delete(doc, p)
		}
		return nil
	}
}

func removeArgs(_ *Komponent, doc deep.Map, args OptionArgs) error {
	for _, p := range args.Positional {
		path, ok := p.(string)
		if !ok {
			return fmt.Errorf("remove: path %v is not a string", p)
		}
		deep.Delete(doc, path)
	}
	return nil
}

// ensureMap makes sure path holds a mapping. Label keys may contain dots,
// so they are set on the mapping directly rather than through a path.
func ensureMap(doc deep.Map, path string) (deep.Map, error) {
	if m := deep.GetMap(doc, path); m != nil {
		return m, nil
	}
	if err := deep.Set(doc, path, deep.Map{}); err != nil {
		return nil, err
	}
	return deep.GetMap(doc, path), nil
}

func sortedKeys(m deep.Map) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
