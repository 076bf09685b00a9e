package registry

import (
	"context"
	"fmt"
	"path"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/conneroisu/kreate/internal/deep"
	kerrors "github.com/conneroisu/kreate/internal/errors"
)

// DefaultShortname is used when a komponent is declared without one.
const DefaultShortname = "main"

// State is the lifecycle position of a komponent.
type State int

const (
	StateCreated State = iota
	StateStructureResolved
	StateSkipped
	StateRegistered
	StateActivated
	StateRendered
	StateWritten
	StateUnwritten
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStructureResolved:
		return "structure-resolved"
	case StateSkipped:
		return "skipped"
	case StateRegistered:
		return "registered"
	case StateActivated:
		return "activated"
	case StateRendered:
		return "rendered"
	case StateWritten:
		return "written"
	case StateUnwritten:
		return "unwritten"
	}
	return "unknown"
}

// lowercase folds s with Unicode rules. Casers are stateful, so a new one
// is made per call.
func lowercase(s string) string {
	return cases.Lower(language.Und).String(s)
}

// Komponent is one output unit, identified by kind and shortname.
type Komponent struct {
	ID        string
	Kind      string
	Shortname string
	Name      string
	// TargetID is "<kind>.<shortname>" of the komponent a patch applies to.
	TargetID  string
	Secret    bool
	Structure deep.Map
	State     State
	// Content is the rendered output, set by activation.
	Content string

	klass    *Klass
	app      *App
	target   *Komponent
	template string
	options  []optionCall
	// ctx is the context of the render in progress, for .my.Load.
	ctx context.Context
}

// Variant returns the variant of the komponent's klass.
func (k *Komponent) Variant() Variant {
	return k.klass.Variant
}

// IsPatch reports whether k is a patch.
func (k *Komponent) IsPatch() bool {
	return k.Variant() == VariantPatch
}

// IsResource reports whether k renders manifests listed as resources.
func (k *Komponent) IsResource() bool {
	switch k.Variant() {
	case VariantResource, VariantWorkload, VariantMultiDocument:
		return true
	}
	return false
}

// Target returns the komponent a patch is bound to; nil before activation
// and for non-patches.
func (k *Komponent) Target() *Komponent {
	return k.target
}

// Field resolves name for this komponent. The komponent's own structure
// is consulted first (the key itself, then field.<name>), then for
// patches the target's structure, then the val buckets keyed by id, by
// kind and the generic ones. The first non-null value wins; def is
// returned when nothing matches, otherwise UndefinedField.
func (k *Komponent) Field(name string, def ...any) (any, error) {
	if v, ok := structureField(k.Structure, name); ok {
		return v, nil
	}
	if k.target != nil {
		if v, ok := structureField(k.target.Structure, name); ok {
			return v, nil
		}
	}

	// TODO: collapse the generic.field bucket into generic once old
	// konfigs are migrated.
	vals := k.app.konf.Vals()
	for _, bucket := range []any{
		vals[k.ID],
		vals[k.Kind],
		vals["generic"],
		deep.Get(vals, "generic.field", nil),
	} {
		if m, ok := bucket.(deep.Map); ok {
			if v := m[name]; v != nil {
				return v, nil
			}
		}
	}

	if len(def) > 0 {
		return def[0], nil
	}
	return nil, kerrors.NewUndefinedField(k.ID, name)
}

func structureField(structure deep.Map, name string) (any, bool) {
	if v := structure[name]; v != nil {
		return v, true
	}
	if v := deep.Get(structure, "field."+name, nil); v != nil {
		return v, true
	}
	return nil, false
}

// Load reads a logical file reference through the repos of the app. It is
// available to templates as .my.Load.
func (k *Komponent) Load(ref string) (string, error) {
	ctx := k.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return k.app.repos.GetData(ctx, ref)
}

// Filename returns the output path relative to the output directory, or
// "" when the komponent is not written or its secret output was removed.
// A filename key in the structure
// overrides the klass default; an empty one suppresses output.
func (k *Komponent) Filename() string {
	if k.Secret && k.app != nil && k.app.secretsRemoved() {
		return ""
	}
	name, explicit := k.Structure["filename"]
	if !explicit {
		name, explicit = k.klass.Info["filename"]
	}

	var base string
	switch {
	case explicit:
		base, _ = name.(string)
	case k.Variant() == VariantTextFile:
		base = ""
	default:
		base = lowercase(k.Kind + "-" + k.Shortname + ".yaml")
	}
	if base == "" {
		return ""
	}

	switch {
	case k.Secret:
		return path.Join("secrets", base)
	case k.IsPatch():
		return path.Join("patches", base)
	}
	return base
}

func (k *Komponent) resolveName() string {
	if n := deep.GetString(k.Structure, "name", ""); n != "" {
		return lowercase(n)
	}

	format := ""
	switch naming := deep.Get(k.app.konf.System(), "naming."+k.Kind, nil).(type) {
	case string:
		format = naming
	case deep.Map:
		format = deep.GetString(naming, k.Shortname, deep.GetString(naming, "*", ""))
	}
	if format == "" {
		format = "{appname}-{kind}"
		if k.Shortname != DefaultShortname {
			format += "-{shortname}"
		}
	}

	name := strings.NewReplacer(
		"{kind}", k.Kind,
		"{shortname}", k.Shortname,
		"{appname}", k.app.konf.AppName,
	).Replace(format)
	return lowercase(name)
}

func (k *Komponent) String() string {
	return fmt.Sprintf("%s (%s)", k.ID, k.State)
}
