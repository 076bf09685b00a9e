package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/conneroisu/kreate/internal/deep"
	kerrors "github.com/conneroisu/kreate/internal/errors"
	"github.com/conneroisu/kreate/internal/templates"
	"github.com/conneroisu/kreate/internal/version"
)

// Variant is the behaviour class of a kind. The set is closed.
type Variant int

const (
	VariantResource Variant = iota
	VariantWorkload
	VariantPatch
	VariantTextFile
	VariantMultiDocument
)

var variantNames = map[Variant]string{
	VariantResource:      "resource",
	VariantWorkload:      "workload",
	VariantPatch:         "patch",
	VariantTextFile:      "textfile",
	VariantMultiDocument: "multidocument",
}

func (v Variant) String() string {
	if name, ok := variantNames[v]; ok {
		return name
	}
	return fmt.Sprintf("variant(%d)", int(v))
}

// ParseVariant maps a variant name from system.klass to its Variant.
func ParseVariant(s string) (Variant, bool) {
	for v, name := range variantNames {
		if name == s {
			return v, true
		}
	}
	return 0, false
}

// Klass describes one kind: its variant and the info map holding the
// template ref, default filename, secret flag and version requirement.
type Klass struct {
	Kind    string
	Variant Variant
	Info    deep.Map

	reqOnce sync.Once
	reqErr  error
}

// Template returns the template reference of the klass.
func (k *Klass) Template() string {
	return deep.GetString(k.Info, "template", "")
}

// Secret reports whether komponents of this klass are secret by default.
func (k *Klass) Secret() bool {
	secret, _ := k.Info["secret"].(bool)
	return secret
}

// indexes reports whether komponents of this klass list the output of
// other komponents and must be rewritten when that output changes.
func (k *Klass) indexes() bool {
	index, _ := k.Info["index"].(bool)
	return index
}

// CheckRequirements verifies the requires entry of the klass against the
// running kreate version. The result is computed once.
func (k *Klass) CheckRequirements() error {
	k.reqOnce.Do(func() {
		required := deep.GetString(k.Info, "requires", "")
		if required == "" {
			return
		}
		ok, err := version.Satisfies(required)
		if err != nil {
			k.reqErr = fmt.Errorf("kind %s: %w", k.Kind, err)
			return
		}
		if !ok {
			k.reqErr = kerrors.NewRequirementFailed(k.Kind, required, version.GetVersion())
		}
	})
	return k.reqErr
}

// Klasses indexes klasses by kind.
type Klasses struct {
	byKind map[string]*Klass
}

// DefaultKlasses returns the built-in klasses.
func DefaultKlasses() *Klasses {
	ks := &Klasses{byKind: make(map[string]*Klass)}
	builtin := []struct {
		kind    string
		variant Variant
		info    deep.Map
	}{
		{"ConfigMap", VariantResource, nil},
		{"Secret", VariantResource, deep.Map{"secret": true}},
		{"Service", VariantResource, nil},
		{"Ingress", VariantResource, nil},
		{"ServiceAccount", VariantResource, nil},
		{"PodDisruptionBudget", VariantResource, nil},
		{"Kustomization", VariantResource, deep.Map{"filename": "kustomization.yaml", "index": true}},
		{"Deployment", VariantWorkload, nil},
		{"StatefulSet", VariantWorkload, nil},
		{"CronJob", VariantWorkload, nil},
		{"HttpProbesPatch", VariantPatch, nil},
		{"AntiAffinityPatch", VariantPatch, nil},
		{"LabelPatch", VariantPatch, nil},
		{"TextFile", VariantTextFile, deep.Map{"template": templates.Ref("TextFile.txt")}},
		{"MultiDocument", VariantMultiDocument, nil},
	}
	for _, b := range builtin {
		info := deep.CopyMap(b.info)
		if _, ok := info["template"]; !ok {
			info["template"] = templates.Ref(b.kind + ".yaml")
		}
		ks.Add(&Klass{Kind: b.kind, Variant: b.variant, Info: info})
	}
	return ks
}

// Add registers k, replacing any klass of the same kind.
func (ks *Klasses) Add(k *Klass) {
	ks.byKind[k.Kind] = k
}

// Lookup returns the klass of kind.
func (ks *Klasses) Lookup(kind string) (*Klass, bool) {
	k, ok := ks.byKind[kind]
	return k, ok
}

// Kinds returns all known kinds, sorted.
func (ks *Klasses) Kinds() []string {
	kinds := make([]string, 0, len(ks.byKind))
	for kind := range ks.byKind {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// Declare adds the kinds of a system.klass mapping. Each entry needs a
// known variant; an entry for an existing kind only extends its info.
func (ks *Klasses) Declare(defs deep.Map) error {
	kinds := make([]string, 0, len(defs))
	for kind := range defs {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	for _, kind := range kinds {
		def, _ := defs[kind].(deep.Map)
		info := deep.CopyMap(def)
		name := deep.GetString(info, "variant", "")
		delete(info, "variant")

		if existing, ok := ks.byKind[kind]; ok && name == "" {
			merged := deep.CopyMap(existing.Info)
			if err := deep.Merge(merged, info, true); err != nil {
				return fmt.Errorf("system.klass.%s: %w", kind, err)
			}
			ks.Add(&Klass{Kind: kind, Variant: existing.Variant, Info: merged})
			continue
		}

		variant, ok := ParseVariant(name)
		if !ok {
			return kerrors.NewUnknownTemplateClass(kind, name)
		}
		if _, ok := info["template"]; !ok {
			info["template"] = templates.Ref(kind + ".yaml")
		}
		ks.Add(&Klass{Kind: kind, Variant: variant, Info: info})
	}
	return nil
}
