// Package registry turns a loaded konfig into komponents and renders them.
//
// An App is built in two passes. The first creates a komponent for every
// shortname below every known top-level kind, in sorted order. The second
// creates the patches: top-level patch entries carrying a target, and the
// patches each komponent declares under its patches key. Patches are
// bound to their target only by Aktivate, which starts once every
// komponent is registered because templates may read their siblings.
package registry

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/conneroisu/kreate/internal/deep"
	kerrors "github.com/conneroisu/kreate/internal/errors"
	"github.com/conneroisu/kreate/internal/konfig"
	"github.com/conneroisu/kreate/internal/logging"
	"github.com/conneroisu/kreate/internal/renderer"
	"github.com/conneroisu/kreate/internal/repo"
)

// Options configures an App.
type Options struct {
	// OutputDir is wiped and recreated by Write.
	OutputDir string
	// Klasses defaults to DefaultKlasses.
	Klasses *Klasses
	Logger  logging.Logger
	// Warnings collects non-fatal conditions when set.
	Warnings *kerrors.Collector
}

type komponentKey struct {
	kind      string
	shortname string
}

// App owns the komponents of one run.
type App struct {
	konf      *konfig.Konfig
	repos     *repo.Manager
	klasses   *Klasses
	outputDir string
	logger    logging.Logger
	warnings  *kerrors.Collector

	mu         sync.RWMutex
	komponents []*Komponent
	index      map[komponentKey]*Komponent
	byID       map[string]*Komponent
	templates  map[string]string
	// removed is set once CleanupSecrets deleted the secret output.
	removed bool
}

// NewApp creates an App for konf. Kinds declared under system.klass are
// added to the klasses.
func NewApp(konf *konfig.Konfig, repos *repo.Manager, opts Options) (*App, error) {
	if opts.OutputDir == "" {
		return nil, fmt.Errorf("registry: output dir not set")
	}
	if opts.Klasses == nil {
		opts.Klasses = DefaultKlasses()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	if err := opts.Klasses.Declare(deep.GetMap(konf.System(), "klass")); err != nil {
		return nil, err
	}
	return &App{
		konf:      konf,
		repos:     repos,
		klasses:   opts.Klasses,
		outputDir: opts.OutputDir,
		logger:    opts.Logger.WithComponent("registry"),
		warnings:  opts.Warnings,
		index:     make(map[komponentKey]*Komponent),
		byID:      make(map[string]*Komponent),
		templates: make(map[string]string),
	}, nil
}

// Konfig returns the konfig the App was built from.
func (a *App) Konfig() *konfig.Konfig {
	return a.konf
}

// OutputDir returns the output directory.
func (a *App) OutputDir() string {
	return a.outputDir
}

// KreateKomponents creates and registers all komponents.
func (a *App) KreateKomponents(ctx context.Context) error {
	var patchKinds []*Klass
	for _, kind := range a.konf.Kinds() {
		klass, ok := a.klasses.Lookup(kind)
		if !ok {
			a.warn(ctx, kerrors.NewUnknownKind(kind), "skipping unknown kind", "kind", kind)
			continue
		}
		if klass.Variant == VariantPatch {
			patchKinds = append(patchKinds, klass)
			continue
		}
		shortnames, err := a.shortnames(kind)
		if err != nil {
			return err
		}
		for _, short := range shortnames {
			if _, err := a.kreate(ctx, klass, short, "", a.structureOf(kind, short), nil); err != nil {
				return err
			}
		}
	}

	// Top-level patch entries without a target only provide defaults for
	// patches declared inside komponents.
	for _, klass := range patchKinds {
		shortnames, err := a.shortnames(klass.Kind)
		if err != nil {
			return err
		}
		for _, short := range shortnames {
			structure := a.structureOf(klass.Kind, short)
			target := deep.GetString(structure, "target", "")
			if target == "" {
				continue
			}
			if _, err := a.kreate(ctx, klass, short, target, structure, nil); err != nil {
				return err
			}
		}
	}

	for _, owner := range a.Komponents() {
		if owner.IsPatch() {
			continue
		}
		decls, err := nestedPatches(owner)
		if err != nil {
			return err
		}
		for _, d := range decls {
			klass, ok := a.klasses.Lookup(d.kind)
			if !ok {
				a.warn(ctx, kerrors.NewUnknownKind(d.kind).WithComponent(owner.ID), "skipping unknown patch kind", "kind", d.kind)
				continue
			}
			if klass.Variant != VariantPatch {
				return kerrors.NewInvalidOption(owner.ID, "patches", fmt.Sprintf("%s is not a patch kind", d.kind))
			}
			// Defaults come from the top-level entry named like the owner
			// (for main) or like the patch.
			defaults := d.shortname
			if defaults == DefaultShortname {
				defaults = owner.Shortname
			}
			short := nestedShortname(owner, d.shortname)
			if _, err := a.kreate(ctx, klass, short, owner.ID, a.structureOf(d.kind, defaults), d.overrides); err != nil {
				return err
			}
		}
	}

	a.logger.Info(ctx, "komponents kreated", "count", a.Count())
	return nil
}

// kreate builds one komponent from structure and overrides and registers
// it unless it is ignored.
func (a *App) kreate(ctx context.Context, klass *Klass, shortname, targetID string, structure, overrides deep.Map) (*Komponent, error) {
	k := &Komponent{
		ID:        klass.Kind + "." + shortname,
		Kind:      klass.Kind,
		Shortname: shortname,
		TargetID:  targetID,
		klass:     klass,
		app:       a,
	}

	k.Structure = deep.CopyMap(structure)
	if err := deep.Merge(k.Structure, overrides, true); err != nil {
		return nil, fmt.Errorf("%s: %w", k.ID, err)
	}
	k.State = StateStructureResolved

	if ignore, _ := k.Structure["ignore"].(bool); ignore {
		k.State = StateSkipped
		a.logger.Debug(ctx, "komponent ignored", "id", k.ID)
		return k, nil
	}

	if err := klass.CheckRequirements(); err != nil {
		return nil, err
	}
	text, err := a.template(ctx, k)
	if err != nil {
		return nil, err
	}
	k.template = text

	if k.options, err = parseOptions(k.ID, klass.Variant, deep.GetList(k.Structure, "options")); err != nil {
		return nil, err
	}
	k.Secret = klass.Secret()
	if secret, ok := k.Structure["secret"].(bool); ok {
		k.Secret = secret
	}
	k.Name = k.resolveName()

	if err := a.register(k); err != nil {
		return nil, err
	}
	a.logger.Debug(ctx, "komponent registered", "id", k.ID, "name", k.Name)
	return k, nil
}

func (a *App) register(k *Komponent) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.byID[k.ID]; exists {
		return kerrors.NewDuplicateKomponent(k.ID)
	}
	k.State = StateRegistered
	a.komponents = append(a.komponents, k)
	a.index[komponentKey{lowercase(k.Kind), k.Shortname}] = k
	a.byID[k.ID] = k
	return nil
}

func (a *App) template(ctx context.Context, k *Komponent) (string, error) {
	ref := deep.GetString(a.konf.System(), "template."+k.Kind, k.klass.Template())
	if ref == "" {
		return "", kerrors.NewMissingTemplate(k.ID, nil)
	}
	a.mu.RLock()
	text, ok := a.templates[ref]
	a.mu.RUnlock()
	if ok {
		return text, nil
	}

	text, err := a.repos.GetData(ctx, ref)
	if err != nil {
		return "", kerrors.NewMissingTemplate(k.ID, err).WithPath(ref)
	}
	a.mu.Lock()
	a.templates[ref] = text
	a.mu.Unlock()
	return text, nil
}

// Aktivate renders every registered komponent.
func (a *App) Aktivate(ctx context.Context) error {
	komponents := a.Komponents()
	for _, k := range komponents {
		if k.State != StateRegistered {
			return fmt.Errorf("%s: cannot aktivate in state %s", k.ID, k.State)
		}
	}
	for _, k := range komponents {
		if err := a.aktivate(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) aktivate(ctx context.Context, k *Komponent) error {
	if k.IsPatch() {
		target := a.GetByID(k.TargetID)
		if target == nil {
			return kerrors.NewPatchTargetNotFound(k.ID, k.TargetID)
		}
		k.target = target
	}
	k.State = StateActivated

	content, err := a.render(ctx, k)
	if err != nil {
		return err
	}
	k.Content = content
	k.State = StateRendered
	a.logger.Debug(ctx, "komponent rendered", "id", k.ID, "bytes", len(content))
	return nil
}

func (a *App) render(ctx context.Context, k *Komponent) (string, error) {
	k.ctx = ctx
	defer func() { k.ctx = nil }()

	text, err := renderer.Render(k.ID, k.template, a.vars(k))
	if err != nil {
		return "", kerrors.NewRenderFailed(k.ID, err)
	}
	content, err := k.finish(text)
	if err != nil {
		return "", kerrors.NewRenderFailed(k.ID, err)
	}
	return content, nil
}

func (a *App) vars(k *Komponent) map[string]any {
	vars := map[string]any{
		"my":         k,
		"konf":       a.konf.Data,
		"app":        a.konf.App(),
		"val":        a.konf.Vals(),
		"secret":     a.konf.Secrets(),
		"komponents": a.Komponents(),
	}
	if k.target != nil {
		vars["target"] = k.target
	}
	return vars
}

// finish parses rendered YAML, applies the add and remove edits and the
// options, and serializes the result. Text files are kept as rendered.
func (k *Komponent) finish(text string) (string, error) {
	switch k.Variant() {
	case VariantTextFile:
		return text, nil
	case VariantMultiDocument:
		docs, err := decodeAll(text)
		if err != nil {
			return "", err
		}
		for _, doc := range docs {
			if err := k.edit(doc); err != nil {
				return "", err
			}
		}
		return encode(docs...)
	}

	var out any
	if err := yaml.Unmarshal([]byte(text), &out); err != nil {
		return "", fmt.Errorf("parsing rendered output: %w", err)
	}
	doc, ok := deep.Normalize(out).(deep.Map)
	if !ok {
		if out != nil {
			return "", fmt.Errorf("rendered output is %T, expected a mapping", out)
		}
		doc = deep.Map{}
	}
	if err := k.edit(doc); err != nil {
		return "", err
	}
	return encode(doc)
}

func (k *Komponent) edit(doc deep.Map) error {
	add := deep.GetMap(k.Structure, "add")
	for _, p := range sortedKeys(add) {
		if err := deep.Set(doc, p, deep.Copy(add[p])); err != nil {
			return fmt.Errorf("add %s: %w", p, err)
		}
	}
	for _, p := range deep.GetList(k.Structure, "remove") {
		if s, ok := p.(string); ok {
			deep.Delete(doc, s)
		}
	}
	for _, call := range k.options {
		if err := call.option.Run(k, doc, call.args); err != nil {
			return fmt.Errorf("option %s: %w", call.name, err)
		}
	}
	return nil
}

func decodeAll(text string) ([]deep.Map, error) {
	dec := yaml.NewDecoder(strings.NewReader(text))
	var docs []deep.Map
	for {
		var out any
		err := dec.Decode(&out)
		if err == io.EOF {
			return docs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("parsing rendered output: %w", err)
		}
		if out == nil {
			continue
		}
		doc, ok := deep.Normalize(out).(deep.Map)
		if !ok {
			return nil, fmt.Errorf("document is %T, expected a mapping", out)
		}
		docs = append(docs, doc)
	}
}

func encode(docs ...deep.Map) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	for _, doc := range docs {
		if err := enc.Encode(doc); err != nil {
			return "", err
		}
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Write wipes the output directory and writes every rendered komponent
// that has a filename.
func (a *App) Write(ctx context.Context) error {
	komponents := a.Komponents()
	for _, k := range komponents {
		if k.State != StateRendered {
			return fmt.Errorf("%s: cannot write in state %s", k.ID, k.State)
		}
	}

	if err := os.RemoveAll(a.outputDir); err != nil {
		return fmt.Errorf("cleaning output dir: %w", err)
	}
	if err := os.MkdirAll(a.outputDir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}

	written := 0
	for _, k := range komponents {
		name := k.Filename()
		if name == "" {
			k.State = StateUnwritten
			continue
		}
		if err := a.writeFile(k, name); err != nil {
			return err
		}
		k.State = StateWritten
		written++
	}
	a.logger.Info(ctx, "output written", "dir", a.outputDir, "files", written)
	return nil
}

func (a *App) writeFile(k *Komponent, name string) error {
	full := filepath.Join(a.outputDir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("writing %s: %w", k.ID, err)
	}
	perm := os.FileMode(0o644)
	if k.Secret {
		perm = 0o600
	}
	if err := os.WriteFile(full, []byte(k.Content), perm); err != nil {
		return fmt.Errorf("writing %s: %w", k.ID, err)
	}
	return nil
}

// CleanupSecrets removes the secrets subdirectory of the output. Written
// komponents that index other output, such as the Kustomization, are
// rendered and written again without the secret files.
func (a *App) CleanupSecrets(ctx context.Context) error {
	if err := os.RemoveAll(filepath.Join(a.outputDir, "secrets")); err != nil {
		return fmt.Errorf("removing secrets: %w", err)
	}
	a.mu.Lock()
	a.removed = true
	a.mu.Unlock()

	for _, k := range a.Komponents() {
		if k.State != StateWritten || !k.klass.indexes() {
			continue
		}
		content, err := a.render(ctx, k)
		if err != nil {
			return err
		}
		k.Content = content
		if err := a.writeFile(k, k.Filename()); err != nil {
			return err
		}
	}
	a.logger.Info(ctx, "secret output removed", "dir", a.outputDir)
	return nil
}

func (a *App) secretsRemoved() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.removed
}

// Klasses returns the klasses known to the app, including those declared
// in system.klass.
func (a *App) Klasses() *Klasses {
	return a.klasses
}

// Komponents returns the registered komponents in registration order.
func (a *App) Komponents() []*Komponent {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]*Komponent, len(a.komponents))
	copy(out, a.komponents)
	return out
}

// Get returns the komponent of kind and shortname; kind is matched
// case-insensitively.
func (a *App) Get(kind, shortname string) *Komponent {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.index[komponentKey{lowercase(kind), shortname}]
}

// GetByID returns the komponent with id "<kind>.<shortname>".
func (a *App) GetByID(id string) *Komponent {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.byID[id]
}

// Count returns the number of registered komponents.
func (a *App) Count() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.komponents)
}

func (a *App) shortnames(kind string) ([]string, error) {
	switch entries := a.konf.Data[kind].(type) {
	case nil:
		return []string{DefaultShortname}, nil
	case deep.Map:
		return sortedKeys(entries), nil
	default:
		return nil, kerrors.NewMergeConflict(kind, entries, deep.Map{})
	}
}

func (a *App) structureOf(kind, shortname string) deep.Map {
	entries, _ := a.konf.Data[kind].(deep.Map)
	structure, _ := entries[shortname].(deep.Map)
	return structure
}

func (a *App) warn(ctx context.Context, err error, msg string, fields ...interface{}) {
	a.logger.Warn(ctx, err, msg, fields...)
	if a.warnings != nil {
		a.warnings.Add(err)
	}
}

// nestedShortname is the shortname of a patch declared inside owner:
// "<owner kind>-<owner shortname>" for main, with "-<shortname>" appended
// otherwise.
func nestedShortname(owner *Komponent, shortname string) string {
	short := lowercase(owner.Kind) + "-" + owner.Shortname
	if shortname != DefaultShortname {
		short += "-" + shortname
	}
	return short
}

type patchDecl struct {
	kind      string
	shortname string
	overrides deep.Map
}

// nestedPatches reads the patches key of owner. It is either a list of
// patch kinds or a mapping of kind to shortnames, each holding the
// overrides for that patch; a kind without shortnames means main.
func nestedPatches(owner *Komponent) ([]patchDecl, error) {
	var decls []patchDecl
	switch p := owner.Structure["patches"].(type) {
	case nil:
		return nil, nil
	case []any:
		for _, item := range p {
			kind, ok := item.(string)
			if !ok {
				return nil, kerrors.NewInvalidOption(owner.ID, "patches", fmt.Sprintf("entry %v is not a kind", item))
			}
			decls = append(decls, patchDecl{kind: kind, shortname: DefaultShortname})
		}
	case deep.Map:
		for _, kind := range sortedKeys(p) {
			shorts, ok := p[kind].(deep.Map)
			if !ok || len(shorts) == 0 {
				decls = append(decls, patchDecl{kind: kind, shortname: DefaultShortname})
				continue
			}
			for _, short := range sortedKeys(shorts) {
				overrides, _ := shorts[short].(deep.Map)
				decls = append(decls, patchDecl{kind: kind, shortname: short, overrides: overrides})
			}
		}
	default:
		return nil, kerrors.NewInvalidOption(owner.ID, "patches", "expected a list or a mapping")
	}
	sort.SliceStable(decls, func(i, j int) bool { return decls[i].kind < decls[j].kind })
	return decls, nil
}
