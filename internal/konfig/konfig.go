// Package konfig assembles the merged configuration of one kreate run.
//
// The main konfig file is rendered as a strict template, parsed as YAML
// and layered under command-line overrides. Files listed under inklude and
// strukture are then loaded until no new one appears, each merged as
// non-destructive defaults, so the main file always wins over what it
// includes. Files listed in values.files and secrets.files end up below
// the val and secret keys. Every file is read through the repo Manager, so
// any of them may live in a remote repo defined by an earlier layer.
package konfig

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/kreate/internal/deep"
	"github.com/conneroisu/kreate/internal/logging"
	"github.com/conneroisu/kreate/internal/renderer"
	"github.com/conneroisu/kreate/internal/repo"
)

// Top-level keys with a fixed meaning. Every other top-level key names a
// komponent kind.
const (
	KeyValues    = "values"
	KeySecrets   = "secrets"
	KeyStrukture = "strukture"
	KeyInklude   = "inklude"
	KeySystem    = "system"
	KeyApp       = "app"
	KeyVal       = "val"
	KeySecret    = "secret"
)

// Reserved reports whether key is one of the fixed top-level keys.
func Reserved(key string) bool {
	switch key {
	case KeyValues, KeySecrets, KeyStrukture, KeyInklude, KeySystem, KeyApp, KeyVal, KeySecret:
		return true
	}
	return false
}

// DefaultEnv is used when the konfig sets no app.env.
const DefaultEnv = "dev"

// Konfig is the merged configuration of one run.
type Konfig struct {
	// Data is the merged tree. It is owned by the Konfig.
	Data deep.Map
	// Path is the main konfig file, Dir its directory.
	Path string
	Dir  string
	// AppName and Env are app.appname and app.env with defaults applied.
	AppName string
	Env     string
	// Loaded lists every file reference merged, in load order.
	Loaded []string
}

// LoadOptions configures Load.
type LoadOptions struct {
	// Path of the main konfig file.
	Path string
	// Overrides are "dotted.path=value" strings; values are parsed as YAML.
	Overrides []string
	// Repos resolves file references. A local-dir repo named "konf" for
	// the directory of Path is added to it.
	Repos *repo.Manager
	// Logger receives progress; a no-op logger when nil.
	Logger logging.Logger
	// Environ supplies the env template variable; os.Environ when nil.
	Environ func() []string
}

// Load reads the main konfig and everything it references.
func Load(ctx context.Context, opts LoadOptions) (*Konfig, error) {
	if opts.Repos == nil {
		return nil, fmt.Errorf("konfig: no repo manager")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	logger = logger.WithComponent("konfig")
	environ := opts.Environ
	if environ == nil {
		environ = os.Environ
	}

	abs, err := filepath.Abs(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("resolving konfig path: %w", err)
	}
	k := &Konfig{Path: abs, Dir: filepath.Dir(abs)}
	opts.Repos.AddLocalDir(repo.DefaultRepo, k.Dir)

	env := envMap(environ())
	text, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("reading konfig: %w", err)
	}
	main, err := parse(filepath.Base(abs), string(text), map[string]any{"env": env})
	if err != nil {
		return nil, err
	}

	overrides, err := ParseOverrides(opts.Overrides)
	if err != nil {
		return nil, err
	}
	data, err := deep.Chain(overrides, main)
	if err != nil {
		return nil, fmt.Errorf("applying overrides: %w", err)
	}
	k.Data = data
	k.Loaded = append(k.Loaded, filepath.Base(abs))
	k.applyDefaults()
	k.syncRepos(opts.Repos)

	if err := k.loadIncludes(ctx, opts.Repos, env, logger); err != nil {
		return nil, err
	}
	if err := k.loadFiles(ctx, opts.Repos, env, KeyValues, KeyVal, logger); err != nil {
		return nil, err
	}
	if err := k.loadFiles(ctx, opts.Repos, env, KeySecrets, KeySecret, logger); err != nil {
		return nil, err
	}

	logger.Debug(ctx, "konfig loaded", "files", len(k.Loaded), "appname", k.AppName, "env", k.Env)
	return k, nil
}

// loadIncludes merges inklude and strukture files until the set of
// referenced files stops growing.
func (k *Konfig) loadIncludes(ctx context.Context, repos *repo.Manager, env map[string]string, logger logging.Logger) error {
	seen := map[string]bool{}
	for {
		var pending []string
		for _, key := range []string{KeyInklude, KeyStrukture} {
			for _, item := range deep.GetList(k.Data, key) {
				ref, ok := item.(string)
				if !ok || seen[ref] {
					continue
				}
				seen[ref] = true
				pending = append(pending, ref)
			}
		}
		if len(pending) == 0 {
			return nil
		}

		for _, ref := range pending {
			layer, err := k.loadLayer(ctx, repos, ref, env)
			if err != nil {
				return err
			}
			if layer == nil {
				continue
			}
			if err := deep.Merge(k.Data, layer, false); err != nil {
				return fmt.Errorf("merging %s: %w", ref, err)
			}
			k.Loaded = append(k.Loaded, ref)
			logger.Debug(ctx, "included konfig file", "ref", ref)
			k.applyDefaults()
			k.syncRepos(repos)
		}
	}
}

// loadFiles merges every file of <listKey>.files below target.
func (k *Konfig) loadFiles(ctx context.Context, repos *repo.Manager, env map[string]string, listKey, target string, logger logging.Logger) error {
	for _, item := range deep.GetList(k.Data, listKey+".files") {
		ref, ok := item.(string)
		if !ok {
			return fmt.Errorf("%s.files: entry %v is not a file reference", listKey, item)
		}
		layer, err := k.loadLayer(ctx, repos, ref, env)
		if err != nil {
			return err
		}
		if layer == nil {
			continue
		}
		if _, ok := k.Data[target].(deep.Map); !ok {
			if existing := k.Data[target]; existing != nil {
				return fmt.Errorf("%s: expected a mapping, got %T", target, existing)
			}
			k.Data[target] = deep.Map{}
		}
		if err := deep.Merge(k.Data[target].(deep.Map), layer, false); err != nil {
			return fmt.Errorf("merging %s: %w", ref, err)
		}
		k.Loaded = append(k.Loaded, ref)
		logger.Debug(ctx, "loaded "+listKey+" file", "ref", ref)
	}
	return nil
}

func (k *Konfig) loadLayer(ctx context.Context, repos *repo.Manager, ref string, env map[string]string) (deep.Map, error) {
	text, err := repos.GetData(ctx, ref)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	r := repo.ParseRef(ref)
	switch strings.ToLower(filepath.Ext(r.Path)) {
	case ".json", ".jsonc":
		text = string(jsonc.ToJSON([]byte(text)))
	}
	return parse(ref, text, map[string]any{"env": env, "konf": k.Data, "app": k.App()})
}

// App returns the app section with appname and env filled in.
func (k *Konfig) App() deep.Map {
	app := deep.CopyMap(deep.GetMap(k.Data, KeyApp))
	app["appname"] = k.AppName
	app["env"] = k.Env
	return app
}

// Vals returns the val section.
func (k *Konfig) Vals() deep.Map {
	return deep.GetMap(k.Data, KeyVal)
}

// Secrets returns the secret section.
func (k *Konfig) Secrets() deep.Map {
	return deep.GetMap(k.Data, KeySecret)
}

// System returns the system section.
func (k *Konfig) System() deep.Map {
	return deep.GetMap(k.Data, KeySystem)
}

// Kinds returns the top-level keys that are not reserved, sorted.
func (k *Konfig) Kinds() []string {
	kinds := make([]string, 0, len(k.Data))
	for key := range k.Data {
		if !Reserved(key) && !strings.HasPrefix(key, "_") {
			kinds = append(kinds, key)
		}
	}
	sort.Strings(kinds)
	return kinds
}

func (k *Konfig) applyDefaults() {
	k.AppName = deep.GetString(k.Data, KeyApp+".appname", filepath.Base(k.Dir))
	k.Env = deep.GetString(k.Data, KeyApp+".env", DefaultEnv)
}

func (k *Konfig) syncRepos(repos *repo.Manager) {
	repos.Define(deep.GetMap(k.Data, KeySystem+".repo"))
	repos.SetVars(map[string]any{
		"app":     k.App(),
		"appname": k.AppName,
		"env":     k.Env,
	})
}

// parse renders text strictly and decodes the result as one YAML mapping.
func parse(name, text string, vars map[string]any) (deep.Map, error) {
	rendered, err := renderer.Render(name, text, vars)
	if err != nil {
		return nil, err
	}
	var out any
	if err := yaml.Unmarshal([]byte(rendered), &out); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}
	if out == nil {
		return deep.Map{}, nil
	}
	m, ok := deep.Normalize(out).(deep.Map)
	if !ok {
		return nil, fmt.Errorf("parsing %s: top level must be a mapping, got %T", name, out)
	}
	return m, nil
}

// ParseOverrides turns "a.b=value" strings into a tree. Values are parsed
// as YAML scalars, so "replicas=3" yields an int.
func ParseOverrides(overrides []string) (deep.Map, error) {
	out := deep.Map{}
	for _, o := range overrides {
		path, raw, ok := strings.Cut(o, "=")
		if !ok || path == "" {
			return nil, fmt.Errorf("invalid override %q, expected path=value", o)
		}
		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		if err := deep.Set(out, path, deep.Normalize(value)); err != nil {
			return nil, fmt.Errorf("override %q: %w", o, err)
		}
	}
	return out, nil
}

func envMap(environ []string) map[string]string {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}
