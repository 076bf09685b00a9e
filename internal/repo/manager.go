package repo

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/conneroisu/kreate/internal/deep"
	kerrors "github.com/conneroisu/kreate/internal/errors"
	"github.com/conneroisu/kreate/internal/krypt"
	"github.com/conneroisu/kreate/internal/logging"
	"github.com/conneroisu/kreate/internal/renderer"
)

// Environment variables consulted by the Manager.
const (
	EnvCacheDir       = "KREATE_REPO_CACHE_DIR"
	EnvLocalDirPrefix = "KREATE_REPO_LOCAL_DIR_"
	EnvUseLocalDir    = "KREATE_REPO_USE_LOCAL_DIR"
	DefaultUsrEnvVar  = "KREATE_REPO_USR"
	DefaultPswEnvVar  = "KREATE_REPO_PSW"
)

// DefaultRepo is the repo used by references without a repo name: the
// directory holding the main konfig.
const DefaultRepo = "konf"

// Options configures a Manager.
type Options struct {
	// CacheRoot is the cache root; KREATE_REPO_CACHE_DIR overrides it.
	CacheRoot string
	// Getenv reads environment variables; os.Getenv when nil.
	Getenv func(string) string
	// Client is used for remote repos.
	Client *http.Client
	// Krypt decrypts dekrypt: references.
	Krypt *krypt.Context
	// Logger receives warnings and progress; a no-op logger when nil.
	Logger logging.Logger
	// Warnings collects non-fatal conditions when set.
	Warnings *kerrors.Collector
}

// Manager owns all repos of one run, creating each lazily from its
// definition on first use.
type Manager struct {
	opts  Options
	defs  map[string]deep.Map
	repos map[string]*Repo
	vars  map[string]any
}

// NewManager creates a Manager.
func NewManager(opts Options) *Manager {
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 2 * time.Minute}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	opts.Logger = opts.Logger.WithComponent("repo")
	return &Manager{
		opts:  opts,
		defs:  make(map[string]deep.Map),
		repos: make(map[string]*Repo),
		vars:  map[string]any{},
	}
}

// Krypt returns the decryption context of this run.
func (m *Manager) Krypt() *krypt.Context {
	return m.opts.Krypt
}

// AddLocalDir registers a fixed local directory repo.
func (m *Manager) AddLocalDir(name, dir string) {
	m.repos[name] = &Repo{
		Name:    name,
		Type:    TypeLocalDir,
		Dir:     dir,
		backend: newLocalDir(name, dir, m.opts.Logger),
		logger:  m.opts.Logger,
	}
}

// Define records repo definitions, usually the system.repo mapping of the
// konfig. Repos already created keep their backend.
func (m *Manager) Define(defs deep.Map) {
	for name, def := range defs {
		if d, ok := def.(deep.Map); ok {
			m.defs[name] = d
		}
	}
}

// SetVars sets the variables available when rendering repo paths and URLs.
func (m *Manager) SetVars(vars map[string]any) {
	m.vars = vars
}

// Repo returns the repo called name, creating it on first use.
func (m *Manager) Repo(ctx context.Context, name string) (*Repo, error) {
	if name == "" {
		name = DefaultRepo
	}
	if r, ok := m.repos[name]; ok {
		return r, nil
	}

	raw, ok := m.defs[name]
	if !ok {
		if fsys, ok := lookupEmbedded(name); ok {
			r := &Repo{Name: name, Type: TypeEmbedded, backend: &fsRepo{name: name, fsys: fsys, logger: m.opts.Logger}, logger: m.opts.Logger}
			m.repos[name] = r
			return r, nil
		}
		return nil, kerrors.NewRepoNotFound(name)
	}

	def, err := decodeDefinition(raw)
	if err != nil {
		return nil, fmt.Errorf("repo %s: %w", name, err)
	}
	r, err := m.build(ctx, name, def)
	if err != nil {
		return nil, err
	}
	m.repos[name] = r
	return r, nil
}

// GetData resolves a logical reference to text.
func (m *Manager) GetData(ctx context.Context, reference string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ref := ParseRef(reference)
	r, err := m.Repo(ctx, ref.Repo)
	if err != nil {
		if ref.Optional && kerrors.IsNotFound(err) {
			m.warn(ctx, err, "optional reference to unknown repo", "ref", reference)
			return "", nil
		}
		return "", err
	}

	data, err := r.GetData(ctx, ref.Path, ref.Optional)
	if err != nil && kerrors.IsWarning(err) {
		m.warn(ctx, err, "optional file not found", "ref", reference)
		return "", nil
	}
	if err != nil || !ref.Dekrypt || data == "" {
		return data, err
	}
	plain, err := m.opts.Krypt.Dekrypt(data)
	if err != nil {
		return "", kerrors.NewDekryptFailed(reference, err)
	}
	return plain, nil
}

// SaveRepoFile writes data to the file a logical reference names.
func (m *Manager) SaveRepoFile(ctx context.Context, reference, data string) error {
	ref := ParseRef(reference)
	r, err := m.Repo(ctx, ref.Repo)
	if err != nil {
		return err
	}
	return r.SaveRepoFile(ctx, ref.Path, data)
}

// CacheRoot returns the effective cache root.
func (m *Manager) CacheRoot() string {
	if dir := m.opts.Getenv(EnvCacheDir); dir != "" {
		return dir
	}
	if m.opts.CacheRoot != "" {
		return m.opts.CacheRoot
	}
	return DefaultCacheRoot()
}

func (m *Manager) build(ctx context.Context, name string, def Definition) (*Repo, error) {
	logger := m.opts.Logger.With("repo", name)
	vars := make(map[string]any, len(m.vars)+1)
	for k, v := range m.vars {
		vars[k] = v
	}
	vars["version"] = def.Version

	location, err := m.template(name, def.URL, vars)
	if err != nil {
		return nil, err
	}
	r := &Repo{Name: name, Version: def.Version, Type: def.Type, URL: location, logger: logger}

	override := m.opts.Getenv(EnvLocalDirPrefix + envName(name))
	force := truthy(m.opts.Getenv(EnvUseLocalDir)) || truthy(m.opts.Getenv(EnvUseLocalDir+"_"+envName(name)))

	if def.Type == TypeLocalDir {
		dir := override
		if dir == "" {
			if dir, err = m.template(name, def.Path, vars); err != nil {
				return nil, err
			}
		}
		if dir == "" {
			return nil, fmt.Errorf("repo %s: local-dir needs a path", name)
		}
		r.Dir = dir
		r.backend = newLocalDir(name, dir, logger)
		return r, nil
	}

	if force {
		if override != "" {
			logger.Info(ctx, "using local dir instead of repo", "dir", override)
			r.Dir = override
			r.backend = newLocalDir(name, override, logger)
			return r, nil
		}
		m.warn(ctx, nil, "local dir forced but not set", "env", EnvLocalDirPrefix+envName(name))
	}

	if _, pinned := gitRef(def.Version); !pinned && def.Type != TypeEmbedded && def.Type != TypePythonPackage {
		m.warn(ctx, kerrors.NewVersionMismatch(name, def.Version), "repo version is not pinned")
	}

	cacheName := def.CacheName
	if cacheName == "" {
		cacheName = name
	}
	r.Dir = CacheDir(m.CacheRoot(), cacheName, def.Version, location, cacheSalt)

	var selectRe *regexp.Regexp
	if def.SelectRegexp != "" {
		if selectRe, err = regexp.Compile(def.SelectRegexp); err != nil {
			return nil, fmt.Errorf("repo %s: invalid select_regexp: %w", name, err)
		}
	}
	zipped := func(src zipSource) *zipRepo {
		return &zipRepo{name: name, dir: r.Dir, source: src, skipLevels: def.SkipLevels, selectRe: selectRe, logger: logger}
	}

	switch def.Type {
	case TypeLocalZip:
		path := location
		if path == "" {
			if path, err = m.template(name, def.Path, vars); err != nil {
				return nil, err
			}
		}
		r.backend = zipped(localZipSource(name, path))
	case TypeURLZip:
		r.backend = zipped(urlZipSource(name, location, m.fetcher(def)))
	case TypeBitbucketZip:
		r.backend = zipped(urlZipSource(name, bitbucketArchiveURL(location, def.Version), m.fetcher(def)))
	case TypeBitbucketFile:
		r.backend = &rawFileRepo{name: name, dir: r.Dir, base: location, version: def.Version, fetch: m.fetcher(def), logger: logger}
	case TypeEmbedded, TypePythonPackage:
		pkg := def.Package
		if pkg == "" {
			pkg = name
		}
		fsys, ok := lookupEmbedded(pkg)
		if !ok {
			return nil, kerrors.NewRepoNotFound(pkg).WithContext("type", def.Type)
		}
		r.Dir = ""
		r.backend = &fsRepo{name: name, fsys: fsys, logger: logger}
	default:
		return nil, fmt.Errorf("repo %s: unknown type %q", name, def.Type)
	}
	return r, nil
}

func (m *Manager) fetcher(def Definition) *fetcher {
	usrVar, pswVar := def.BasicAuth.UsrEnvVar, def.BasicAuth.PswEnvVar
	if usrVar == "" {
		usrVar = DefaultUsrEnvVar
	}
	if pswVar == "" {
		pswVar = DefaultPswEnvVar
	}
	return &fetcher{
		client: m.opts.Client,
		usr:    m.opts.Getenv(usrVar),
		psw:    m.opts.Getenv(pswVar),
	}
}

func (m *Manager) template(name, text string, vars map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}
	out, err := renderer.Render("repo "+name, text, vars)
	if err != nil {
		return "", fmt.Errorf("repo %s: %w", name, err)
	}
	return out, nil
}

func (m *Manager) warn(ctx context.Context, err error, msg string, fields ...interface{}) {
	m.opts.Logger.Warn(ctx, err, msg, fields...)
	if m.opts.Warnings != nil && err != nil {
		m.opts.Warnings.Add(err)
	}
}

func decodeDefinition(raw deep.Map) (Definition, error) {
	var def Definition
	data, err := yaml.Marshal(raw)
	if err != nil {
		return def, err
	}
	if err := yaml.Unmarshal(data, &def); err != nil {
		return def, fmt.Errorf("invalid definition: %w", err)
	}
	if def.Type == "" {
		def.Type = TypeLocalDir
	}
	return def, nil
}
