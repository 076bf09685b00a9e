package repo

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"testing/fstest"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/kreate/internal/deep"
	kerrors "github.com/conneroisu/kreate/internal/errors"
	"github.com/conneroisu/kreate/internal/krypt"
)

func envFrom(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func newTestManager(t *testing.T, env map[string]string) *Manager {
	t.Helper()
	if env == nil {
		env = map[string]string{}
	}
	return NewManager(Options{
		CacheRoot: filepath.Join(t.TempDir(), "cache"),
		Getenv:    envFrom(env),
		Warnings:  kerrors.NewCollector(),
	})
}

func TestCacheDirDeterminism(t *testing.T) {
	a := CacheDir("/root", "shared", "1.0.0", "https://x/y.zip", cacheSalt)
	b := CacheDir("/root", "shared", "1.0.0", "https://x/y.zip", cacheSalt)
	c := CacheDir("/root", "shared", "1.0.1", "https://x/y.zip", cacheSalt)
	d := CacheDir("/root", "shared", "1.0.0", "https://x/z.zip", cacheSalt)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
	assert.True(t, strings.HasPrefix(a, filepath.Join("/root", "shared", "1.0.0-")))
	assert.Len(t, filepath.Base(a), len("1.0.0-")+10)
}

func TestRepoCacheDirFromDefinitions(t *testing.T) {
	ctx := context.Background()
	def := deep.Map{"type": TypeURLZip, "version": "1.2.0", "url": "https://example.com/{{ .version }}.zip"}

	m1 := newTestManager(t, nil)
	m1.Define(deep.Map{"shared": def})
	m2 := NewManager(Options{CacheRoot: m1.opts.CacheRoot, Getenv: envFrom(nil)})
	m2.Define(deep.Map{"shared": deep.Copy(def)})

	r1, err := m1.Repo(ctx, "shared")
	require.NoError(t, err)
	r2, err := m2.Repo(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, r1.Dir, r2.Dir)
	assert.Equal(t, "https://example.com/1.2.0.zip", r1.URL)

	m3 := NewManager(Options{CacheRoot: m1.opts.CacheRoot, Getenv: envFrom(nil)})
	changed := deep.CopyMap(def)
	changed["version"] = "1.3.0"
	m3.Define(deep.Map{"shared": changed})
	r3, err := m3.Repo(ctx, "shared")
	require.NoError(t, err)
	assert.NotEqual(t, r1.Dir, r3.Dir)
}

func TestLocalDirOptionalFallback(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "values.yaml"), []byte("a: 1\n"), 0o644))

	m := newTestManager(t, nil)
	m.AddLocalDir(DefaultRepo, dir)

	data, err := m.GetData(ctx, "values.yaml")
	require.NoError(t, err)
	assert.Equal(t, "a: 1\n", data)

	data, err = m.GetData(ctx, "optional:missing.yaml")
	require.NoError(t, err)
	assert.Equal(t, "", data)

	warnings := m.opts.Warnings.Warnings()
	require.Len(t, warnings, 1)
	assert.True(t, errors.Is(warnings[0], kerrors.ErrFileNotFound))
	assert.True(t, kerrors.IsWarning(warnings[0]))

	_, err = m.GetData(ctx, "missing.yaml")
	require.Error(t, err)
	assert.True(t, errors.Is(err, kerrors.ErrFileNotFound))

	require.NoError(t, m.SaveRepoFile(ctx, "sub/new.txt", "hello"))
	data, err = m.GetData(ctx, "sub/new.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", data)
}

func TestUnknownRepo(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil)

	_, err := m.GetData(ctx, "nowhere:file.yaml")
	assert.True(t, errors.Is(err, kerrors.ErrRepoNotFound))

	data, err := m.GetData(ctx, "optional:nowhere:file.yaml")
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestLocalDirDefinitionAndOverride(t *testing.T) {
	ctx := context.Background()
	configured := t.TempDir()
	override := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(configured, "f.txt"), []byte("configured"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(override, "f.txt"), []byte("override"), 0o644))

	m := newTestManager(t, nil)
	m.SetVars(map[string]any{"appname": "web"})
	m.Define(deep.Map{"base": deep.Map{"type": TypeLocalDir, "path": configured}})
	data, err := m.GetData(ctx, "base:f.txt")
	require.NoError(t, err)
	assert.Equal(t, "configured", data)

	m = newTestManager(t, map[string]string{"KREATE_REPO_LOCAL_DIR_MY_BASE": override})
	m.Define(deep.Map{"my-base": deep.Map{"type": TypeLocalDir, "path": configured}})
	data, err = m.GetData(ctx, "my-base:f.txt")
	require.NoError(t, err)
	assert.Equal(t, "override", data)
}

func TestLocalZipExtractedOnce(t *testing.T) {
	ctx := context.Background()
	archive := filepath.Join(t.TempDir(), "repo.zip")
	require.NoError(t, os.WriteFile(archive, zipBytes(t, map[string]string{
		"repo-1.0/templates/a.yaml": "a",
		"repo-1.0/templates/b.txt":  "b",
		"repo-1.0/README.md":        "readme",
	}), 0o644))

	m := newTestManager(t, nil)
	m.Define(deep.Map{"z": deep.Map{
		"type":          TypeLocalZip,
		"version":       "1.0",
		"path":          archive,
		"skip_levels":   1,
		"select_regexp": `^templates/`,
	}})

	data, err := m.GetData(ctx, "z:templates/a.yaml")
	require.NoError(t, err)
	assert.Equal(t, "a", data)

	_, err = m.GetData(ctx, "z:README.md")
	assert.True(t, errors.Is(err, kerrors.ErrFileNotFound))

	r, err := m.Repo(ctx, "z")
	require.NoError(t, err)
	assert.DirExists(t, r.Dir)

	require.NoError(t, os.Remove(archive))
	data, err = m.GetData(ctx, "z:templates/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "b", data)
}

func TestURLZipWithBasicAuth(t *testing.T) {
	ctx := context.Background()
	payload := zipBytes(t, map[string]string{"top/konf.yaml": "x: 1\n"})
	var requests int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		usr, psw, ok := r.BasicAuth()
		if !ok || usr != "alice" || psw != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	m := newTestManager(t, map[string]string{"MY_USR": "alice", "MY_PSW": "pw"})
	m.Define(deep.Map{"remote": deep.Map{
		"type":        TypeURLZip,
		"version":     "2.0",
		"url":         server.URL + "/{{ .version }}.zip",
		"skip_levels": 1,
		"basic_auth":  deep.Map{"usr_env_var": "MY_USR", "psw_env_var": "MY_PSW"},
	}})

	for i := 0; i < 3; i++ {
		data, err := m.GetData(ctx, "remote:konf.yaml")
		require.NoError(t, err)
		assert.Equal(t, "x: 1\n", data)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
}

func TestURLZipDownloadFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	m := newTestManager(t, nil)
	m.Define(deep.Map{"remote": deep.Map{"type": TypeURLZip, "version": "1", "url": server.URL}})

	_, err := m.GetData(context.Background(), "remote:a.yaml")
	require.Error(t, err)
	assert.True(t, errors.Is(err, kerrors.ErrDownloadFailed))

	r, err := m.Repo(context.Background(), "remote")
	require.NoError(t, err)
	assert.NoDirExists(t, r.Dir)
}

func TestBitbucketFileNegativeCache(t *testing.T) {
	ctx := context.Background()
	var requests int32
	var lastAt string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		lastAt = r.URL.Query().Get("at")
		if r.URL.Path == "/raw/values.yaml" {
			_, _ = w.Write([]byte("v: 1\n"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	m := newTestManager(t, nil)
	m.Define(deep.Map{"bb": deep.Map{"type": TypeBitbucketFile, "version": "1.4.0", "url": server.URL}})

	data, err := m.GetData(ctx, "bb:values.yaml")
	require.NoError(t, err)
	assert.Equal(t, "v: 1\n", data)
	assert.Equal(t, "refs/tags/1.4.0", lastAt)

	for i := 0; i < 3; i++ {
		data, err = m.GetData(ctx, "optional:bb:values-prod.yaml")
		require.NoError(t, err)
		assert.Empty(t, data)
	}
	_, err = m.GetData(ctx, "bb:values-prod.yaml")
	assert.True(t, errors.Is(err, kerrors.ErrFileNotFound))

	data, err = m.GetData(ctx, "bb:values.yaml")
	require.NoError(t, err)
	assert.Equal(t, "v: 1\n", data)

	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))

	r, err := m.Repo(ctx, "bb")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(r.Dir, "values-prod.yaml"+negativeSuffix))
}

func TestBranchVersionWarns(t *testing.T) {
	m := newTestManager(t, nil)
	m.Define(deep.Map{"bb": deep.Map{"type": TypeBitbucketZip, "version": "branch.main", "url": "https://bb.example.com/repos/x"}})

	_, err := m.Repo(context.Background(), "bb")
	require.NoError(t, err)

	warnings := m.opts.Warnings.Warnings()
	require.Len(t, warnings, 1)
	assert.True(t, errors.Is(warnings[0], kerrors.ErrVersionMismatch))
}

func TestBitbucketURLs(t *testing.T) {
	assert.Equal(t,
		"https://bb/repos/x/archive?at=refs%2Ftags%2F1.0&format=zip",
		bitbucketArchiveURL("https://bb/repos/x/", "1.0"))
	assert.Equal(t,
		"https://bb/repos/x/raw/dir/a.yaml?at=refs%2Fheads%2Fdev",
		bitbucketRawURL("https://bb/repos/x", "branch.dev", "/dir/a.yaml"))
}

func TestForceLocalDir(t *testing.T) {
	local := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(local, "a.yaml"), []byte("local"), 0o644))

	m := newTestManager(t, map[string]string{
		"KREATE_REPO_USE_LOCAL_DIR":     "true",
		"KREATE_REPO_LOCAL_DIR_REMOTE": local,
	})
	m.Define(deep.Map{"remote": deep.Map{"type": TypeURLZip, "version": "1", "url": "http://127.0.0.1:1/never"}})

	data, err := m.GetData(context.Background(), "remote:a.yaml")
	require.NoError(t, err)
	assert.Equal(t, "local", data)
}

func TestCacheRootEnvOverride(t *testing.T) {
	m := newTestManager(t, map[string]string{EnvCacheDir: "/tmp/override"})
	assert.Equal(t, "/tmp/override", m.CacheRoot())
}

func TestEmbeddedRepo(t *testing.T) {
	ctx := context.Background()
	RegisterEmbedded("test-pkg", fstest.MapFS{
		"templates/x.yaml": &fstest.MapFile{Data: []byte("kind: X\n")},
	})

	m := newTestManager(t, nil)
	data, err := m.GetData(ctx, "test-pkg:templates/x.yaml")
	require.NoError(t, err)
	assert.Equal(t, "kind: X\n", data)

	m.Define(deep.Map{"alias": deep.Map{"type": TypePythonPackage, "package": "test-pkg"}})
	data, err = m.GetData(ctx, "alias:templates/x.yaml")
	require.NoError(t, err)
	assert.Equal(t, "kind: X\n", data)

	data, err = m.GetData(ctx, "optional:alias:missing.yaml")
	require.NoError(t, err)
	assert.Empty(t, data)

	assert.Error(t, m.SaveRepoFile(ctx, "alias:new.yaml", "x"))
}

func TestDekryptReference(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secret.txt"), []byte("ciphertext"), 0o644))

	m := NewManager(Options{Getenv: envFrom(nil), Krypt: &krypt.Context{Dummy: true}})
	m.AddLocalDir(DefaultRepo, dir)

	data, err := m.GetData(ctx, "dekrypt:secret.txt")
	require.NoError(t, err)
	assert.Equal(t, krypt.Placeholder("ciphertext"), data)
}
