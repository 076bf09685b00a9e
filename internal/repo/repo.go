// Package repo resolves logical file references to content.
//
// A reference names a repo and a path inside it:
//
//	optional:dekrypt:shared:secrets/db.yaml
//
// Each repo is backed by one Backend: a local directory, a zip file on
// disk or behind a URL, a Bitbucket archive or raw file at a tag, or an
// fs.FS compiled into the binary. Remote repos are cached on disk under a
// directory keyed by repo name, version and a hash of the download
// location, so a pinned version is downloaded once.
//
// Concurrent kreate processes may share the cache. A first download is
// extracted into a temporary sibling directory and renamed into place; if
// another process won the rename the local copy is discarded. No locks are
// taken.
package repo

import (
	"context"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"

	kerrors "github.com/conneroisu/kreate/internal/errors"
	"github.com/conneroisu/kreate/internal/logging"
)

// Backend is the contract every repo type implements.
type Backend interface {
	// GetData returns the content of path. An absent file yields "" when
	// optional is set and a FileNotFound error otherwise.
	GetData(ctx context.Context, path string, optional bool) (string, error)
	// SaveRepoFile stores data at path inside the repo.
	SaveRepoFile(ctx context.Context, path string, data string) error
}

// Repo types accepted in system.repo.<name>.type.
const (
	TypeLocalDir      = "local-dir"
	TypeLocalZip      = "local-zip"
	TypeURLZip        = "url-zip"
	TypeBitbucketZip  = "bitbucket-zip"
	TypeBitbucketFile = "bitbucket-file"
	TypeEmbedded      = "embedded"
	TypePythonPackage = "python-package"
)

// cacheSalt is mixed into every cache hash; bump it when the cache layout
// changes.
const cacheSalt = "kreate-repo-cache-v1"

// BasicAuth names the environment variables holding credentials.
type BasicAuth struct {
	UsrEnvVar string `yaml:"usr_env_var"`
	PswEnvVar string `yaml:"psw_env_var"`
}

// Definition is the schema of system.repo.<name>.
type Definition struct {
	Type         string    `yaml:"type"`
	Version      string    `yaml:"version"`
	URL          string    `yaml:"url"`
	Path         string    `yaml:"path"`
	Package      string    `yaml:"package"`
	CacheName    string    `yaml:"cache_name"`
	SkipLevels   int       `yaml:"skip_levels"`
	SelectRegexp string    `yaml:"select_regexp"`
	BasicAuth    BasicAuth `yaml:"basic_auth"`
}

// Repo is one named source of files.
type Repo struct {
	Name    string
	Version string
	Type    string
	URL     string
	// Dir is the cache or local directory holding the files; empty for
	// embedded repos.
	Dir string

	backend Backend
	logger  logging.Logger
}

// GetData returns the content of path in this repo. A missing optional file
// gives a not found error flagged as a warning.
func (r *Repo) GetData(ctx context.Context, path string, optional bool) (string, error) {
	return r.backend.GetData(ctx, path, optional)
}

// SaveRepoFile stores data at path in this repo.
func (r *Repo) SaveRepoFile(ctx context.Context, path string, data string) error {
	return r.backend.SaveRepoFile(ctx, path, data)
}

// CacheDir derives the cache directory of a repo. Identical inputs always
// give the same directory; changing any of them gives a different one.
func CacheDir(root, name, version, url, salt string) string {
	return filepath.Join(root, name, version+"-"+cacheHash(name, version, url, salt))
}

func cacheHash(name, version, url, salt string) string {
	h := blake3.New()
	for _, part := range []string{name, version, url, salt} {
		_, _ = h.Write([]byte(part))
		_, _ = h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:10]
}

// DefaultCacheRoot is the cache root used when neither settings nor
// KREATE_REPO_CACHE_DIR name one.
func DefaultCacheRoot() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "kreate", "repo")
	}
	return filepath.Join(os.TempDir(), "kreate", "repo")
}

// envName turns a repo name into the suffix of its environment variables.
func envName(name string) string {
	return strings.NewReplacer("-", "_", ".", "_").Replace(strings.ToUpper(name))
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// absent reports a missing file. A miss of an optional file is flagged as
// a warning.
func absent(ctx context.Context, logger logging.Logger, repo, path string, optional bool) (string, error) {
	err := kerrors.NewFileNotFound(repo, path)
	if optional {
		logger.Debug(ctx, "optional file not found", "repo", repo, "path", path)
		return "", err.AsWarning()
	}
	return "", err
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// safeJoin joins a repo-relative path to dir. Leading ".." elements are
// dropped so the result never leaves dir.
func safeJoin(dir, path string) string {
	return filepath.Join(dir, filepath.Clean("/"+filepath.FromSlash(path)))
}
