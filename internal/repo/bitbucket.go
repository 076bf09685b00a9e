package repo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"strings"

	kerrors "github.com/conneroisu/kreate/internal/errors"
	"github.com/conneroisu/kreate/internal/logging"
)

// negativeSuffix marks a file confirmed absent upstream.
const negativeSuffix = ".does-not-exist"

const branchPrefix = "branch."

// gitRef maps a repo version to a git ref. "branch.<name>" selects a
// branch head and reports pinned=false; anything else is a tag.
func gitRef(version string) (ref string, pinned bool) {
	if branch, ok := strings.CutPrefix(version, branchPrefix); ok {
		return "refs/heads/" + branch, false
	}
	return "refs/tags/" + version, true
}

// bitbucketArchiveURL is the download URL of a whole repo at version.
func bitbucketArchiveURL(base, version string) string {
	ref, _ := gitRef(version)
	return strings.TrimSuffix(base, "/") + "/archive?at=" + url.QueryEscape(ref) + "&format=zip"
}

// bitbucketRawURL is the download URL of one file at version.
func bitbucketRawURL(base, version, path string) string {
	ref, _ := gitRef(version)
	return strings.TrimSuffix(base, "/") + "/raw/" + strings.TrimPrefix(path, "/") + "?at=" + url.QueryEscape(ref)
}

// rawFileRepo downloads single files on demand and keeps each one in the
// cache directory. Files the server reports missing leave a marker so
// later lookups skip the request.
type rawFileRepo struct {
	name    string
	dir     string
	base    string
	version string
	fetch   *fetcher
	logger  logging.Logger
}

func (r *rawFileRepo) GetData(ctx context.Context, path string, optional bool) (string, error) {
	local := safeJoin(r.dir, path)

	data, err := os.ReadFile(local)
	if err == nil {
		return string(data), nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("reading cached %s: %w", local, err)
	}
	if fileExists(local + negativeSuffix) {
		return absent(ctx, r.logger, r.name, path, optional)
	}

	target := bitbucketRawURL(r.base, r.version, path)
	var buf bytes.Buffer
	status, err := r.fetch.get(ctx, target, &buf)
	switch {
	case status == http.StatusNotFound:
		if err := writeFile(local+negativeSuffix, ""); err != nil {
			return "", err
		}
		return absent(ctx, r.logger, r.name, path, optional)
	case err != nil:
		return "", kerrors.NewDownloadFailed(r.name, target, err)
	}

	if err := writeFile(local, buf.String()); err != nil {
		return "", err
	}
	r.logger.Debug(ctx, "downloaded repo file", "repo", r.name, "path", path)
	return buf.String(), nil
}

func (r *rawFileRepo) SaveRepoFile(_ context.Context, path string, data string) error {
	local := safeJoin(r.dir, path)
	os.Remove(local + negativeSuffix)
	return writeFile(local, data)
}
