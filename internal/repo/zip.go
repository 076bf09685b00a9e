package repo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/klauspost/compress/zip"

	kerrors "github.com/conneroisu/kreate/internal/errors"
	"github.com/conneroisu/kreate/internal/logging"
)

// zipSource produces a zip archive on local disk. cleanup, when non-nil,
// removes a temporary download after extraction.
type zipSource func(ctx context.Context, scratch string) (path string, cleanup func(), err error)

// zipRepo extracts an archive into its cache directory on first use and
// serves files from there afterwards.
type zipRepo struct {
	name       string
	dir        string
	source     zipSource
	skipLevels int
	selectRe   *regexp.Regexp
	logger     logging.Logger
}

func (z *zipRepo) GetData(ctx context.Context, path string, optional bool) (string, error) {
	if err := z.ensure(ctx); err != nil {
		return "", err
	}
	data, err := os.ReadFile(safeJoin(z.dir, path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return absent(ctx, z.logger, z.name, path, optional)
		}
		return "", fmt.Errorf("reading %s from repo %s: %w", path, z.name, err)
	}
	return string(data), nil
}

func (z *zipRepo) SaveRepoFile(ctx context.Context, path string, data string) error {
	if err := z.ensure(ctx); err != nil {
		return err
	}
	return writeFile(safeJoin(z.dir, path), data)
}

// ensure makes the cache directory exist, downloading and extracting the
// archive when it does not.
func (z *zipRepo) ensure(ctx context.Context) error {
	if dirExists(z.dir) {
		return nil
	}
	parent := filepath.Dir(z.dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("creating cache directory %s: %w", parent, err)
	}
	scratch, err := os.MkdirTemp(parent, ".extract-*")
	if err != nil {
		return fmt.Errorf("creating extract directory: %w", err)
	}
	defer os.RemoveAll(scratch)

	archive, cleanup, err := z.source(ctx, parent)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	z.logger.Info(ctx, "extracting repo", "repo", z.name, "dir", z.dir)
	if err := extract(archive, scratch, z.skipLevels, z.selectRe); err != nil {
		return fmt.Errorf("extracting repo %s: %w", z.name, err)
	}

	if err := os.Rename(scratch, z.dir); err != nil {
		if dirExists(z.dir) {
			// Another process finished first; its copy is as good as ours.
			return nil
		}
		return fmt.Errorf("moving extracted repo %s into cache: %w", z.name, err)
	}
	return nil
}

// extract unpacks archive into dir, dropping skipLevels leading path
// elements from every entry and keeping only entries matching selectRe.
func extract(archive, dir string, skipLevels int, selectRe *regexp.Regexp) error {
	reader, err := zip.OpenReader(archive)
	if err != nil {
		return err
	}
	defer reader.Close()

	for _, file := range reader.File {
		if file.FileInfo().IsDir() {
			continue
		}
		name := stripLevels(file.Name, skipLevels)
		if name == "" {
			continue
		}
		if selectRe != nil && !selectRe.MatchString(name) {
			continue
		}
		if err := extractFile(file, safeJoin(dir, name)); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(file *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("opening %s: %w", file.Name, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("writing %s: %w", target, err)
	}
	return dst.Close()
}

func stripLevels(name string, levels int) string {
	parts := strings.Split(strings.Trim(name, "/"), "/")
	if levels >= len(parts) {
		return ""
	}
	return strings.Join(parts[levels:], "/")
}

// localZipSource serves an archive that already exists on disk.
func localZipSource(name, path string) zipSource {
	return func(context.Context, string) (string, func(), error) {
		if !fileExists(path) {
			return "", nil, kerrors.NewFileNotFound(name, path)
		}
		return path, nil, nil
	}
}

// urlZipSource downloads an archive into the cache parent directory.
func urlZipSource(name, url string, f *fetcher) zipSource {
	return func(ctx context.Context, scratch string) (string, func(), error) {
		path, err := f.getFile(ctx, url, scratch)
		if err != nil {
			return "", nil, kerrors.NewDownloadFailed(name, url, err)
		}
		return path, func() { os.Remove(path) }, nil
	}
}
