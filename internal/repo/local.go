package repo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/conneroisu/kreate/internal/logging"
)

// localDir serves files straight from a directory.
type localDir struct {
	name   string
	dir    string
	logger logging.Logger
}

func newLocalDir(name, dir string, logger logging.Logger) *localDir {
	return &localDir{name: name, dir: dir, logger: logger}
}

func (l *localDir) GetData(ctx context.Context, path string, optional bool) (string, error) {
	data, err := os.ReadFile(safeJoin(l.dir, path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return absent(ctx, l.logger, l.name, path, optional)
		}
		return "", fmt.Errorf("reading %s from repo %s: %w", path, l.name, err)
	}
	return string(data), nil
}

func (l *localDir) SaveRepoFile(_ context.Context, path string, data string) error {
	return writeFile(safeJoin(l.dir, path), data)
}

func writeFile(full, data string) error {
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", full, err)
	}
	if err := os.WriteFile(full, []byte(data), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", full, err)
	}
	return nil
}
