package repo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sync"

	"github.com/conneroisu/kreate/internal/logging"
)

var (
	embeddedMu sync.RWMutex
	embedded   = map[string]fs.FS{}
)

// RegisterEmbedded makes fsys available as the package of embedded repos.
// A registered package is also served as a repo of the same name when no
// system.repo entry defines one.
func RegisterEmbedded(name string, fsys fs.FS) {
	embeddedMu.Lock()
	defer embeddedMu.Unlock()
	embedded[name] = fsys
}

func lookupEmbedded(name string) (fs.FS, bool) {
	embeddedMu.RLock()
	defer embeddedMu.RUnlock()
	fsys, ok := embedded[name]
	return fsys, ok
}

// fsRepo serves files from an fs.FS. It is read-only.
type fsRepo struct {
	name   string
	fsys   fs.FS
	logger logging.Logger
}

func (f *fsRepo) GetData(ctx context.Context, p string, optional bool) (string, error) {
	data, err := fs.ReadFile(f.fsys, path.Clean(p))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrInvalid) {
			return absent(ctx, f.logger, f.name, p, optional)
		}
		return "", fmt.Errorf("reading %s from repo %s: %w", p, f.name, err)
	}
	return string(data), nil
}

func (f *fsRepo) SaveRepoFile(context.Context, string, string) error {
	return fmt.Errorf("repo %s is embedded and read-only", f.name)
}
