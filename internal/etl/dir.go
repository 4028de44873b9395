package etl

import (
	"context"
	"os"
	"path"
	"path/filepath"

	"github.com/pkg/errors"
)

// DirStore serves object keys as paths below a local root directory.
type DirStore struct {
	Root string
}

func NewDirStore(root string) *DirStore {
	return &DirStore{Root: root}
}

func (d *DirStore) path(key string) string {
	// Cleaning against "/" keeps keys from escaping the root.
	return filepath.Join(d.Root, filepath.FromSlash(path.Clean("/"+key)))
}

func (d *DirStore) GetObject(_ context.Context, key string) ([]byte, error) {
	content, err := os.ReadFile(d.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrObjectNotFound, "file %s", key)
		}
		return nil, errors.Wrapf(err, "reading file %s", key)
	}
	return content, nil
}

func (d *DirStore) CheckConnection(_ context.Context) error {
	info, err := os.Stat(d.Root)
	if err != nil {
		return errors.Wrapf(err, "opening root %s", d.Root)
	}
	if !info.IsDir() {
		return errors.Errorf("root %s is not a directory", d.Root)
	}
	return nil
}

func (d *DirStore) PutObject(_ context.Context, key string, data []byte) error {
	p := d.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return errors.Wrapf(err, "creating directory for %s", key)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return errors.Wrapf(err, "writing file %s", key)
	}
	return nil
}
