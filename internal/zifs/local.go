package zifs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// LocalFilesystem rooted at a base directory on disk.
type LocalFilesystem struct {
	Root string
}

// NewLocalFilesystem returns a Filesystem rooted at root.
func NewLocalFilesystem(root string) *LocalFilesystem {
	return &LocalFilesystem{Root: root}
}

func (fs *LocalFilesystem) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(fs.Root, path)
}

func (fs *LocalFilesystem) ReadFile(_ context.Context, path string) ([]byte, error) {
	return os.ReadFile(fs.resolve(path))
}

func (fs *LocalFilesystem) WriteFile(_ context.Context, path string, data []byte) error {
	return os.WriteFile(fs.resolve(path), data, 0o644)
}

// WriteFileAtomic writes to a sibling temp file, fsyncs it, removes any
// existing target, then renames the temp file over the target.
func (fs *LocalFilesystem) WriteFileAtomic(_ context.Context, path string, data []byte) error {
	full := fs.resolve(path)
	dir := filepath.Dir(full)
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.tmp.%s", filepath.Base(full), uuid.NewString()))

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if _, err := os.Stat(full); err == nil {
		if err := os.Remove(full); err != nil {
			os.Remove(tmp)
			return err
		}
	}
	return os.Rename(tmp, full)
}

func (fs *LocalFilesystem) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(fs.resolve(path))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (fs *LocalFilesystem) MkdirAll(_ context.Context, path string) error {
	return os.MkdirAll(fs.resolve(path), 0o755)
}
