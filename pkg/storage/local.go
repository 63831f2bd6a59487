package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// local stores staged files on the host filesystem under a base directory.
type local struct {
	base string
}

func newLocalDriver(cfg *LocalConfig) *local {
	return &local{base: filepath.Clean(cfg.BasePath)}
}

func (l *local) connect(ctx context.Context) error {
	return os.MkdirAll(l.base, 0o755)
}

func (l *local) reset() error { return nil }

func (l *local) close() error { return nil }

func (l *local) join(key string) string {
	if key == "" {
		return l.base
	}
	return filepath.Join(l.base, filepath.FromSlash(key))
}

func (l *local) mkdirs(ctx context.Context, dirs []string) error {
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// write stages data in a hidden temp file beside the target and renames it
// into place, so readers never observe a partial file.
func (l *local) write(ctx context.Context, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// move renames src to dst. Rename is atomic on a single filesystem, so the
// file is present at exactly one of the two paths at every instant.
func (l *local) move(ctx context.Context, src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.Rename(src, dst)
}

func (l *local) read(ctx context.Context, path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (l *local) remove(ctx context.Context, path string) error {
	return os.Remove(path)
}

func (l *local) list(ctx context.Context, dir string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	files := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		files = append(files, FileInfo{
			Name:     e.Name(),
			Size:     info.Size(),
			Modified: info.ModTime().UTC(),
		})
	}
	return files, nil
}

func (l *local) stat(ctx context.Context, path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

// probe writes and removes a marker file to confirm the base path is writable.
func (l *local) probe(ctx context.Context) error {
	info, err := os.Stat(l.base)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", l.base)
	}

	marker := filepath.Join(l.base, fmt.Sprintf(".probe-%d", time.Now().UnixNano()))
	if err := os.WriteFile(marker, nil, 0o644); err != nil {
		return err
	}
	return os.Remove(marker)
}

// The local filesystem has no connection to lose.
func (l *local) isConnErr(err error) bool { return false }
