package transfer

import (
	"os"
	"path/filepath"
)

// FS is the local-storage capability. Available exists because mobile-style
// deployments can lose access to their storage area at runtime; when it
// returns false the pool must behave as if empty without touching disk.
type FS interface {
	// Abs resolves a pool-relative path to an absolute one.
	Abs(path string) string
	Available() bool
	Exists(path string) bool
	Size(path string) (int64, error)
	Remove(path string) error
	RemoveAll(path string) error
	Rename(oldPath, newPath string) error
	MkdirAll(path string) error
}

// OSFS implements FS on the operating system filesystem, rooted at a base
// directory. All paths passed in are relative to the root.
type OSFS struct {
	root string
}

// NewOSFS creates the storage rooted at dir.
func NewOSFS(dir string) *OSFS {
	return &OSFS{root: dir}
}

// Root returns the base directory.
func (f *OSFS) Root() string {
	return f.root
}

// Abs resolves a pool-relative path to an absolute one.
func (f *OSFS) Abs(path string) string {
	return filepath.Join(f.root, path)
}

// Available reports whether the root directory is reachable.
func (f *OSFS) Available() bool {
	info, err := os.Stat(f.root)

	return err == nil && info.IsDir()
}

// Exists reports whether a file exists under the root.
func (f *OSFS) Exists(path string) bool {
	_, err := os.Stat(f.Abs(path))

	return err == nil
}

// Size returns the size of a file under the root.
func (f *OSFS) Size(path string) (int64, error) {
	info, err := os.Stat(f.Abs(path))
	if err != nil {
		return 0, err
	}

	return info.Size(), nil
}

// Remove deletes a file under the root.
func (f *OSFS) Remove(path string) error {
	return os.Remove(f.Abs(path))
}

// RemoveAll deletes a directory tree under the root.
func (f *OSFS) RemoveAll(path string) error {
	return os.RemoveAll(f.Abs(path))
}

// Rename moves a file under the root.
func (f *OSFS) Rename(oldPath, newPath string) error {
	return os.Rename(f.Abs(oldPath), f.Abs(newPath))
}

// MkdirAll creates a directory tree under the root.
func (f *OSFS) MkdirAll(path string) error {
	return os.MkdirAll(f.Abs(path), 0o755)
}
