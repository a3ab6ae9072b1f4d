// Package vfs provides filesystem handles for test fixtures.
//
// A handle wraps an afero.Fs and records, once at construction, whether it is the
// host's default filesystem. The default handle is a process-wide singleton and is
// never closed. Every other handle (in-memory, zip archive) owns its resources and
// must be closed by whoever created it; after Close every operation fails with
// ErrClosed.
package vfs

import (
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"
)

var (
	ErrClosed       = errors.New("vfs: filesystem is closed")
	ErrCloseDefault = errors.New("vfs: the default filesystem cannot be closed")
	ErrOutsideRoot  = errors.New("vfs: path resolves outside of root")
)

func init() {
	var _ afero.Fs = &FS{}
}

var defaultFS = &FS{
	fs:        afero.NewOsFs(),
	name:      "os",
	isDefault: true,
}

// Default returns the handle for the host filesystem.
// It always returns the same pointer, so handles can be compared with ==.
func Default() *FS {
	return defaultFS
}

// FS is a filesystem handle.
type FS struct {
	fs        afero.Fs
	name      string
	isDefault bool
	onClose   func(afero.Fs) error
	closeMu   sync.Mutex
	closed    atomic.Bool
}

func newFS(name string, fsys afero.Fs, onClose func(afero.Fs) error) *FS {
	return &FS{
		fs:      fsys,
		name:    name,
		onClose: onClose,
	}
}

// NewMemFS returns an empty in-memory filesystem.
func NewMemFS() *FS {
	return newFS("mem", afero.NewMemMapFs(), nil)
}

// IsDefault reports whether this is the host filesystem.
func (f *FS) IsDefault() bool {
	return f.isDefault
}

// IsClosed reports whether Close has been called.
func (f *FS) IsClosed() bool {
	return f.closed.Load()
}

// Close releases the filesystem.
// Closing the default filesystem is refused with ErrCloseDefault.
// Closing an already closed handle is a no-op.
// If releasing fails, for example an archive cannot be written, the handle
// stays open with its contents intact and Close can be retried.
func (f *FS) Close() error {
	if f.isDefault {
		return ErrCloseDefault
	}
	f.closeMu.Lock()
	defer f.closeMu.Unlock()
	if f.closed.Load() {
		return nil
	}
	if f.onClose != nil {
		if err := f.onClose(f.fs); err != nil {
			return err
		}
	}
	f.closed.Store(true)
	return nil
}

func (f *FS) check() error {
	if f.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (f *FS) Name() string {
	return f.name
}

func (f *FS) Create(name string) (afero.File, error) {
	if err := f.check(); err != nil {
		return nil, pathErr("create", name, err)
	}
	return f.fs.Create(name)
}

func (f *FS) Mkdir(name string, perm os.FileMode) error {
	if err := f.check(); err != nil {
		return pathErr("mkdir", name, err)
	}
	return f.fs.Mkdir(name, perm)
}

func (f *FS) MkdirAll(path string, perm os.FileMode) error {
	if err := f.check(); err != nil {
		return pathErr("mkdir", path, err)
	}
	return f.fs.MkdirAll(path, perm)
}

func (f *FS) Open(name string) (afero.File, error) {
	if err := f.check(); err != nil {
		return nil, pathErr("open", name, err)
	}
	return f.fs.Open(name)
}

func (f *FS) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if err := f.check(); err != nil {
		return nil, pathErr("open", name, err)
	}
	return f.fs.OpenFile(name, flag, perm)
}

func (f *FS) Remove(name string) error {
	if err := f.check(); err != nil {
		return pathErr("remove", name, err)
	}
	return f.fs.Remove(name)
}

func (f *FS) RemoveAll(path string) error {
	if err := f.check(); err != nil {
		return pathErr("remove", path, err)
	}
	return f.fs.RemoveAll(path)
}

func (f *FS) Rename(oldname, newname string) error {
	if err := f.check(); err != nil {
		return pathErr("rename", oldname, err)
	}
	return f.fs.Rename(oldname, newname)
}

func (f *FS) Stat(name string) (os.FileInfo, error) {
	if err := f.check(); err != nil {
		return nil, pathErr("stat", name, err)
	}
	return f.fs.Stat(name)
}

func (f *FS) Chmod(name string, mode os.FileMode) error {
	if err := f.check(); err != nil {
		return pathErr("chmod", name, err)
	}
	return f.fs.Chmod(name, mode)
}

func (f *FS) Chown(name string, uid, gid int) error {
	if err := f.check(); err != nil {
		return pathErr("chown", name, err)
	}
	return f.fs.Chown(name, uid, gid)
}

func (f *FS) Chtimes(name string, atime time.Time, mtime time.Time) error {
	if err := f.check(); err != nil {
		return pathErr("chtimes", name, err)
	}
	return f.fs.Chtimes(name, atime, mtime)
}

func pathErr(op, name string, err error) error {
	return &os.PathError{Op: op, Path: name, Err: err}
}
