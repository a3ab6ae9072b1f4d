// Package basedir builds throwaway directory trees for tests.
//
// A Builder owns a root path on a vfs filesystem. File, WriteFile and Dir resolve
// their argument against the root and create any missing parent directories, so
// fixtures never fail with "no such directory". Close releases the filesystem
// unless it is the host default filesystem, which is never closed.
//
// Example:
//
//	b, err := basedir.NewTemp("fixture-*")
//	if err != nil {
//		t.Fatal(err)
//	}
//	defer b.Close()
//	b.WriteFile("public/index.html", "<h1>hi</h1>")
//	b.Dir("public/empty")
//	app := embedapp.FromHandlerFactory(handlers.Files, embedapp.WithBaseDir(b.Build()))
package basedir

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/interline-io/log"
	"github.com/interline-io/transitland-embed/vfs"
	"github.com/spf13/afero"
)

const (
	dirPerm  os.FileMode = 0o755
	filePerm os.FileMode = 0o644
)

var ErrNotDir = errors.New("basedir: parent path is not a directory")

// Builder populates a directory tree under a root path.
// It is not safe for concurrent use.
type Builder struct {
	root   vfs.Path
	closed bool
}

// New returns a builder for root. The root itself is not created.
func New(root vfs.Path) *Builder {
	return &Builder{root: root}
}

// NewTemp creates a fresh temporary directory on the host filesystem.
// The directory is not removed by Close; see RemoveAll.
func NewTemp(pattern string) (*Builder, error) {
	dir, err := os.MkdirTemp("", pattern)
	if err != nil {
		return nil, fmt.Errorf("basedir: create temp dir: %w", err)
	}
	return New(vfs.HostPath(dir)), nil
}

// NewMem creates root on a new in-memory filesystem.
func NewMem(root string) (*Builder, error) {
	fsys := vfs.NewMemFS()
	if err := fsys.MkdirAll(root, dirPerm); err != nil {
		return nil, fmt.Errorf("basedir: create root %s: %w", root, err)
	}
	return New(vfs.Path{FS: fsys, Name: filepath.Clean(root)}), nil
}

// NewArchive roots a builder at "/" inside a zip archive.
// The archive is written when the builder is closed.
func NewArchive(archivePath string) (*Builder, error) {
	fsys, err := vfs.OpenArchive(archivePath)
	if err != nil {
		return nil, err
	}
	return New(vfs.Path{FS: fsys, Name: string(filepath.Separator)}), nil
}

// File resolves rel and creates its parent directories.
// The file itself is not created.
func (b *Builder) File(rel string) (vfs.Path, error) {
	return b.usablePath(rel)
}

// WriteFile creates or truncates rel and writes content to it.
// The mod time is set explicitly afterwards and always moves forward, since
// some backends keep the old mod time when an existing entry is overwritten.
func (b *Builder) WriteFile(rel string, content string) (vfs.Path, error) {
	p, err := b.usablePath(rel)
	if err != nil {
		return vfs.Path{}, err
	}
	var prev time.Time
	if fi, err := p.Stat(); err == nil {
		prev = fi.ModTime()
	}
	if err := afero.WriteFile(p.FS, p.Name, []byte(content), filePerm); err != nil {
		return vfs.Path{}, fmt.Errorf("basedir: write %s: %w", rel, err)
	}
	mtime := time.Now()
	if !mtime.After(prev) {
		mtime = prev.Add(time.Millisecond)
	}
	if err := p.FS.Chtimes(p.Name, mtime, mtime); err != nil {
		return vfs.Path{}, fmt.Errorf("basedir: touch %s: %w", rel, err)
	}
	return p, nil
}

// Dir creates exactly one directory at rel. Missing parents are created first.
// It fails with an error matching fs.ErrExist if rel already exists.
func (b *Builder) Dir(rel string) (vfs.Path, error) {
	p, err := b.usablePath(rel)
	if err != nil {
		return vfs.Path{}, err
	}
	if err := p.FS.Mkdir(p.Name, dirPerm); err != nil {
		return vfs.Path{}, fmt.Errorf("basedir: create dir %s: %w", rel, err)
	}
	return p, nil
}

// Build returns the root path.
func (b *Builder) Build() vfs.Path {
	return b.root
}

// Close releases the root filesystem if it is not the host default.
func (b *Builder) Close() error {
	if b.closed {
		return nil
	}
	if b.root.FS != vfs.Default() {
		log.Debugf("basedir: closing %s", b.root)
		if err := b.root.FS.Close(); err != nil {
			return err
		}
	}
	b.closed = true
	return nil
}

// RemoveAll deletes the root and everything below it.
func (b *Builder) RemoveAll() error {
	return b.root.FS.RemoveAll(b.root.Name)
}

func (b *Builder) usablePath(rel string) (vfs.Path, error) {
	if b.closed {
		return vfs.Path{}, fmt.Errorf("basedir: %s: %w", rel, vfs.ErrClosed)
	}
	p, err := b.root.Resolve(rel)
	if err != nil {
		return vfs.Path{}, err
	}
	if err := b.ensureParents(p); err != nil {
		return vfs.Path{}, fmt.Errorf("basedir: create parents of %s: %w", rel, err)
	}
	return p, nil
}

// ensureParents creates every missing directory between root and p.
// Existing non-directory entries on the way are reported as ErrNotDir rather
// than left to the backend, which does not always detect them.
func (b *Builder) ensureParents(p vfs.Path) error {
	parent := p.Dir()
	rel, err := filepath.Rel(b.root.Name, parent.Name)
	if err != nil {
		return err
	}
	cur := b.root
	segments := []string{}
	if rel != "." {
		segments = strings.Split(rel, string(filepath.Separator))
	}
	for i := -1; i < len(segments); i++ {
		if i >= 0 {
			cur = cur.Join(segments[i])
		}
		fi, err := cur.Stat()
		if errors.Is(err, fs.ErrNotExist) {
			break
		}
		if err != nil {
			return err
		}
		if !fi.IsDir() {
			return fmt.Errorf("%w: %s", ErrNotDir, cur)
		}
	}
	return parent.FS.MkdirAll(parent.Name, dirPerm)
}
