package vfs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Path is a name on a specific filesystem.
type Path struct {
	FS   *FS
	Name string
}

// HostPath returns a path on the default filesystem.
func HostPath(name string) Path {
	return Path{FS: Default(), Name: name}
}

func (p Path) IsZero() bool {
	return p.FS == nil && p.Name == ""
}

func (p Path) String() string {
	if p.FS == nil || p.FS.IsDefault() {
		return p.Name
	}
	return p.FS.Name() + ":" + p.Name
}

// Join appends elements to the path without any containment check.
func (p Path) Join(elem ...string) Path {
	return Path{FS: p.FS, Name: filepath.Join(append([]string{p.Name}, elem...)...)}
}

// Dir returns the parent directory.
func (p Path) Dir() Path {
	return Path{FS: p.FS, Name: filepath.Dir(p.Name)}
}

// Resolve joins rel onto p and checks the result stays under p.
// Absolute paths and paths escaping p through ".." return ErrOutsideRoot,
// including when p is the filesystem root.
func (p Path) Resolve(rel string) (Path, error) {
	if !filepath.IsLocal(rel) {
		return Path{}, fmt.Errorf("%w: %q", ErrOutsideRoot, rel)
	}
	joined := filepath.Join(p.Name, rel)
	r, err := filepath.Rel(p.Name, joined)
	if err != nil || r == "." || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return Path{}, fmt.Errorf("%w: %q", ErrOutsideRoot, rel)
	}
	return Path{FS: p.FS, Name: joined}, nil
}

func (p Path) Stat() (os.FileInfo, error) {
	return p.FS.Stat(p.Name)
}

func (p Path) Exists() (bool, error) {
	return afero.Exists(p.FS, p.Name)
}

func (p Path) IsDir() (bool, error) {
	return afero.IsDir(p.FS, p.Name)
}

func (p Path) ReadFile() ([]byte, error) {
	return afero.ReadFile(p.FS, p.Name)
}
