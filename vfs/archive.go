package vfs

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/interline-io/log"
	"github.com/spf13/afero"
)

const archiveRoot = string(filepath.Separator)

// OpenArchive opens a zip archive as a writable filesystem rooted at "/".
// Existing entries are loaded into memory; a missing archive starts empty.
// Changes are staged in memory and written back to archivePath on Close,
// after which the handle is released. A failed write leaves the handle open.
func OpenArchive(archivePath string) (*FS, error) {
	mem := afero.NewMemMapFs()
	if err := loadArchive(mem, archivePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("vfs: open archive %s: %w", archivePath, err)
	}
	return newFS("zip:"+archivePath, mem, func(fsys afero.Fs) error {
		if err := writeArchive(fsys, archivePath); err != nil {
			return fmt.Errorf("vfs: write archive %s: %w", archivePath, err)
		}
		log.Debugf("vfs: wrote archive %s", archivePath)
		return nil
	}), nil
}

func loadArchive(dst afero.Fs, archivePath string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer r.Close()

	// Directory times are applied last; creating children touches them
	dirTimes := map[string]time.Time{}
	for _, zf := range r.File {
		name, err := entryName(zf.Name)
		if err != nil {
			return err
		}
		if name == archiveRoot {
			continue
		}
		if zf.FileInfo().IsDir() {
			if err := dst.MkdirAll(name, 0o755); err != nil {
				return err
			}
			dirTimes[name] = zf.Modified
			continue
		}
		if err := dst.MkdirAll(filepath.Dir(name), 0o755); err != nil {
			return err
		}
		if err := copyEntry(dst, name, zf); err != nil {
			return err
		}
		if err := dst.Chtimes(name, zf.Modified, zf.Modified); err != nil {
			return err
		}
	}
	for name, mtime := range dirTimes {
		if err := dst.Chtimes(name, mtime, mtime); err != nil {
			return err
		}
	}
	return nil
}

func copyEntry(dst afero.Fs, name string, zf *zip.File) error {
	rc, err := zf.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return afero.WriteReader(dst, name, rc)
}

// entryName maps a zip entry name to an absolute name in the staging filesystem.
func entryName(zipName string) (string, error) {
	for _, seg := range strings.Split(zipName, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: archive entry %q", ErrOutsideRoot, zipName)
		}
	}
	return filepath.FromSlash(path.Clean("/" + zipName)), nil
}

func writeArchive(src afero.Fs, archivePath string) error {
	tmp, err := os.CreateTemp(filepath.Dir(archivePath), ".vfs-*.zip")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	ok := false
	defer func() {
		if !ok {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	zw := zip.NewWriter(tmp)
	walkErr := afero.Walk(src, archiveRoot, func(name string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if name == archiveRoot {
			return nil
		}
		return addEntry(zw, src, name, info)
	})
	if walkErr != nil {
		return walkErr
	}
	if err := zw.Close(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, archivePath); err != nil {
		return err
	}
	ok = true
	return nil
}

func addEntry(zw *zip.Writer, src afero.Fs, name string, info os.FileInfo) error {
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = strings.TrimPrefix(filepath.ToSlash(name), "/")
	hdr.Modified = info.ModTime()
	if info.IsDir() {
		hdr.Name += "/"
		hdr.Method = zip.Store
		_, err := zw.CreateHeader(hdr)
		return err
	}
	hdr.Method = zip.Deflate
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	f, err := src.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}
