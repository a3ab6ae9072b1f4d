package handlers

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"time"

	"github.com/interline-io/transitland-embed/launch"
	"github.com/spf13/afero"
	"github.com/tidwall/tinylru"
)

// DefaultCacheSize is the number of file bodies kept by Files.
const DefaultCacheSize = 256

// Files serves the base dir of cfg. It has the HandlerFactory signature.
//
// Outside development mode file bodies are kept in an LRU cache. Entries are
// checked against the file's mod time and size on every request, so rewriting
// a file is picked up as long as its mod time changes.
func Files(cfg *launch.Config) (http.Handler, error) {
	root, err := cfg.BaseDir()
	if err != nil {
		return nil, err
	}
	var hfs http.FileSystem = afero.NewHttpFs(root.FS).Dir(root.Name)
	if !cfg.IsDevelopment() {
		c := &cachedFS{fs: hfs}
		c.cache.Resize(DefaultCacheSize)
		hfs = c
	}
	return http.FileServer(hfs), nil
}

type cacheEntry struct {
	modTime time.Time
	size    int64
	data    []byte
}

type cachedFS struct {
	fs    http.FileSystem
	cache tinylru.LRU
}

func (c *cachedFS) Open(name string) (http.File, error) {
	f, err := c.fs.Open(name)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.IsDir() {
		return f, nil
	}
	if v, ok := c.cache.Get(name); ok {
		ent := v.(*cacheEntry)
		if ent.modTime.Equal(fi.ModTime()) && ent.size == fi.Size() {
			f.Close()
			return newMemFile(ent.data, fi), nil
		}
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		return nil, err
	}
	c.cache.Set(name, &cacheEntry{modTime: fi.ModTime(), size: fi.Size(), data: data})
	return newMemFile(data, fi), nil
}

type memFile struct {
	*bytes.Reader
	fi fs.FileInfo
}

func newMemFile(data []byte, fi fs.FileInfo) *memFile {
	return &memFile{Reader: bytes.NewReader(data), fi: fi}
}

func (f *memFile) Close() error {
	return nil
}

func (f *memFile) Readdir(count int) ([]fs.FileInfo, error) {
	return nil, errors.New("handlers: not a directory")
}

func (f *memFile) Stat() (fs.FileInfo, error) {
	return f.fi, nil
}
