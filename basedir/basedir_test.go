package basedir

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/interline-io/transitland-embed/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type newBuilder func(t *testing.T) *Builder

func builders() map[string]newBuilder {
	return map[string]newBuilder{
		"host": func(t *testing.T) *Builder {
			return New(vfs.HostPath(t.TempDir()))
		},
		"mem": func(t *testing.T) *Builder {
			b, err := NewMem("/fixture")
			require.NoError(t, err)
			return b
		},
		"archive": func(t *testing.T) *Builder {
			b, err := NewArchive(filepath.Join(t.TempDir(), "fixture.zip"))
			require.NoError(t, err)
			return b
		},
	}
}

func TestBuilder(t *testing.T) {
	for name, nb := range builders() {
		t.Run(name, func(t *testing.T) {
			testBuilder(t, nb)
		})
	}
}

func testBuilder(t *testing.T, nb newBuilder) {
	t.Run("file creates missing parents", func(t *testing.T) {
		b := nb(t)
		defer b.Close()
		p, err := b.File("x/y/z.txt")
		require.NoError(t, err)
		ok, err := p.Dir().IsDir()
		require.NoError(t, err)
		assert.True(t, ok)
		exists, err := p.Exists()
		require.NoError(t, err)
		assert.False(t, exists, "file should not be created")
	})

	t.Run("write file creates missing parents", func(t *testing.T) {
		b := nb(t)
		defer b.Close()
		p, err := b.WriteFile("a/b/c.txt", "hello")
		require.NoError(t, err)
		data, err := p.ReadFile()
		require.NoError(t, err)
		assert.Equal(t, "hello", string(data))
	})

	t.Run("write file overwrites and moves mod time forward", func(t *testing.T) {
		b := nb(t)
		defer b.Close()
		p, err := b.WriteFile("f.txt", "first content, longer")
		require.NoError(t, err)
		// in-memory FileInfo values track the live entry, so keep the time itself
		before := modTime(t, p)

		_, err = b.WriteFile("f.txt", "second")
		require.NoError(t, err)
		data, err := p.ReadFile()
		require.NoError(t, err)
		assert.Equal(t, "second", string(data))

		after := modTime(t, p)
		assert.True(t, after.After(before), "%s not after %s", after, before)
	})

	t.Run("repeated rewrites keep moving mod time forward", func(t *testing.T) {
		b := nb(t)
		defer b.Close()
		p, err := b.WriteFile("f.txt", "0")
		require.NoError(t, err)
		for i := 1; i <= 5; i++ {
			before := modTime(t, p)
			_, err := b.WriteFile("f.txt", fmt.Sprintf("%d", i))
			require.NoError(t, err)
			after := modTime(t, p)
			assert.True(t, after.After(before), "rewrite %d: %s not after %s", i, after, before)
		}
	})

	t.Run("dir", func(t *testing.T) {
		b := nb(t)
		defer b.Close()
		p, err := b.Dir("a/d")
		require.NoError(t, err)
		ok, err := p.IsDir()
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("dir fails when it exists", func(t *testing.T) {
		b := nb(t)
		defer b.Close()
		_, err := b.Dir("d")
		require.NoError(t, err)
		_, err = b.Dir("d")
		assert.ErrorIs(t, err, fs.ErrExist)
	})

	t.Run("parent collides with file", func(t *testing.T) {
		b := nb(t)
		defer b.Close()
		_, err := b.WriteFile("a", "file")
		require.NoError(t, err)
		_, err = b.WriteFile("a/b/c.txt", "x")
		assert.ErrorIs(t, err, ErrNotDir)
		_, err = b.Dir("a/d")
		assert.ErrorIs(t, err, ErrNotDir)
	})

	t.Run("paths outside root", func(t *testing.T) {
		b := nb(t)
		defer b.Close()
		_, err := b.File("../escape.txt")
		assert.ErrorIs(t, err, vfs.ErrOutsideRoot)
		_, err = b.WriteFile("/abs.txt", "x")
		assert.ErrorIs(t, err, vfs.ErrOutsideRoot)
		_, err = b.Dir("a/../../up")
		assert.ErrorIs(t, err, vfs.ErrOutsideRoot)
	})

	t.Run("build returns root", func(t *testing.T) {
		b := nb(t)
		defer b.Close()
		root := b.Build()
		p, err := b.WriteFile("f", "x")
		require.NoError(t, err)
		assert.Equal(t, root, b.Build())
		assert.Equal(t, root.Join("f"), p)
	})

	t.Run("use after close", func(t *testing.T) {
		b := nb(t)
		require.NoError(t, b.Close())
		_, err := b.File("f")
		assert.ErrorIs(t, err, vfs.ErrClosed)
		assert.NoError(t, b.Close())
	})
}

func modTime(t *testing.T, p vfs.Path) time.Time {
	t.Helper()
	fi, err := p.Stat()
	require.NoError(t, err)
	return fi.ModTime()
}

func TestBuilder_RewriteAfterArchiveReopen(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "fixture.zip")
	b, err := NewArchive(archivePath)
	require.NoError(t, err)
	p, err := b.WriteFile("a.txt", "first")
	require.NoError(t, err)
	// a stored time ahead of the clock forces the explicit bump
	future := time.Now().Add(time.Hour).Truncate(time.Second)
	require.NoError(t, p.FS.Chtimes(p.Name, future, future))
	require.NoError(t, b.Close())

	b, err = NewArchive(archivePath)
	require.NoError(t, err)
	defer b.Close()
	p, err = b.File("a.txt")
	require.NoError(t, err)
	before := modTime(t, p)
	assert.True(t, before.Equal(future), "got %s", before)

	_, err = b.WriteFile("a.txt", "second")
	require.NoError(t, err)
	after := modTime(t, p)
	assert.True(t, after.After(before), "%s not after %s", after, before)
	data, err := p.ReadFile()
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestBuilder_CloseArchiveFailure(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	require.NoError(t, os.Mkdir(dir, 0o755))
	b, err := NewArchive(filepath.Join(dir, "fixture.zip"))
	require.NoError(t, err)
	_, err = b.WriteFile("a.txt", "a")
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(dir))
	assert.Error(t, b.Close())
	_, err = b.File("a.txt")
	assert.NoError(t, err, "builder stays open after a failed close")

	require.NoError(t, os.Mkdir(dir, 0o755))
	require.NoError(t, b.Close())
	_, err = b.File("a.txt")
	assert.ErrorIs(t, err, vfs.ErrClosed)
}

func TestBuilder_CloseDefault(t *testing.T) {
	b, err := NewTemp("basedir-test-*")
	require.NoError(t, err)
	defer b.RemoveAll()
	root := b.Build()
	assert.Same(t, vfs.Default(), root.FS)
	_, err = b.WriteFile("keep.txt", "kept")
	require.NoError(t, err)
	require.NoError(t, b.Close())

	// the host filesystem stays usable
	assert.False(t, vfs.Default().IsClosed())
	data, err := os.ReadFile(filepath.Join(root.Name, "keep.txt"))
	require.NoError(t, err)
	assert.Equal(t, "kept", string(data))
	other := filepath.Join(t.TempDir(), "other.txt")
	require.NoError(t, os.WriteFile(other, []byte("ok"), 0o644))
}

func TestBuilder_CloseVirtual(t *testing.T) {
	t.Run("mem", func(t *testing.T) {
		b, err := NewMem("/root")
		require.NoError(t, err)
		p, err := b.WriteFile("a.txt", "a")
		require.NoError(t, err)
		require.NoError(t, b.Close())
		_, err = p.ReadFile()
		assert.ErrorIs(t, err, vfs.ErrClosed)
	})

	t.Run("archive", func(t *testing.T) {
		archivePath := filepath.Join(t.TempDir(), "fixture.zip")
		b, err := NewArchive(archivePath)
		require.NoError(t, err)
		p, err := b.WriteFile("a/b/c.txt", "hello")
		require.NoError(t, err)
		require.NoError(t, b.Close())
		_, err = p.Stat()
		assert.ErrorIs(t, err, vfs.ErrClosed)

		// contents were committed to the archive
		b2, err := NewArchive(archivePath)
		require.NoError(t, err)
		defer b2.Close()
		p2, err := b2.File("a/b/c.txt")
		require.NoError(t, err)
		data, err := p2.ReadFile()
		require.NoError(t, err)
		assert.Equal(t, "hello", string(data))
	})
}

func TestBuilder_Scenario(t *testing.T) {
	tmp := t.TempDir()
	b := New(vfs.HostPath(tmp))

	p, err := b.WriteFile("a/b/c.txt", "hello")
	require.NoError(t, err)
	data, err := os.ReadFile(p.Name)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	d, err := b.Dir("a/d")
	require.NoError(t, err)
	entries, err := os.ReadDir(d.Name)
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.Equal(t, tmp, b.Build().Name)
	require.NoError(t, b.Close())

	_, err = os.Stat(tmp)
	assert.NoError(t, err)
}
