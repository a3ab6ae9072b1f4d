package testutil

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/interline-io/transitland-embed/basedir"
	"github.com/interline-io/transitland-embed/embedapp"
	"github.com/interline-io/transitland-embed/handlers"
	"github.com/interline-io/transitland-embed/vfs"
)

// NewTempBaseDir returns a builder on a fresh temp directory.
// The builder is closed and the directory removed when the test ends.
func NewTempBaseDir(t testing.TB) *basedir.Builder {
	t.Helper()
	b, err := basedir.NewTemp("embed-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := b.Close(); err != nil {
			t.Error(err)
		}
		if err := b.RemoveAll(); err != nil {
			t.Error(err)
		}
	})
	return b
}

// StartApp starts app, registers its Close for the end of the test and
// returns its base URL.
func StartApp(t testing.TB, app *embedapp.App) *url.URL {
	t.Helper()
	t.Cleanup(func() { app.Close() })
	u, err := app.Address()
	if err != nil {
		t.Fatal(err)
	}
	return u
}

// NewTestServer serves the files under baseDir and returns the server URL.
func NewTestServer(t testing.TB, baseDir vfs.Path) *url.URL {
	t.Helper()
	return StartApp(t, embedapp.FromHandlerFactory(handlers.Files, embedapp.WithBaseDir(baseDir)))
}

// NewHandlerServer serves h and returns the server URL.
func NewHandlerServer(t testing.TB, h http.Handler) *url.URL {
	t.Helper()
	return StartApp(t, embedapp.FromHandler(h))
}
