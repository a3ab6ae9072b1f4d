package launch

import (
	"path/filepath"

	"github.com/interline-io/transitland-embed/vfs"
	"github.com/spf13/pflag"
)

// AddFlags binds the builder settings to command line flags.
// Defaults are the builder's current values.
func (b *Builder) AddFlags(fl *pflag.FlagSet) {
	fl.StringVar(&b.cfg.address, "address", b.cfg.address, "Bind address (empty for all interfaces)")
	fl.IntVar(&b.cfg.port, "port", b.cfg.port, "Port to listen on (0 for an ephemeral port)")
	fl.BoolVar(&b.cfg.development, "development", b.cfg.development, "Enable development mode")
	fl.DurationVar(&b.cfg.shutdownTimeout, "shutdown-timeout", b.cfg.shutdownTimeout, "Graceful shutdown timeout")
	fl.Var(&baseDirValue{b: b}, "base-dir", "Directory on the host filesystem to serve from")
}

type baseDirValue struct {
	b *Builder
}

func (v *baseDirValue) String() string {
	if v.b == nil || !v.b.cfg.hasBaseDir {
		return ""
	}
	return v.b.cfg.baseDir.Name
}

func (v *baseDirValue) Set(s string) error {
	abs, err := filepath.Abs(s)
	if err != nil {
		return err
	}
	v.b.cfg.baseDir = vfs.HostPath(abs)
	v.b.cfg.hasBaseDir = true
	return nil
}

func (v *baseDirValue) Type() string {
	return "path"
}
