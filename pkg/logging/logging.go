// Package logging builds the logr.Logger handed to the library packages.
package logging

import (
	"io"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options select the sink.
type Options struct {
	// Verbosity enables V(n) lines up to n.
	Verbosity int
	// Console forces the human-readable encoder. Otherwise it is used only
	// when Output is a terminal.
	Console bool
	Output  zapcore.WriteSyncer
}

// New returns a zap-backed logger writing to stderr unless Output is set.
func New(opts Options) logr.Logger {
	out := opts.Output
	tty := isTerminal(out)
	if out == nil {
		out = zapcore.Lock(os.Stderr)
		tty = isTerminal(os.Stderr)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if opts.Console || tty {
		encCfg = zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeCaller = nil
		encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		if tty {
			encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	// logr V(n) maps to zap level -n.
	level := zap.NewAtomicLevelAt(zapcore.Level(-opts.Verbosity))
	core := zapcore.NewCore(enc, out, level)
	return zapr.NewLogger(zap.New(core))
}

// Discard returns a logger that drops everything.
func Discard() logr.Logger { return logr.Discard() }

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
