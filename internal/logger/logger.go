package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kailas-cloud/nqdecode/internal/version"
)

// Options selects the logger flavour.
type Options struct {
	Env   string // prod: JSON; local, dev, docker: colored console
	Level string // debug, info, warn, error; empty keeps the env default
	Mode  string // decode mode, attached to every entry
}

// batchModes write per-window warnings that must not be sampled away.
var batchModes = map[string]bool{"batch": true, "submit": true}

// New creates a zap logger.
func New(opts Options) (*zap.Logger, error) {
	var cfg zap.Config
	switch opts.Env {
	case "prod":
		cfg = zap.NewProductionConfig()
		if batchModes[opts.Mode] {
			cfg.Sampling = nil
		}
	case "local", "dev", "docker":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("unknown environment %q for logger", opts.Env)
	}

	if opts.Level != "" {
		level, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(level)
	}

	fields := map[string]any{"service": "nqdecode", "version": version.Version}
	if opts.Mode != "" {
		fields["mode"] = opts.Mode
	}
	cfg.InitialFields = fields

	l, err := cfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return l, nil
}
