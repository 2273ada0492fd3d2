// Package logging builds the daemon's zap logger. Every entry goes to
// stderr and, as one console-encoded line, into the in-memory log ring
// that the HTTP log endpoints serve.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	cfg "github.com/tamzrod/ncm-linkd/internal/config"
)

// Options controls logger construction.
type Options struct {
	Level  string // debug | info | warn | error
	Format string // console | json

	// Ring receives a copy of every entry. Nil disables the tee.
	Ring zapcore.WriteSyncer

	// Output defaults to stderr.
	Output zapcore.WriteSyncer
}

// FromConfig maps the normalized log config onto Options.
func FromConfig(lc cfg.LogConfig, ring zapcore.WriteSyncer) Options {
	return Options{Level: lc.Level, Format: lc.Format, Ring: ring}
}

// New builds the root logger.
func New(opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		l, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("logging: %w", err)
		}
		level = l
	}

	out := opts.Output
	if out == nil {
		out = zapcore.Lock(os.Stderr)
	}

	var enc zapcore.Encoder
	switch opts.Format {
	case "", "console":
		enc = zapcore.NewConsoleEncoder(consoleEncoderConfig())
	case "json":
		enc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	default:
		return nil, fmt.Errorf("logging: unknown format %q", opts.Format)
	}

	cores := []zapcore.Core{zapcore.NewCore(enc, out, level)}
	if opts.Ring != nil {
		ringCfg := consoleEncoderConfig()
		ringCfg.LevelKey = "L"
		ringCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(ringCfg), opts.Ring, level))
	}

	return zap.New(zapcore.NewTee(cores...)), nil
}

func consoleEncoderConfig() zapcore.EncoderConfig {
	ec := zap.NewDevelopmentEncoderConfig()
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.CallerKey = ""
	ec.StacktraceKey = ""
	return ec
}
