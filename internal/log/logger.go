// SPDX-License-Identifier: MIT

package log

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config selects the level, sink and service tag of the process logger. Zero
// values mean info, stdout and "lockd".
type Config struct {
	Level   string
	Output  io.Writer
	Service string
}

var (
	mu   sync.RWMutex
	base = newBase(Config{})
)

// Configure swaps the process logger; the last call wins. Loggers already
// derived with WithComponent keep the settings they were created with, so the
// daemon configures before constructing its components.
func Configure(cfg Config) {
	l := newBase(cfg)
	mu.Lock()
	base = l
	mu.Unlock()
}

func newBase(cfg Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	level := zerolog.InfoLevel
	if cfg.Level != "" {
		if parsed, err := zerolog.ParseLevel(cfg.Level); err == nil {
			level = parsed
		}
	}
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	service := cfg.Service
	if service == "" {
		service = "lockd"
	}

	return zerolog.New(out).Level(level).With().
		Timestamp().
		Str("service", service).
		Logger()
}

// Base returns the process logger.
func Base() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// WithComponent derives a logger tagged with the owning subsystem.
func WithComponent(component string) zerolog.Logger {
	return Base().With().Str(FieldComponent, component).Logger()
}

// Derive builds a child logger carrying whatever fields the caller attaches.
func Derive(attach func(*zerolog.Context)) zerolog.Logger {
	ctx := Base().With()
	if attach != nil {
		attach(&ctx)
	}
	return ctx.Logger()
}
