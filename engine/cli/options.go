package cli

import (
	"time"

	"go.uber.org/zap"
)

// Default engine configuration values.
const (
	defaultScannerBuffer = 1 << 20 // 1 MB
	defaultGracePeriod   = 5 * time.Second
)

// EngineOptions holds resolved construction-time configuration for an Engine.
// Use NewEngine with EngineOption functions to customize these values.
type EngineOptions struct {
	// ScannerBuffer is the longest stdout line in bytes that is parsed.
	// Longer lines are captured but not parsed.
	ScannerBuffer int

	// GracePeriod is the duration to wait after SIGTERM before sending SIGKILL.
	GracePeriod time.Duration

	// Logger receives subprocess lifecycle diagnostics.
	Logger *zap.Logger
}

// EngineOption configures an Engine at construction time.
type EngineOption func(*EngineOptions)

// WithScannerBuffer sets the longest stdout line in bytes that is parsed.
// Values <= 0 are ignored.
func WithScannerBuffer(size int) EngineOption {
	return func(o *EngineOptions) {
		if size > 0 {
			o.ScannerBuffer = size
		}
	}
}

// WithGracePeriod sets the duration to wait after SIGTERM before sending SIGKILL.
// Values <= 0 are ignored.
func WithGracePeriod(d time.Duration) EngineOption {
	return func(o *EngineOptions) {
		if d > 0 {
			o.GracePeriod = d
		}
	}
}

// WithLogger sets the engine logger. Nil is ignored.
func WithLogger(l *zap.Logger) EngineOption {
	return func(o *EngineOptions) {
		if l != nil {
			o.Logger = l
		}
	}
}

func resolveEngineOptions(opts ...EngineOption) EngineOptions {
	o := EngineOptions{
		ScannerBuffer: defaultScannerBuffer,
		GracePeriod:   defaultGracePeriod,
		Logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
