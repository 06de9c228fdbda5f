package arena

import "log/slog"

// DefaultInitialPages is used when no WithInitialPages option is supplied.
const DefaultInitialPages = 1

// config holds the resolved options shared by all three arena variants.
// It is built once at construction time by applying Option functions in
// order; there is no reflective field set, so an unrecognized option is a
// compile error rather than a runtime one.
type config struct {
	initialPages uint32
	logger       *slog.Logger
}

func defaultConfig() config {
	return config{
		initialPages: DefaultInitialPages,
		logger:       discardLogger,
	}
}

// discardLogger is shared by every arena that doesn't set WithLogger, so the
// hot paths never need a nil check before calling a logging method.
var discardLogger = slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// Option configures a SharedArena, Arena, or Pool at construction time.
type Option func(*config)

// WithInitialPages pre-allocates n pages up front instead of the default of
// one, so the first initialPages*63 allocations never touch the system
// allocator.
func WithInitialPages(n uint32) Option {
	return func(c *config) {
		if n == 0 {
			n = 1
		}
		c.initialPages = n
	}
}

// WithPageHint is an alias for WithInitialPages, kept for constructor
// signature parity across the three variants.
func WithPageHint(n uint32) Option {
	return WithInitialPages(n)
}

// WithLogger attaches a structured logger. Page creation and retirement are
// logged at Debug, allocation failures at Warn. A nil logger is treated the
// same as omitting the option.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger == nil {
			logger = discardLogger
		}
		c.logger = logger
	}
}
