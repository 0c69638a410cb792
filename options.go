package sptree

import "log/slog"

type options struct {
	logger *Logger
}

// Option configures factory and load behavior.
type Option func(*options)

// WithLogger configures structured logging for index operations. Pass nil
// to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel installs a text logger at the given level. Convenience
// wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{logger: NoopLogger()}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
