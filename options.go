package gpusched

import "log/slog"

// Option configures a Scheduler during creation.
//
// Example:
//
//	arb := gpusched.NewArbiter()
//	s, err := gpusched.New(dev, gpusched.WithArbiter(arb), gpusched.WithLabel("main"))
type Option func(*options)

// options holds optional configuration for Scheduler creation.
type options struct {
	arbiter *Arbiter
	fatal   FatalHandler
	logger  *slog.Logger
	label   string
}

// defaultOptions returns the default scheduler options.
func defaultOptions() options {
	return options{
		arbiter: DefaultArbiter(),
		fatal:   ExitOnFatal,
	}
}

// WithArbiter sets the Arbiter that serializes this scheduler's
// submissions. All schedulers submitting to one queue must share it.
// A nil Arbiter keeps the default.
func WithArbiter(a *Arbiter) Option {
	return func(o *options) {
		if a != nil {
			o.arbiter = a
		}
	}
}

// WithFatalHandler replaces ExitOnFatal. The handler should not return;
// if it does, the scheduler panics with the *FatalError.
func WithFatalHandler(h FatalHandler) Option {
	return func(o *options) {
		if h != nil {
			o.fatal = h
		}
	}
}

// WithLogger sets a logger for this scheduler only. Without it the
// scheduler logs through the package logger set by SetLogger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithLabel names the scheduler in log output.
func WithLabel(label string) Option {
	return func(o *options) {
		o.label = label
	}
}
