package chaff

import (
	"io"
	"log/slog"

	"github.com/quietriver/chaff/internal/config"
	"github.com/quietriver/chaff/internal/fetch"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	logger    *slog.Logger
	version   string
	fetcher   fetch.Fetcher
	output    io.Writer
	overrides []func(*config.Config)
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the banner, the status
// server and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithFetcher replaces the HTTP fetcher. Intended for tests and for
// embedding the engine behind a custom transport. Overrides --dry-run.
func WithFetcher(f fetch.Fetcher) Option {
	return func(o *resolvedOptions) { o.fetcher = f }
}

// WithOutput redirects the rendered terminal output (banner, event lines,
// summary). Pass io.Discard to silence it. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(o *resolvedOptions) { o.output = w }
}

// WithConfigOverride registers a function that mutates the loaded config
// before validation. CLI flags use this to take precedence over env vars.
// Multiple overrides are applied in registration order.
func WithConfigOverride(fn func(*config.Config)) Option {
	return func(o *resolvedOptions) { o.overrides = append(o.overrides, fn) }
}
