// Package logger constructs the structured logger shared by every Ignite
// component. All internal packages accept a *zap.SugaredLogger through their
// Config struct rather than reaching for a global, so tests can inject
// zaptest loggers and embedding applications can inject their own.
package logger

import "go.uber.org/zap"

// New builds a production-configured, sugared zap logger scoped to service.
// It falls back to a no-op logger if the production config cannot build
// (this only happens when the process has no writable stderr, e.g. some
// sandboxes), so that logger construction never prevents the engine from
// opening.
func New(service string) *zap.SugaredLogger {
	zl, err := zap.NewProduction()
	if err != nil {
		zl = zap.NewNop()
	}
	return zl.Sugar().With("service", service)
}
