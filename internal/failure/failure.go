// Package failure is the error-reporting seam of §7: a Provider captures
// handler and seam failures without ever propagating them back to a
// publisher. Shaped after bitechdev/pkg/errortracking's Provider interface,
// with zap as the backing sink in place of a hosted tracker.
package failure

import (
	"context"

	"go.uber.org/zap"
)

// Severity mirrors errortracking's four levels.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
	SeverityDebug   Severity = "debug"
)

// Provider captures operational failures for later inspection (logs,
// metrics, an external tracker). Every method must be safe to call from
// arbitrary goroutines and must never block the caller meaningfully.
type Provider interface {
	CaptureError(ctx context.Context, err error, severity Severity, extra map[string]any)
	CaptureMessage(ctx context.Context, message string, severity Severity, extra map[string]any)
	Flush(timeoutSeconds int) bool
	Close() error
}

// NoOpProvider discards every report. It is the default when no Provider
// is configured.
type NoOpProvider struct{}

func NewNoOpProvider() *NoOpProvider { return &NoOpProvider{} }

func (NoOpProvider) CaptureError(context.Context, error, Severity, map[string]any)   {}
func (NoOpProvider) CaptureMessage(context.Context, string, Severity, map[string]any) {}
func (NoOpProvider) Flush(int) bool                                                  { return true }
func (NoOpProvider) Close() error                                                    { return nil }

// ZapProvider writes every capture to a zap logger as a structured entry.
type ZapProvider struct {
	log *zap.SugaredLogger
}

// NewZapProvider builds a ZapProvider over an existing logger. A nil logger
// falls back to zap.NewNop().
func NewZapProvider(l *zap.Logger) *ZapProvider {
	if l == nil {
		l = zap.NewNop()
	}
	return &ZapProvider{log: l.Sugar()}
}

func (p *ZapProvider) CaptureError(_ context.Context, err error, severity Severity, extra map[string]any) {
	if err == nil {
		return
	}
	p.log.Errorw(err.Error(), "severity", string(severity), "extra", extra)
}

func (p *ZapProvider) CaptureMessage(_ context.Context, message string, severity Severity, extra map[string]any) {
	if message == "" {
		return
	}
	p.log.Infow(message, "severity", string(severity), "extra", extra)
}

func (p *ZapProvider) Flush(int) bool {
	_ = p.log.Sync()
	return true
}

func (p *ZapProvider) Close() error {
	return p.log.Sync()
}
