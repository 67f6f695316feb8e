package neurobus

import (
	"context"

	"github.com/TIVerse/neurobus/internal/failure"
)

// ProviderReporter adapts an internal/failure.Provider to FailureReporter,
// so a Bus can be wired to structured logging (or any other Provider
// backend) without the dispatcher or bus packages knowing about it.
type ProviderReporter struct {
	provider failure.Provider
}

// NewProviderReporter wraps provider as a FailureReporter. A nil provider
// falls back to failure.NoOpProvider.
func NewProviderReporter(provider failure.Provider) *ProviderReporter {
	if provider == nil {
		provider = failure.NewNoOpProvider()
	}
	return &ProviderReporter{provider: provider}
}

func (r *ProviderReporter) ReportHandlerFailure(subID SubscriptionID, e *Event, err error) {
	r.provider.CaptureError(context.Background(), err, failure.SeverityError, map[string]any{
		"subscription_id": subID,
		"event_id":        e.ID(),
		"topic":           e.Topic(),
	})
}

func (r *ProviderReporter) ReportSeamFailure(seam string, e *Event, err error) {
	r.provider.CaptureError(context.Background(), err, failure.SeverityWarning, map[string]any{
		"seam":     seam,
		"event_id": e.ID(),
		"topic":    e.Topic(),
	})
}
