package notification

import (
	"context"

	"github.com/josh-kwaku/banking-transfers/internal/logging"
	"github.com/josh-kwaku/banking-transfers/internal/verification"
)

// LogDispatcher stands in for a broker in local development. The code itself
// is only logged when revealCode is set.
type LogDispatcher struct {
	revealCode bool
}

func NewLogDispatcher(revealCode bool) *LogDispatcher {
	return &LogDispatcher{revealCode: revealCode}
}

func (d *LogDispatcher) Send(ctx context.Context, msg verification.Message) error {
	attrs := []any{
		"recipient", msg.RecipientEmail,
		"flow", msg.Flow,
		"amount", msg.Amount.StringFixed(2),
		"source", msg.SourceAccountLabel,
		"expires_at", msg.ExpiresAt,
	}
	if d.revealCode {
		attrs = append(attrs, "code", msg.Code)
	}
	logging.FromContext(ctx).Info("verification code dispatched", attrs...)
	return nil
}
