// Package notify implements the outbound delivery channels used by the
// enrollment notification fan-out.
package notify

import (
	"context"
	"encoding/json"

	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/models"
)

// Channel delivers one notification payload over a single transport. Send
// returns the raw provider response (for bookkeeping) alongside the error;
// both may be set when the provider answered with a structured failure.
type Channel interface {
	Name() models.NotificationChannel
	Send(ctx context.Context, payload models.NotificationPayload) (json.RawMessage, error)
}
