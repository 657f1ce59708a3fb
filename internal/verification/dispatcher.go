package verification

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Flow string

const (
	FlowCreditToMain Flow = "credit_to_main"
	FlowBeneficiary  Flow = "beneficiary"
)

// Message carries everything the notification layer needs to deliver a code.
type Message struct {
	UserID             uuid.UUID       `json:"user_id"`
	RecipientEmail     string          `json:"recipient_email"`
	RecipientName      string          `json:"recipient_name"`
	Code               string          `json:"code"`
	Amount             decimal.Decimal `json:"amount"`
	SourceAccountLabel string          `json:"source_account_label"`
	Flow               Flow            `json:"flow"`
	ExpiresAt          time.Time       `json:"expires_at"`
}

// Dispatcher hands a code to the notification layer. A nil error means the
// message was accepted for delivery, not that it was delivered.
type Dispatcher interface {
	Send(ctx context.Context, msg Message) error
}
