package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type TransferEventType string

const (
	TransferEventCreated      TransferEventType = "created"
	TransferEventCodeIssued   TransferEventType = "code_issued"
	TransferEventCodeAccepted TransferEventType = "code_accepted"
	TransferEventCodeRejected TransferEventType = "code_rejected"
	TransferEventBlocked      TransferEventType = "blocked"
	TransferEventCompleted    TransferEventType = "completed"
	TransferEventCancelled    TransferEventType = "cancelled"
)

type TransferEvent struct {
	ID         uuid.UUID
	TransferID uuid.UUID
	EventType  TransferEventType
	Actor      string
	Payload    json.RawMessage
	CreatedAt  time.Time
}
