package events

import (
	"context"
	"log"
	"time"

	"shiftpay/internal/money"
)

// Event types consumed by the payout ledger, tax reporting, notification and
// analytics collaborators.
const (
	EscrowCaptured            = "escrow.captured"
	EscrowReleased            = "escrow.released"
	EscrowRefunded            = "escrow.refunded"
	EscrowFailed              = "escrow.failed"
	ReconciliationOK          = "reconciliation.ok"
	ReconciliationDiscrepancy = "reconciliation.discrepancy"
)

// Event is the envelope handed to external collaborators when a transition
// completes or a reconciliation run finishes.
type Event struct {
	Type       string      `json:"type"`
	EscrowID   string      `json:"escrow_id,omitempty"`
	ShiftID    string      `json:"shift_id,omitempty"`
	WorkerID   string      `json:"worker_id,omitempty"`
	BusinessID string      `json:"business_id,omitempty"`
	Currency   string      `json:"currency"`
	Amount     money.Cents `json:"amount"`

	// Release/refund splits.
	WorkerPayout     money.Cents `json:"worker_payout,omitempty"`
	PlatformFee      money.Cents `json:"platform_fee,omitempty"`
	RefundToBusiness money.Cents `json:"refund_to_business,omitempty"`

	// Reconciliation figures.
	Expected money.Cents `json:"expected,omitempty"`
	Actual   money.Cents `json:"actual,omitempty"`
	Delta    money.Cents `json:"delta,omitempty"`

	PartialFailure bool   `json:"partial_failure,omitempty"`
	Reason         string `json:"reason,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}

// Emitter is the internal collaborator boundary. Emitting is best-effort
// from the ledger's point of view: a failed emit never rolls back a
// completed transition.
type Emitter interface {
	Emit(ctx context.Context, event Event)
}

// LogEmitter writes events to the process log. The production deployment
// swaps in the event-bus client behind the same interface.
type LogEmitter struct{}

func (LogEmitter) Emit(ctx context.Context, event Event) {
	log.Printf("📤 event %s escrow=%s amount=%d %s", event.Type, event.EscrowID, event.Amount, event.Currency)
}
