package ledger

import (
	"context"
	"time"

	"shiftpay/internal/models"
	"shiftpay/internal/money"
)

// Store is the durable storage port for escrow records and the transition
// audit log. Implementations must make UpdateRecordVersion an atomic
// compare-and-swap on the version column; that check is the only
// serialization between concurrent transitions on the same record — no lock
// is ever held across a gateway call.
type Store interface {
	CreateRecord(ctx context.Context, record *models.EscrowRecord) error

	// GetRecord returns escrow.ErrRecordNotFound for unknown ids.
	GetRecord(ctx context.Context, id string) (*models.EscrowRecord, error)

	// UpdateRecordVersion persists record if its durable version still
	// equals expectedVersion, bumping the version by one. A stale version
	// returns escrow.ErrConcurrencyConflict.
	UpdateRecordVersion(ctx context.Context, record *models.EscrowRecord, expectedVersion int64) error

	// RecordAttempt appends one row to the transition audit log.
	RecordAttempt(ctx context.Context, attempt models.TransitionAttempt) error

	// SumHeldTotals returns the sum of amount_breakdown.total over all HELD
	// records in a currency. Read-only; used by reconciliation.
	SumHeldTotals(ctx context.Context, currency string) (money.Cents, error)

	// ListInFlight returns records with a pending transition marker, i.e.
	// transitions interrupted between intent and finalize.
	ListInFlight(ctx context.Context) ([]models.EscrowRecord, error)

	// ListExpiredPending returns PENDING_CAPTURE records whose
	// authorization window has passed.
	ListExpiredPending(ctx context.Context, now time.Time) ([]models.EscrowRecord, error)

	// ListPartialFailures returns terminal records whose secondary business
	// refund still needs an async retry.
	ListPartialFailures(ctx context.Context) ([]models.EscrowRecord, error)
}
