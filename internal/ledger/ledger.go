package ledger

import (
	"context"
	"fmt"
	"time"

	"shiftpay/internal/escrow"
	"shiftpay/internal/events"
	"shiftpay/internal/gateway"
	"shiftpay/internal/models"
	"shiftpay/internal/money"
)

// Config tunes the gateway retry policy.
type Config struct {
	// MaxAttempts bounds how often a transient gateway failure is retried
	// before it is escalated to a permanent one.
	MaxAttempts int
	// RetryBaseDelay is the first backoff delay; it doubles per attempt.
	RetryBaseDelay time.Duration
}

func DefaultConfig() Config {
	return Config{MaxAttempts: 5, RetryBaseDelay: 200 * time.Millisecond}
}

// Ledger owns the escrow state machine. All status transitions and their
// persistence invariants live here; calculators stay pure and the gateway
// stays behind its port.
//
// Every transition follows the same two-phase discipline: write the intent
// durably (with the idempotency keys the gateway calls will use), perform
// the gateway calls without holding any storage lock, then finalize. A crash
// between the phases leaves a pending-transition marker that the recovery
// sweep resumes with the same keys.
type Ledger struct {
	store   Store
	gateway gateway.PaymentGateway
	emitter events.Emitter
	nowFn   func() time.Time
	cfg     Config
}

func New(store Store, gw gateway.PaymentGateway, emitter events.Emitter, cfg Config) *Ledger {
	return &Ledger{
		store:   store,
		gateway: gw,
		emitter: emitter,
		nowFn:   time.Now,
		cfg:     cfg,
	}
}

// WithClock overrides the ledger's clock. Test hook.
func (l *Ledger) WithClock(nowFn func() time.Time) *Ledger {
	l.nowFn = nowFn
	return l
}

// idempotencyKey derives the deterministic key for one gateway call of one
// transition. Retries of the same transition always produce the same keys,
// so the gateway deduplicates the side effect.
func idempotencyKey(recordID, transition, call string) string {
	return fmt.Sprintf("escrow:%s:%s:%s", recordID, transition, call)
}

// CreateRecord persists a new PENDING_CAPTURE record for a confirmed
// booking. The exchange rate is locked from this moment on.
func (l *Ledger) CreateRecord(ctx context.Context, record *models.EscrowRecord) error {
	if !record.Amounts.ConsistentTotal() {
		return &escrow.ValidationError{Field: "amount_breakdown", Reason: "total does not match components"}
	}
	record.Status = models.EscrowPendingCapture
	return l.store.CreateRecord(ctx, record)
}

// Capture drives PENDING_CAPTURE → HELD: authorize and collect the total
// from the business, then move it into the escrow pool. Retrying a capture
// that already completed is a no-op, not a second charge.
func (l *Ledger) Capture(ctx context.Context, id string) error {
	record, err := l.store.GetRecord(ctx, id)
	if err != nil {
		return err
	}

	switch {
	case record.Status == models.EscrowHeld:
		return nil // already captured
	case record.Status != models.EscrowPendingCapture:
		return &escrow.InvalidTransitionError{Current: string(record.Status), Requested: models.TransitionCapture}
	}

	now := l.nowFn()
	if record.PendingTransition != models.TransitionCapture {
		if now.After(record.ExpiresAt) {
			if err := l.markFailed(ctx, record, "authorization window expired"); err != nil {
				return err
			}
			return escrow.ErrAuthorizationExpired
		}
		// Phase 1: durable intent with the keys the calls below will use.
		record.PendingTransition = models.TransitionCapture
		if err := l.store.UpdateRecordVersion(ctx, record, record.Version); err != nil {
			return err
		}
	}
	l.logAttempt(ctx, record.ID, models.TransitionCapture, models.AttemptStarted, "")

	// Phase 2: gateway calls, no storage lock held.
	authRef, err := l.withRetry(ctx, func() (string, error) {
		return l.gateway.AuthorizeAndCapture(ctx, record.Amounts.Total, record.Currency,
			record.BusinessID, idempotencyKey(record.ID, models.TransitionCapture, "auth"))
	})
	if err != nil {
		return l.failCapture(ctx, record, err)
	}
	record.CaptureRef = &authRef

	poolRef, err := l.withRetry(ctx, func() (string, error) {
		return l.gateway.TransferToEscrowPool(ctx, record.Amounts.Total, record.Currency,
			idempotencyKey(record.ID, models.TransitionCapture, "pool"))
	})
	if err != nil {
		return l.failCapture(ctx, record, err)
	}
	record.PoolTransferRef = &poolRef

	// Phase 3: finalize.
	record.Status = models.EscrowHeld
	record.PendingTransition = ""
	capturedAt := l.nowFn()
	record.CapturedAt = &capturedAt
	if err := l.store.UpdateRecordVersion(ctx, record, record.Version); err != nil {
		return err
	}
	l.logAttempt(ctx, record.ID, models.TransitionCapture, models.AttemptSucceeded, "")
	l.emitter.Emit(ctx, events.Event{
		Type:       events.EscrowCaptured,
		EscrowID:   record.ID,
		ShiftID:    record.ShiftID,
		WorkerID:   record.WorkerID,
		BusinessID: record.BusinessID,
		Currency:   record.Currency,
		Amount:     record.Amounts.Total,
		OccurredAt: capturedAt,
	})
	return nil
}

// Fail drives PENDING_CAPTURE → FAILED: explicit cancellation before
// capture, or authorization expiry. Failing a FAILED record is a no-op.
func (l *Ledger) Fail(ctx context.Context, id, reason string) error {
	record, err := l.store.GetRecord(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case record.Status == models.EscrowFailed:
		return nil
	case record.Status != models.EscrowPendingCapture:
		return &escrow.InvalidTransitionError{Current: string(record.Status), Requested: models.TransitionFail}
	}
	return l.markFailed(ctx, record, reason)
}

// Release drives HELD → RELEASED with a computed settlement. The worker
// transfer is the primary effect: if it fails the record stays HELD. If the
// worker transfer succeeds but the business refund does not, the record is
// still RELEASED, flagged partial_failure, and the refund is retried
// asynchronously — the worker transfer is never re-attempted.
func (l *Ledger) Release(ctx context.Context, id string, settlement escrow.Settlement) error {
	record, err := l.store.GetRecord(ctx, id)
	if err != nil {
		return err
	}

	switch {
	case record.Status == models.EscrowReleased:
		return nil
	case record.Status != models.EscrowHeld:
		return &escrow.InvalidTransitionError{Current: string(record.Status), Requested: models.TransitionRelease}
	}

	switch record.PendingTransition {
	case models.TransitionRelease:
		// Resuming an interrupted release: replay the durable decision,
		// never a freshly computed one.
		settlement = escrow.Settlement{
			WorkerPayout:     derefCents(record.IntentWorkerPayout),
			PlatformFee:      derefCents(record.IntentPlatformFee),
			RefundToBusiness: derefCents(record.IntentRefund),
		}
	case "":
		if settlement.WorkerPayout+settlement.RefundToBusiness > record.Amounts.Total {
			return &escrow.ValidationError{Field: "settlement", Reason: "payout plus refund exceeds held total"}
		}
		record.PendingTransition = models.TransitionRelease
		record.IntentWorkerPayout = &settlement.WorkerPayout
		record.IntentPlatformFee = &settlement.PlatformFee
		record.IntentRefund = &settlement.RefundToBusiness
		if err := l.store.UpdateRecordVersion(ctx, record, record.Version); err != nil {
			return err
		}
	default:
		return &escrow.InvalidTransitionError{
			Current:   fmt.Sprintf("%s (%s in flight)", record.Status, record.PendingTransition),
			Requested: models.TransitionRelease,
		}
	}
	l.logAttempt(ctx, record.ID, models.TransitionRelease, models.AttemptStarted, "")

	if settlement.WorkerPayout > 0 {
		workerRef, err := l.withRetry(ctx, func() (string, error) {
			return l.gateway.TransferToWorker(ctx, settlement.WorkerPayout, record.Currency,
				record.WorkerID, idempotencyKey(record.ID, models.TransitionRelease, "worker"))
		})
		if err != nil {
			return l.abortInFlight(ctx, record, models.TransitionRelease, err)
		}
		record.WorkerTransferRef = &workerRef
	}

	partial := false
	if settlement.RefundToBusiness > 0 {
		refundRef, err := l.withRetry(ctx, func() (string, error) {
			return l.gateway.RefundToBusiness(ctx, settlement.RefundToBusiness, record.Currency,
				refRefund(record), idempotencyKey(record.ID, models.TransitionRelease, "refund"))
		})
		if err != nil {
			// Worker is paid; the record must land in RELEASED. The refund
			// is flagged for the async retry sweep.
			partial = true
			l.logAttempt(ctx, record.ID, models.TransitionRelease, models.AttemptFailed,
				"business refund pending retry: "+err.Error())
		} else {
			record.RefundRef = &refundRef
		}
	}

	record.Status = models.EscrowReleased
	record.PendingTransition = ""
	record.PartialFailure = partial
	releasedAt := l.nowFn()
	record.ReleasedAt = &releasedAt
	if err := l.store.UpdateRecordVersion(ctx, record, record.Version); err != nil {
		return err
	}
	if !partial {
		l.logAttempt(ctx, record.ID, models.TransitionRelease, models.AttemptSucceeded, "")
	}
	l.emitter.Emit(ctx, events.Event{
		Type:             events.EscrowReleased,
		EscrowID:         record.ID,
		ShiftID:          record.ShiftID,
		WorkerID:         record.WorkerID,
		BusinessID:       record.BusinessID,
		Currency:         record.Currency,
		Amount:           record.Amounts.Total,
		WorkerPayout:     settlement.WorkerPayout,
		PlatformFee:      settlement.PlatformFee,
		RefundToBusiness: settlement.RefundToBusiness,
		PartialFailure:   partial,
		OccurredAt:       releasedAt,
	})
	return nil
}

// Refund drives HELD → REFUNDED on cancellation. The business gets
// total − penalty back; workerCompensation (a portion of the penalty) is
// paid to the worker for the late cancellation. Same partial-failure
// discipline as Release.
func (l *Ledger) Refund(ctx context.Context, id string, penalty, workerCompensation money.Cents) error {
	record, err := l.store.GetRecord(ctx, id)
	if err != nil {
		return err
	}

	switch {
	case record.Status == models.EscrowRefunded:
		return nil
	case record.Status != models.EscrowHeld:
		return &escrow.InvalidTransitionError{Current: string(record.Status), Requested: models.TransitionRefund}
	}

	var refundAmount money.Cents
	switch record.PendingTransition {
	case models.TransitionRefund:
		refundAmount = derefCents(record.IntentRefund)
		workerCompensation = derefCents(record.IntentWorkerPayout)
	case "":
		if penalty < 0 || penalty > record.Amounts.Total {
			return &escrow.ValidationError{Field: "penalty", Reason: "must be between zero and the held total"}
		}
		if workerCompensation < 0 || workerCompensation > penalty {
			return &escrow.ValidationError{Field: "worker_compensation", Reason: "must not exceed the penalty"}
		}
		refundAmount = record.Amounts.Total - penalty
		record.PendingTransition = models.TransitionRefund
		record.IntentWorkerPayout = &workerCompensation
		record.IntentRefund = &refundAmount
		if err := l.store.UpdateRecordVersion(ctx, record, record.Version); err != nil {
			return err
		}
	default:
		return &escrow.InvalidTransitionError{
			Current:   fmt.Sprintf("%s (%s in flight)", record.Status, record.PendingTransition),
			Requested: models.TransitionRefund,
		}
	}
	l.logAttempt(ctx, record.ID, models.TransitionRefund, models.AttemptStarted, "")

	if workerCompensation > 0 {
		workerRef, err := l.withRetry(ctx, func() (string, error) {
			return l.gateway.TransferToWorker(ctx, workerCompensation, record.Currency,
				record.WorkerID, idempotencyKey(record.ID, models.TransitionRefund, "worker"))
		})
		if err != nil {
			return l.abortInFlight(ctx, record, models.TransitionRefund, err)
		}
		record.WorkerTransferRef = &workerRef
	}

	partial := false
	if refundAmount > 0 {
		refundRef, err := l.withRetry(ctx, func() (string, error) {
			return l.gateway.RefundToBusiness(ctx, refundAmount, record.Currency,
				refRefund(record), idempotencyKey(record.ID, models.TransitionRefund, "refund"))
		})
		if err != nil {
			partial = true
			l.logAttempt(ctx, record.ID, models.TransitionRefund, models.AttemptFailed,
				"business refund pending retry: "+err.Error())
		} else {
			record.RefundRef = &refundRef
		}
	}

	record.Status = models.EscrowRefunded
	record.PendingTransition = ""
	record.PartialFailure = partial
	refundedAt := l.nowFn()
	record.RefundedAt = &refundedAt
	if err := l.store.UpdateRecordVersion(ctx, record, record.Version); err != nil {
		return err
	}
	if !partial {
		l.logAttempt(ctx, record.ID, models.TransitionRefund, models.AttemptSucceeded, "")
	}
	l.emitter.Emit(ctx, events.Event{
		Type:             events.EscrowRefunded,
		EscrowID:         record.ID,
		ShiftID:          record.ShiftID,
		WorkerID:         record.WorkerID,
		BusinessID:       record.BusinessID,
		Currency:         record.Currency,
		Amount:           record.Amounts.Total,
		WorkerPayout:     workerCompensation,
		RefundToBusiness: refundAmount,
		PartialFailure:   partial,
		OccurredAt:       refundedAt,
	})
	return nil
}

// withRetry runs one gateway call with bounded exponential backoff on
// transient failures. Exhausted retries escalate to a permanent error, per
// the error taxonomy.
func (l *Ledger) withRetry(ctx context.Context, call func() (string, error)) (string, error) {
	delay := l.cfg.RetryBaseDelay
	var lastErr error
	for attempt := 1; attempt <= l.cfg.MaxAttempts; attempt++ {
		ref, err := call()
		if err == nil {
			return ref, nil
		}
		if !gateway.Transient(err) {
			return "", err
		}
		lastErr = err
		if attempt == l.cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return "", &gateway.Error{
		Kind:    gateway.KindPermanent,
		Op:      "retry",
		Message: fmt.Sprintf("retries exhausted after %d attempts: %v", l.cfg.MaxAttempts, lastErr),
	}
}

// failCapture terminates a capture into FAILED. The failure is attached to
// the record before the error is surfaced — never silently swallowed.
func (l *Ledger) failCapture(ctx context.Context, record *models.EscrowRecord, cause error) error {
	if err := l.markFailed(ctx, record, cause.Error()); err != nil {
		return err
	}
	return cause
}

func (l *Ledger) markFailed(ctx context.Context, record *models.EscrowRecord, reason string) error {
	record.Status = models.EscrowFailed
	record.PendingTransition = ""
	record.FailureReason = reason
	if err := l.store.UpdateRecordVersion(ctx, record, record.Version); err != nil {
		return err
	}
	l.logAttempt(ctx, record.ID, models.TransitionFail, models.AttemptSucceeded, reason)
	l.emitter.Emit(ctx, events.Event{
		Type:       events.EscrowFailed,
		EscrowID:   record.ID,
		ShiftID:    record.ShiftID,
		WorkerID:   record.WorkerID,
		BusinessID: record.BusinessID,
		Currency:   record.Currency,
		Amount:     record.Amounts.Total,
		Reason:     reason,
		OccurredAt: l.nowFn(),
	})
	return nil
}

// abortInFlight rolls a failed primary transfer back to plain HELD. The
// idempotency keys stay derivable, so a later retry of the whole transition
// cannot duplicate anything that did reach the gateway.
func (l *Ledger) abortInFlight(ctx context.Context, record *models.EscrowRecord, transition string, cause error) error {
	record.PendingTransition = ""
	record.IntentWorkerPayout = nil
	record.IntentPlatformFee = nil
	record.IntentRefund = nil
	if err := l.store.UpdateRecordVersion(ctx, record, record.Version); err != nil {
		return err
	}
	l.logAttempt(ctx, record.ID, transition, models.AttemptFailed, cause.Error())
	return cause
}

func (l *Ledger) logAttempt(ctx context.Context, recordID, transition string, status models.AttemptStatus, note string) {
	_ = l.store.RecordAttempt(ctx, models.TransitionAttempt{
		EscrowRecordID: recordID,
		Transition:     transition,
		IdempotencyKey: idempotencyKey(recordID, transition, "op"),
		Status:         status,
		Error:          note,
	})
}

// refRefund picks the gateway reference refunds are issued against.
func refRefund(record *models.EscrowRecord) string {
	if record.CaptureRef != nil {
		return *record.CaptureRef
	}
	return record.BusinessID
}

func derefCents(c *money.Cents) money.Cents {
	if c == nil {
		return 0
	}
	return *c
}
