package ledger

import (
	"context"
	"log"

	"shiftpay/internal/escrow"
	"shiftpay/internal/models"
)

// RecoverInFlight resumes transitions that were interrupted between their
// intent write and their finalize write (process crash, deploy). Each resume
// replays the same durable decision with the same idempotency keys, so
// partial progress is picked up, never duplicated.
func (l *Ledger) RecoverInFlight(ctx context.Context) error {
	records, err := l.store.ListInFlight(ctx)
	if err != nil {
		return err
	}
	for _, record := range records {
		var err error
		switch record.PendingTransition {
		case models.TransitionCapture:
			err = l.Capture(ctx, record.ID)
		case models.TransitionRelease:
			// Intent amounts are loaded from the record; the argument is
			// ignored on resume.
			err = l.Release(ctx, record.ID, escrow.Settlement{})
		case models.TransitionRefund:
			err = l.Refund(ctx, record.ID, 0, 0)
		}
		if err != nil {
			log.Printf("⚠️  recovery: resume %s for escrow %s: %v", record.PendingTransition, record.ID, err)
		}
	}
	return nil
}

// FailExpired fails every PENDING_CAPTURE record whose authorization window
// has passed with no capture attempt in flight. Expired records are never
// silently left pending.
func (l *Ledger) FailExpired(ctx context.Context) error {
	records, err := l.store.ListExpiredPending(ctx, l.nowFn())
	if err != nil {
		return err
	}
	for _, record := range records {
		if err := l.Fail(ctx, record.ID, "authorization window expired"); err != nil {
			log.Printf("⚠️  recovery: expire escrow %s: %v", record.ID, err)
		}
	}
	return nil
}

// RetryPartialFailures re-attempts the business refund of records that
// landed in RELEASED/REFUNDED with the partial_failure flag. Only the
// refund leg is retried — the worker transfer already happened and its key
// must never be replayed with a new effect.
func (l *Ledger) RetryPartialFailures(ctx context.Context) error {
	records, err := l.store.ListPartialFailures(ctx)
	if err != nil {
		return err
	}
	for i := range records {
		record := &records[i]
		transition := models.TransitionRelease
		if record.Status == models.EscrowRefunded {
			transition = models.TransitionRefund
		}
		amount := derefCents(record.IntentRefund)
		if amount == 0 {
			record.PartialFailure = false
			if err := l.store.UpdateRecordVersion(ctx, record, record.Version); err != nil {
				log.Printf("⚠️  recovery: clear partial flag for escrow %s: %v", record.ID, err)
			}
			continue
		}
		refundRef, err := l.withRetry(ctx, func() (string, error) {
			return l.gateway.RefundToBusiness(ctx, amount, record.Currency,
				refRefund(record), idempotencyKey(record.ID, transition, "refund"))
		})
		if err != nil {
			log.Printf("⚠️  recovery: refund retry for escrow %s: %v", record.ID, err)
			l.logAttempt(ctx, record.ID, transition, models.AttemptFailed, "refund retry: "+err.Error())
			continue
		}
		record.RefundRef = &refundRef
		record.PartialFailure = false
		if err := l.store.UpdateRecordVersion(ctx, record, record.Version); err != nil {
			log.Printf("⚠️  recovery: finalize refund retry for escrow %s: %v", record.ID, err)
			continue
		}
		l.logAttempt(ctx, record.ID, transition, models.AttemptSucceeded, "refund retried")
	}
	return nil
}
