package gateway

import (
	"context"
	"errors"
	"fmt"

	"shiftpay/internal/money"
)

// PaymentGateway is the sole wire-level boundary of the escrow core. All
// amounts cross it as integer minor units plus an ISO 4217 currency code,
// and every mutating call carries an idempotency key: a retried call with
// the same key has at most one effect on the gateway side.
//
// The core never assumes settlement finality beyond "accepted" — the
// reconciliation engine is the backstop for eventual consistency.
type PaymentGateway interface {
	// AuthorizeAndCapture authorizes and collects funds from the payer's
	// instrument, returning the gateway's capture reference.
	AuthorizeAndCapture(ctx context.Context, amount money.Cents, currency, payerRef, key string) (string, error)

	// TransferToEscrowPool moves captured funds into the platform's escrow
	// pool account.
	TransferToEscrowPool(ctx context.Context, amount money.Cents, currency, key string) (string, error)

	// TransferToWorker pays out to the worker's instrument.
	TransferToWorker(ctx context.Context, amount money.Cents, currency, payeeRef, key string) (string, error)

	// RefundToBusiness returns funds to the business that paid them.
	RefundToBusiness(ctx context.Context, amount money.Cents, currency, payerRef, key string) (string, error)

	// RetrieveAvailableBalance reports the gateway-side balance for a
	// currency, used only by reconciliation.
	RetrieveAvailableBalance(ctx context.Context, currency string) (money.Cents, error)
}

type ErrorKind string

const (
	// KindTransient covers network, timeout and rate-limit failures.
	// Transient errors are retried with bounded backoff.
	KindTransient ErrorKind = "transient"
	// KindPermanent covers declined authorizations, invalid destination
	// accounts and other rejections that no retry can fix.
	KindPermanent ErrorKind = "permanent"
)

// Error is a typed failure from the payment gateway.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway %s: %s (%s)", e.Op, e.Message, e.Kind)
}

// Transient reports whether the error may succeed on retry.
func (e *Error) Transient() bool {
	return e.Kind == KindTransient
}

// Transient reports whether err is a transient gateway error.
func Transient(err error) bool {
	var gerr *Error
	return errors.As(err, &gerr) && gerr.Transient()
}
