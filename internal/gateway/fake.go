package gateway

import (
	"context"
	"fmt"
	"sync"

	"shiftpay/internal/money"
)

// FakeGateway is an in-memory PaymentGateway for tests and local runs. It
// honors idempotency keys the way a real gateway does: a repeated call with
// a known key returns the original reference without counting as a new
// effect. Failures can be scripted per operation, either as a fixed number
// of transient errors before success or as a permanent rejection.
type FakeGateway struct {
	mu sync.Mutex

	Balances map[string]money.Cents

	// Effects actually applied, keyed by idempotency key.
	captures      map[string]string
	poolTransfers map[string]string
	payouts       map[string]string
	refunds       map[string]string

	// Call counters per operation, counting only calls that produced a new
	// effect (idempotent replays are tracked separately).
	CaptureCalls int
	PoolCalls    int
	PayoutCalls  int
	RefundCalls  int
	ReplayCalls  int

	transientLeft map[string]int
	permanent     map[string]error
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		Balances:      make(map[string]money.Cents),
		captures:      make(map[string]string),
		poolTransfers: make(map[string]string),
		payouts:       make(map[string]string),
		refunds:       make(map[string]string),
		transientLeft: make(map[string]int),
		permanent:     make(map[string]error),
	}
}

// FailTransiently makes the next n calls of op fail with a transient error.
// Ops: "capture", "pool", "payout", "refund".
func (f *FakeGateway) FailTransiently(op string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transientLeft[op] = n
}

// FailPermanently makes every call of op fail with a permanent rejection.
func (f *FakeGateway) FailPermanently(op, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.permanent[op] = &Error{Kind: KindPermanent, Op: op, Message: message}
}

// ClearFailures removes all scripted failures, simulating a recovered
// gateway.
func (f *FakeGateway) ClearFailures() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transientLeft = make(map[string]int)
	f.permanent = make(map[string]error)
}

func (f *FakeGateway) scriptedFailure(op string) error {
	if err, ok := f.permanent[op]; ok {
		return err
	}
	if f.transientLeft[op] > 0 {
		f.transientLeft[op]--
		return &Error{Kind: KindTransient, Op: op, Message: "scripted transient failure"}
	}
	return nil
}

// apply records one effect for key, or replays the existing one. The balance
// delta is only applied when a new effect is created, exactly as a real
// gateway deduplicates by idempotency key.
func (f *FakeGateway) apply(op string, effects map[string]string, key, currency string, delta money.Cents, calls *int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if ref, ok := effects[key]; ok {
		f.ReplayCalls++
		return ref, nil
	}
	if err := f.scriptedFailure(op); err != nil {
		return "", err
	}
	*calls++
	ref := fmt.Sprintf("%s-%s-%d", op, key, *calls)
	effects[key] = ref
	f.Balances[currency] += delta
	return ref, nil
}

func (f *FakeGateway) AuthorizeAndCapture(ctx context.Context, amount money.Cents, currency, payerRef, key string) (string, error) {
	return f.apply("capture", f.captures, key, currency, 0, &f.CaptureCalls)
}

func (f *FakeGateway) TransferToEscrowPool(ctx context.Context, amount money.Cents, currency, key string) (string, error) {
	return f.apply("pool", f.poolTransfers, key, currency, amount, &f.PoolCalls)
}

func (f *FakeGateway) TransferToWorker(ctx context.Context, amount money.Cents, currency, payeeRef, key string) (string, error) {
	return f.apply("payout", f.payouts, key, currency, -amount, &f.PayoutCalls)
}

func (f *FakeGateway) RefundToBusiness(ctx context.Context, amount money.Cents, currency, payerRef, key string) (string, error) {
	return f.apply("refund", f.refunds, key, currency, -amount, &f.RefundCalls)
}

func (f *FakeGateway) RetrieveAvailableBalance(ctx context.Context, currency string) (money.Cents, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.scriptedFailure("balance"); err != nil {
		return 0, err
	}
	return f.Balances[currency], nil
}
