package reconcile

import (
	"context"
	"log"
	"time"

	"shiftpay/internal/events"
	"shiftpay/internal/gateway"
	"shiftpay/internal/ledger"
	"shiftpay/internal/money"
)

// Engine periodically cross-checks the ledger's view of held funds against
// the gateway's reported balance. It never mutates ledger state — a
// discrepancy is reported as an operational alert for manual investigation,
// not auto-corrected.
type Engine struct {
	store   ledger.Store
	gateway gateway.PaymentGateway
	emitter events.Emitter
	nowFn   func() time.Time

	Interval   time.Duration
	Tolerance  money.Cents
	Currencies []string
}

func NewEngine(store ledger.Store, gw gateway.PaymentGateway, emitter events.Emitter, currencies []string, tolerance money.Cents, interval time.Duration) *Engine {
	return &Engine{
		store:      store,
		gateway:    gw,
		emitter:    emitter,
		nowFn:      time.Now,
		Interval:   interval,
		Tolerance:  tolerance,
		Currencies: currencies,
	}
}

// WithClock overrides the engine's clock. Test hook.
func (e *Engine) WithClock(nowFn func() time.Time) *Engine {
	e.nowFn = nowFn
	return e
}

// Run executes a reconciliation pass on every tick until the context is
// cancelled. The engine is read-only over ledger state, so it can run
// alongside live transitions without coordination.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.CheckOnce(ctx); err != nil {
				log.Printf("⚠️  reconciliation pass failed: %v", err)
			}
		}
	}
}

// CheckOnce reconciles every configured currency once: expected is the sum
// of HELD totals in the ledger, actual is the gateway balance. A delta
// beyond the tolerance raises a discrepancy event; otherwise an ok event is
// emitted with both figures.
func (e *Engine) CheckOnce(ctx context.Context) error {
	for _, currency := range e.Currencies {
		expected, err := e.store.SumHeldTotals(ctx, currency)
		if err != nil {
			return err
		}
		actual, err := e.gateway.RetrieveAvailableBalance(ctx, currency)
		if err != nil {
			return err
		}

		delta := actual - expected
		event := events.Event{
			Currency:   currency,
			Expected:   expected,
			Actual:     actual,
			Delta:      delta,
			OccurredAt: e.nowFn(),
		}
		if abs(delta) > e.Tolerance {
			event.Type = events.ReconciliationDiscrepancy
			log.Printf("🚨 reconciliation discrepancy %s: expected=%d actual=%d delta=%d",
				currency, expected, actual, delta)
		} else {
			event.Type = events.ReconciliationOK
		}
		e.emitter.Emit(ctx, event)
	}
	return nil
}

func abs(c money.Cents) money.Cents {
	if c < 0 {
		return -c
	}
	return c
}
