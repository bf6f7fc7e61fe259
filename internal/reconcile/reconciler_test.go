package reconcile_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shiftpay/internal/events"
	"shiftpay/internal/gateway"
	"shiftpay/internal/ledger"
	"shiftpay/internal/models"
	"shiftpay/internal/money"
	"shiftpay/internal/reconcile"
)

type collectingEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *collectingEmitter) Emit(ctx context.Context, event events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func heldRecord(id string, total money.Cents) *models.EscrowRecord {
	return &models.EscrowRecord{
		ID:         id,
		ShiftID:    "shift-" + id,
		WorkerID:   "worker-1",
		BusinessID: "business-1",
		Currency:   "USD",
		Status:     models.EscrowHeld,
		Amounts:    models.AmountBreakdown{WorkerPay: total, Total: total},
		ExpiresAt:  time.Now().Add(time.Hour),
	}
}

func TestCheckOnceDetectsDiscrepancy(t *testing.T) {
	store := ledger.NewMemoryStore()
	gw := gateway.NewFakeGateway()
	emitter := &collectingEmitter{}
	ctx := context.Background()

	// Ledger says $10,000.00 is held; the gateway reports $9,950.00.
	require.NoError(t, store.CreateRecord(ctx, heldRecord("esc-1", 600000)))
	require.NoError(t, store.CreateRecord(ctx, heldRecord("esc-2", 400000)))
	gw.Balances["USD"] = 995000

	engine := reconcile.NewEngine(store, gw, emitter, []string{"USD"}, 100, time.Minute)
	require.NoError(t, engine.CheckOnce(ctx))

	require.Len(t, emitter.events, 1)
	event := emitter.events[0]
	assert.Equal(t, events.ReconciliationDiscrepancy, event.Type)
	assert.Equal(t, money.Cents(1000000), event.Expected)
	assert.Equal(t, money.Cents(995000), event.Actual)
	assert.Equal(t, money.Cents(-5000), event.Delta) // $50.00 short
}

func TestCheckOnceWithinTolerance(t *testing.T) {
	store := ledger.NewMemoryStore()
	gw := gateway.NewFakeGateway()
	emitter := &collectingEmitter{}
	ctx := context.Background()

	require.NoError(t, store.CreateRecord(ctx, heldRecord("esc-1", 1000000)))
	gw.Balances["USD"] = 1000099 // 99 cents over, tolerance is one dollar

	engine := reconcile.NewEngine(store, gw, emitter, []string{"USD"}, 100, time.Minute)
	require.NoError(t, engine.CheckOnce(ctx))

	require.Len(t, emitter.events, 1)
	assert.Equal(t, events.ReconciliationOK, emitter.events[0].Type)
}

func TestCheckOnceIgnoresNonHeldRecords(t *testing.T) {
	store := ledger.NewMemoryStore()
	gw := gateway.NewFakeGateway()
	emitter := &collectingEmitter{}
	ctx := context.Background()

	held := heldRecord("esc-1", 5000)
	released := heldRecord("esc-2", 7000)
	released.Status = models.EscrowReleased
	pending := heldRecord("esc-3", 9000)
	pending.Status = models.EscrowPendingCapture
	require.NoError(t, store.CreateRecord(ctx, held))
	require.NoError(t, store.CreateRecord(ctx, released))
	require.NoError(t, store.CreateRecord(ctx, pending))
	gw.Balances["USD"] = 5000

	engine := reconcile.NewEngine(store, gw, emitter, []string{"USD"}, 100, time.Minute)
	require.NoError(t, engine.CheckOnce(ctx))

	require.Len(t, emitter.events, 1)
	assert.Equal(t, events.ReconciliationOK, emitter.events[0].Type)
	assert.Equal(t, money.Cents(5000), emitter.events[0].Expected)
}

func TestCheckOncePerCurrency(t *testing.T) {
	store := ledger.NewMemoryStore()
	gw := gateway.NewFakeGateway()
	emitter := &collectingEmitter{}
	ctx := context.Background()

	usd := heldRecord("esc-1", 5000)
	ngn := heldRecord("esc-2", 300000)
	ngn.Currency = "NGN"
	require.NoError(t, store.CreateRecord(ctx, usd))
	require.NoError(t, store.CreateRecord(ctx, ngn))
	gw.Balances["USD"] = 5000
	gw.Balances["NGN"] = 100000 // way short

	engine := reconcile.NewEngine(store, gw, emitter, []string{"USD", "NGN"}, 100, time.Minute)
	require.NoError(t, engine.CheckOnce(ctx))

	require.Len(t, emitter.events, 2)
	assert.Equal(t, events.ReconciliationOK, emitter.events[0].Type)
	assert.Equal(t, events.ReconciliationDiscrepancy, emitter.events[1].Type)
	assert.Equal(t, money.Cents(-200000), emitter.events[1].Delta)
}
