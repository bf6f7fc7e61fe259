package handlers

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"shiftpay/internal/escrow"
	"shiftpay/internal/gateway"
	"shiftpay/internal/ledger"
	"shiftpay/internal/models"
	"shiftpay/internal/money"
	"shiftpay/internal/reconcile"
)

var (
	escrowLedger *ledger.Ledger
	escrowStore  ledger.Store
	reconciler   *reconcile.Engine
	premiumRates escrow.PremiumRates
	validate     = validator.New()
)

// InitEscrowService wires the handlers to the escrow core. Called once from
// main after the ledger and its dependencies are constructed.
func InitEscrowService(l *ledger.Ledger, store ledger.Store, engine *reconcile.Engine, rates escrow.PremiumRates) {
	escrowLedger = l
	escrowStore = store
	reconciler = engine
	premiumRates = rates
}

type CreateEscrowRequest struct {
	ShiftID    string `json:"shift_id" validate:"required"`
	WorkerID   string `json:"worker_id" validate:"required"`
	BusinessID string `json:"business_id" validate:"required"`

	HourlyRate int64   `json:"hourly_rate" validate:"required,gt=0"` // minor units per hour
	Hours      float64 `json:"hours" validate:"required,gt=0"`
	Holiday    bool    `json:"holiday"`
	Night      bool    `json:"night"`
	Weekend    bool    `json:"weekend"`

	PlatformFeePercent float64 `json:"platform_fee_percent" validate:"gte=0"`
	TaxPercent         float64 `json:"tax_percent" validate:"gte=0"`
	ContingencyPercent float64 `json:"contingency_percent" validate:"gte=0"`

	Currency     string  `json:"currency" validate:"required,len=3"`
	ExchangeRate float64 `json:"exchange_rate" validate:"required,gt=0"`

	ShiftStart time.Time `json:"shift_start" validate:"required"`
}

type ReleaseEscrowRequest struct {
	VerifiedHours      float64 `json:"verified_hours" validate:"gte=0"`
	OvertimeHours      float64 `json:"overtime_hours" validate:"gte=0"`
	OvertimeMultiplier float64 `json:"overtime_multiplier" validate:"gte=0"`
}

type RefundEscrowRequest struct {
	Penalty            int64 `json:"penalty" validate:"gte=0"`
	WorkerCompensation int64 `json:"worker_compensation" validate:"gte=0"`
}

// authWindow is how long after shift start an uncaptured authorization stays
// valid.
func authWindow() time.Duration {
	return 48 * time.Hour
}

// CreateEscrow prices the hold for a confirmed booking, persists the record
// and captures the funds. A capture failure cancels the booking path and is
// reported synchronously.
func CreateEscrow(c *fiber.Ctx) error {
	req := new(CreateEscrowRequest)
	if err := c.BodyParser(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	terms := escrow.ShiftTerms{
		HourlyRate:         money.Cents(req.HourlyRate),
		Hours:              decimal.NewFromFloat(req.Hours),
		Holiday:            req.Holiday,
		Night:              req.Night,
		Weekend:            req.Weekend,
		PlatformFeePercent: decimal.NewFromFloat(req.PlatformFeePercent),
		TaxPercent:         decimal.NewFromFloat(req.TaxPercent),
		ContingencyPercent: decimal.NewFromFloat(req.ContingencyPercent),
		Currency:           req.Currency,
		ExchangeRate:       decimal.NewFromFloat(req.ExchangeRate),
	}
	amounts, err := escrow.CalculateHold(terms, premiumRates)
	if err != nil {
		return mapEscrowError(c, err)
	}

	record := &models.EscrowRecord{
		ShiftID:      req.ShiftID,
		WorkerID:     req.WorkerID,
		BusinessID:   req.BusinessID,
		Currency:     req.Currency,
		ExchangeRate: terms.ExchangeRate,
		BookedHours:  terms.Hours,
		Amounts:      amounts,
		ExpiresAt:    req.ShiftStart.Add(authWindow()),
	}
	if err := escrowLedger.CreateRecord(c.Context(), record); err != nil {
		return mapEscrowError(c, err)
	}

	if err := escrowLedger.Capture(c.Context(), record.ID); err != nil {
		// The record is already FAILED; surface the reason so the booking
		// workflow can cancel.
		return mapEscrowError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"escrow": reloadRecord(c, record.ID),
	})
}

// ReleaseEscrow settles a completed shift: recomputes the split from the
// verified outcome and releases the held funds.
func ReleaseEscrow(c *fiber.Ctx) error {
	req := new(ReleaseEscrowRequest)
	if err := c.BodyParser(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	record, err := escrowStore.GetRecord(c.Context(), c.Params("id"))
	if err != nil {
		return mapEscrowError(c, err)
	}

	outcome := escrow.Outcome{
		VerifiedHours:      decimal.NewFromFloat(req.VerifiedHours),
		OvertimeHours:      decimal.NewFromFloat(req.OvertimeHours),
		OvertimeMultiplier: decimal.NewFromFloat(req.OvertimeMultiplier),
	}
	settlement, err := escrow.CalculateSettlement(record.Amounts, record.BookedHours, outcome)
	if err != nil {
		return mapEscrowError(c, err)
	}

	if err := escrowLedger.Release(c.Context(), record.ID, settlement); err != nil {
		return mapEscrowError(c, err)
	}

	return c.JSON(fiber.Map{
		"escrow":     reloadRecord(c, record.ID),
		"settlement": settlement,
	})
}

// RefundEscrow cancels a held shift with an optional penalty, part of which
// can compensate the worker.
func RefundEscrow(c *fiber.Ctx) error {
	req := new(RefundEscrowRequest)
	if err := c.BodyParser(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	id := c.Params("id")
	if err := escrowLedger.Refund(c.Context(), id, money.Cents(req.Penalty), money.Cents(req.WorkerCompensation)); err != nil {
		return mapEscrowError(c, err)
	}

	return c.JSON(fiber.Map{
		"escrow": reloadRecord(c, id),
	})
}

// CancelEscrow cancels a booking before capture. Once funds are held the
// caller must use the refund endpoint instead — held money never just
// disappears.
func CancelEscrow(c *fiber.Ctx) error {
	id := c.Params("id")
	record, err := escrowStore.GetRecord(c.Context(), id)
	if err != nil {
		return mapEscrowError(c, err)
	}
	if record.Status == models.EscrowHeld {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Funds already held; use the refund endpoint",
		})
	}
	if err := escrowLedger.Fail(c.Context(), id, "booking cancelled"); err != nil {
		return mapEscrowError(c, err)
	}
	return c.JSON(fiber.Map{
		"escrow": reloadRecord(c, id),
	})
}

// GetEscrow returns one escrow record.
func GetEscrow(c *fiber.Ctx) error {
	record, err := escrowStore.GetRecord(c.Context(), c.Params("id"))
	if err != nil {
		return mapEscrowError(c, err)
	}
	return c.JSON(fiber.Map{
		"escrow": record,
	})
}

// RunReconciliation triggers one reconciliation pass on demand, outside the
// fixed schedule.
func RunReconciliation(c *fiber.Ctx) error {
	if err := reconciler.CheckOnce(c.Context()); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"status": "ok",
	})
}

func reloadRecord(c *fiber.Ctx, id string) *models.EscrowRecord {
	record, err := escrowStore.GetRecord(c.Context(), id)
	if err != nil {
		return nil
	}
	return record
}

// mapEscrowError translates the core's typed errors to HTTP statuses.
func mapEscrowError(c *fiber.Ctx, err error) error {
	var verr *escrow.ValidationError
	var terr *escrow.InvalidTransitionError
	var gerr *gateway.Error

	switch {
	case errors.As(err, &verr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": verr.Error()})
	case errors.As(err, &terr):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": terr.Error()})
	case errors.Is(err, escrow.ErrConcurrencyConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Concurrent update, reload and retry the operation",
		})
	case errors.Is(err, escrow.ErrRecordNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Escrow record not found"})
	case errors.Is(err, escrow.ErrAuthorizationExpired):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.As(err, &gerr):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": gerr.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal error"})
	}
}
