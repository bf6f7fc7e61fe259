package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"shiftpay/internal/money"
)

type EscrowStatus string

const (
	EscrowPendingCapture EscrowStatus = "pending_capture"
	EscrowHeld           EscrowStatus = "held"
	EscrowReleased       EscrowStatus = "released"
	EscrowRefunded       EscrowStatus = "refunded"
	EscrowFailed         EscrowStatus = "failed"
)

// Terminal reports whether a status permits no further transitions.
// Terminal records are immutable except for reconciliation annotations.
func (s EscrowStatus) Terminal() bool {
	return s == EscrowReleased || s == EscrowRefunded || s == EscrowFailed
}

// Transition names. Idempotency keys are derived from (record id, transition).
const (
	TransitionCapture = "capture"
	TransitionRelease = "release"
	TransitionRefund  = "refund"
	TransitionFail    = "fail"
)

// AmountBreakdown is the full decomposition of the amount held for a shift,
// all in integer minor units. Invariant: Total equals the exact sum of the
// other components.
type AmountBreakdown struct {
	WorkerPay         money.Cents `gorm:"not null" json:"worker_pay"`
	HolidayPremium    money.Cents `gorm:"not null" json:"holiday_premium"`
	NightPremium      money.Cents `gorm:"not null" json:"night_premium"`
	WeekendPremium    money.Cents `gorm:"not null" json:"weekend_premium"`
	PlatformFee       money.Cents `gorm:"not null" json:"platform_fee"`
	Tax               money.Cents `gorm:"not null" json:"tax"`
	ContingencyBuffer money.Cents `gorm:"not null" json:"contingency_buffer"`
	Total             money.Cents `gorm:"not null" json:"total"`
}

// Premiums returns the sum of the three shift premiums.
func (b AmountBreakdown) Premiums() money.Cents {
	return b.HolidayPremium + b.NightPremium + b.WeekendPremium
}

// ConsistentTotal reports whether the persisted total matches the exact sum
// of the components.
func (b AmountBreakdown) ConsistentTotal() bool {
	return b.Total == b.WorkerPay+b.Premiums()+b.PlatformFee+b.Tax+b.ContingencyBuffer
}

// EscrowRecord is the durable state-machine record for one shift payment.
// Records are append-only from the business's point of view: they are never
// deleted, only driven to a terminal status.
type EscrowRecord struct {
	ID         string `gorm:"primarykey;size:36" json:"id"`
	ShiftID    string `gorm:"size:36;not null;index" json:"shift_id"`
	WorkerID   string `gorm:"size:36;not null;index" json:"worker_id"`
	BusinessID string `gorm:"size:36;not null;index" json:"business_id"`

	Currency     string          `gorm:"size:3;not null" json:"currency"`
	ExchangeRate decimal.Decimal `gorm:"type:decimal(20,10);not null" json:"exchange_rate"`

	// BookedHours is the shift duration the hold was priced on; settlement
	// derives its unit price from WorkerPay / BookedHours.
	BookedHours decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"booked_hours"`

	Amounts AmountBreakdown `gorm:"embedded;embeddedPrefix:amount_" json:"amount_breakdown"`

	Status EscrowStatus `gorm:"type:varchar(20);not null;default:'pending_capture';index" json:"status"`

	// PendingTransition marks a durable in-flight transition ("capture",
	// "release", "refund"). A crash between the intent write and the
	// finalize write leaves this set; the recovery sweep resumes it with
	// the same idempotency keys.
	PendingTransition string `gorm:"type:varchar(20);not null;default:''" json:"pending_transition,omitempty"`

	// Intent amounts persisted when a release/refund goes in flight, so a
	// resumed transition replays the decided split instead of recomputing.
	IntentWorkerPayout *money.Cents `json:"intent_worker_payout,omitempty"`
	IntentPlatformFee  *money.Cents `json:"intent_platform_fee,omitempty"`
	IntentRefund       *money.Cents `json:"intent_refund,omitempty"`

	// Gateway references, each set at most once.
	CaptureRef        *string `gorm:"size:64" json:"capture_ref,omitempty"`
	PoolTransferRef   *string `gorm:"size:64" json:"pool_transfer_ref,omitempty"`
	WorkerTransferRef *string `gorm:"size:64" json:"worker_transfer_ref,omitempty"`
	RefundRef         *string `gorm:"size:64" json:"refund_ref,omitempty"`

	// PartialFailure is set when the primary transfer of a release/refund
	// succeeded but the secondary business refund did not; the refund is
	// retried asynchronously and this flag cleared on success.
	PartialFailure bool   `gorm:"not null;default:false" json:"partial_failure"`
	FailureReason  string `gorm:"type:text" json:"failure_reason,omitempty"`

	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`

	// Version is the optimistic-concurrency counter, incremented on every
	// durable write.
	Version int64 `gorm:"not null;default:1" json:"version"`

	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	CapturedAt *time.Time     `json:"captured_at,omitempty"`
	ReleasedAt *time.Time     `json:"released_at,omitempty"`
	RefundedAt *time.Time     `json:"refunded_at,omitempty"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

func (EscrowRecord) TableName() string {
	return "escrow_records"
}

func (r *EscrowRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
