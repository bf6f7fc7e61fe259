package models

import "time"

type AttemptStatus string

const (
	AttemptStarted   AttemptStatus = "started"
	AttemptSucceeded AttemptStatus = "succeeded"
	AttemptFailed    AttemptStatus = "failed"
)

// TransitionAttempt is one row of the append-only audit log: every transition
// attempt is recorded, including the ones that failed or were retried. The
// idempotency key ties an attempt to the external calls it made, which is
// what makes crash recovery replay-safe.
type TransitionAttempt struct {
	ID             uint          `gorm:"primarykey" json:"id"`
	EscrowRecordID string        `gorm:"size:36;not null;index" json:"escrow_record_id"`
	Transition     string        `gorm:"type:varchar(20);not null" json:"transition"`
	IdempotencyKey string        `gorm:"size:128;not null;index" json:"idempotency_key"`
	Status         AttemptStatus `gorm:"type:varchar(20);not null" json:"status"`
	Error          string        `gorm:"type:text" json:"error,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

func (TransitionAttempt) TableName() string {
	return "transition_attempts"
}
