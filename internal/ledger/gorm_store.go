package ledger

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"shiftpay/internal/escrow"
	"shiftpay/internal/models"
	"shiftpay/internal/money"
)

// GormStore persists escrow records and the transition audit log in
// Postgres.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) CreateRecord(ctx context.Context, record *models.EscrowRecord) error {
	if record.Version == 0 {
		record.Version = 1
	}
	return s.db.WithContext(ctx).Create(record).Error
}

func (s *GormStore) GetRecord(ctx context.Context, id string) (*models.EscrowRecord, error) {
	var record models.EscrowRecord
	if err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, escrow.ErrRecordNotFound
		}
		return nil, err
	}
	return &record, nil
}

// UpdateRecordVersion is the optimistic lock: the UPDATE only matches when
// the stored version is still the one the caller read, so a losing writer
// touches zero rows and gets a conflict instead of overwriting.
func (s *GormStore) UpdateRecordVersion(ctx context.Context, record *models.EscrowRecord, expectedVersion int64) error {
	record.Version = expectedVersion + 1
	tx := s.db.WithContext(ctx).
		Model(&models.EscrowRecord{}).
		Where("id = ? AND version = ?", record.ID, expectedVersion).
		Select("*").
		Omit("id", "created_at").
		Updates(record)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		record.Version = expectedVersion
		return escrow.ErrConcurrencyConflict
	}
	return nil
}

func (s *GormStore) RecordAttempt(ctx context.Context, attempt models.TransitionAttempt) error {
	return s.db.WithContext(ctx).Create(&attempt).Error
}

func (s *GormStore) SumHeldTotals(ctx context.Context, currency string) (money.Cents, error) {
	var total int64
	err := s.db.WithContext(ctx).
		Model(&models.EscrowRecord{}).
		Where("status = ? AND currency = ?", models.EscrowHeld, currency).
		Select("COALESCE(SUM(amount_total), 0)").
		Scan(&total).Error
	return money.Cents(total), err
}

func (s *GormStore) ListInFlight(ctx context.Context) ([]models.EscrowRecord, error) {
	var records []models.EscrowRecord
	err := s.db.WithContext(ctx).
		Where("pending_transition <> ''").
		Find(&records).Error
	return records, err
}

func (s *GormStore) ListExpiredPending(ctx context.Context, now time.Time) ([]models.EscrowRecord, error) {
	var records []models.EscrowRecord
	err := s.db.WithContext(ctx).
		Where("status = ? AND pending_transition = '' AND expires_at < ?", models.EscrowPendingCapture, now).
		Find(&records).Error
	return records, err
}

func (s *GormStore) ListPartialFailures(ctx context.Context) ([]models.EscrowRecord, error) {
	var records []models.EscrowRecord
	err := s.db.WithContext(ctx).
		Where("partial_failure = ?", true).
		Find(&records).Error
	return records, err
}
