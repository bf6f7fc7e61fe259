package ledger

import (
	"context"
	"sync"
	"time"

	"shiftpay/internal/escrow"
	"shiftpay/internal/models"
	"shiftpay/internal/money"
)

// MemoryStore is a map-backed Store for tests and local runs. Records are
// copied on the way in and out so callers hold snapshots, which is what
// makes the optimistic-version race observable in tests.
type MemoryStore struct {
	mu       sync.Mutex
	records  map[string]models.EscrowRecord
	Attempts []models.TransitionAttempt
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]models.EscrowRecord)}
}

func (s *MemoryStore) CreateRecord(ctx context.Context, record *models.EscrowRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.Version == 0 {
		record.Version = 1
	}
	record.CreatedAt = time.Now()
	s.records[record.ID] = *record
	return nil
}

func (s *MemoryStore) GetRecord(ctx context.Context, id string) (*models.EscrowRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, escrow.ErrRecordNotFound
	}
	return &rec, nil
}

func (s *MemoryStore) UpdateRecordVersion(ctx context.Context, record *models.EscrowRecord, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.records[record.ID]
	if !ok {
		return escrow.ErrRecordNotFound
	}
	if stored.Version != expectedVersion {
		return escrow.ErrConcurrencyConflict
	}
	record.Version = expectedVersion + 1
	record.UpdatedAt = time.Now()
	s.records[record.ID] = *record
	return nil
}

func (s *MemoryStore) RecordAttempt(ctx context.Context, attempt models.TransitionAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt.CreatedAt = time.Now()
	s.Attempts = append(s.Attempts, attempt)
	return nil
}

func (s *MemoryStore) SumHeldTotals(ctx context.Context, currency string) (money.Cents, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum money.Cents
	for _, rec := range s.records {
		if rec.Status == models.EscrowHeld && rec.Currency == currency {
			sum += rec.Amounts.Total
		}
	}
	return sum, nil
}

func (s *MemoryStore) ListInFlight(ctx context.Context) ([]models.EscrowRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.EscrowRecord
	for _, rec := range s.records {
		if rec.PendingTransition != "" {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListExpiredPending(ctx context.Context, now time.Time) ([]models.EscrowRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.EscrowRecord
	for _, rec := range s.records {
		if rec.Status == models.EscrowPendingCapture && rec.PendingTransition == "" && now.After(rec.ExpiresAt) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListPartialFailures(ctx context.Context) ([]models.EscrowRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.EscrowRecord
	for _, rec := range s.records {
		if rec.PartialFailure {
			out = append(out, rec)
		}
	}
	return out, nil
}
