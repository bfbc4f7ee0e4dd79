package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"invoice-reconciliation-service/internal/models"
)

// MemoryStore is an in-memory ledger used by tests and file-driven CLI runs
type MemoryStore struct {
	mu      sync.Mutex
	nextID  uint
	records []*models.MatchingRecord
}

// NewMemoryStore creates an empty in-memory ledger
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

// Append implements Store
func (s *MemoryStore) Append(ctx context.Context, record *models.MatchingRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *record
	stored.ID = s.nextID
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.nextID++
	s.records = append(s.records, &stored)

	record.ID = stored.ID
	record.CreatedAt = stored.CreatedAt
	return nil
}

// MarkSuperseded implements Store
func (s *MemoryStore) MarkSuperseded(ctx context.Context, recordID uint) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, record := range s.records {
		if record.ID == recordID {
			record.Decision = models.DecisionSuperseded
			return nil
		}
	}

	return fmt.Errorf("matching record %d not found", recordID)
}

// RecordsForInvoice implements Store, returning copies oldest first
func (s *MemoryStore) RecordsForInvoice(ctx context.Context, invoiceID uint) ([]*models.MatchingRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*models.MatchingRecord
	for _, record := range s.records {
		if record.InvoiceID == invoiceID {
			clone := *record
			result = append(result, &clone)
		}
	}

	return result, nil
}
