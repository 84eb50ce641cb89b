package storage

import (
	"context"
	"sort"
	"sync"

	"txengine/internal/models"
)

// MemoryRepository is an in-memory Repository used in tests and when no
// database is configured
type MemoryRepository struct {
	mu          sync.RWMutex
	audits      map[uint64]*models.OperationAudit
	settlements map[uint64][]models.SettlementRecord
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		audits:      make(map[uint64]*models.OperationAudit),
		settlements: make(map[uint64][]models.SettlementRecord),
	}
}

// SaveOperationAudit stores the record; the first write for an id wins
func (r *MemoryRepository) SaveOperationAudit(_ context.Context, audit *models.OperationAudit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.audits[audit.OperationID]; !exists {
		cp := *audit
		r.audits[audit.OperationID] = &cp
	}
	return nil
}

// GetOperationAudit returns the stored record, or nil if absent
func (r *MemoryRepository) GetOperationAudit(_ context.Context, operationID uint64) (*models.OperationAudit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	audit, ok := r.audits[operationID]
	if !ok {
		return nil, nil
	}
	cp := *audit
	return &cp, nil
}

// ListOperationAudits returns stored records, newest first
func (r *MemoryRepository) ListOperationAudits(_ context.Context, limit, offset int) ([]*models.OperationAudit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*models.OperationAudit, 0, len(r.audits))
	for _, audit := range r.audits {
		cp := *audit
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].FinalizedAt.After(all[j].FinalizedAt)
	})

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// SaveSettlements appends the settlement breakdown for an operation
func (r *MemoryRepository) SaveSettlements(_ context.Context, records []models.SettlementRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range records {
		r.settlements[rec.OperationID] = append(r.settlements[rec.OperationID], rec)
	}
	return nil
}

// ListSettlements returns the stored breakdown for one operation
func (r *MemoryRepository) ListSettlements(_ context.Context, operationID uint64) ([]models.SettlementRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.SettlementRecord(nil), r.settlements[operationID]...), nil
}

// Ping always succeeds
func (r *MemoryRepository) Ping(_ context.Context) error { return nil }

// Close is a no-op
func (r *MemoryRepository) Close() error { return nil }
