package storage

import (
	"context"

	"txengine/internal/models"
)

// Repository defines the interface for the persisted audit trail.
// The engine works without one; a nil Repository disables persistence.
type Repository interface {
	// Operation audits
	SaveOperationAudit(ctx context.Context, audit *models.OperationAudit) error
	GetOperationAudit(ctx context.Context, operationID uint64) (*models.OperationAudit, error)
	ListOperationAudits(ctx context.Context, limit, offset int) ([]*models.OperationAudit, error)

	// Settlement breakdowns
	SaveSettlements(ctx context.Context, records []models.SettlementRecord) error
	ListSettlements(ctx context.Context, operationID uint64) ([]models.SettlementRecord, error)

	// Health & Maintenance
	Ping(ctx context.Context) error
	Close() error
}
