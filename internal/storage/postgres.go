package storage

import (
	"context"
	"errors"
	"fmt"

	"txengine/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements the Repository interface using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test the connection
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}
	if err := r.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

func (r *PostgresRepository) initSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS operation_audits (
			operation_id    BIGINT PRIMARY KEY,
			submitter       TEXT NOT NULL,
			network         TEXT NOT NULL,
			target          TEXT NOT NULL,
			priority        TEXT NOT NULL,
			final_state     TEXT NOT NULL,
			failure_reason  TEXT,
			reserved_amount BIGINT NOT NULL,
			settled_cost    BIGINT NOT NULL,
			resource_limit  BIGINT NOT NULL,
			resource_used   BIGINT NOT NULL,
			denom           TEXT NOT NULL,
			submitted_at    TIMESTAMPTZ NOT NULL,
			finalized_at    TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_operation_audits_submitter ON operation_audits(submitter);
		CREATE INDEX IF NOT EXISTS idx_operation_audits_network ON operation_audits(network);

		CREATE TABLE IF NOT EXISTS settlements (
			id           BIGSERIAL PRIMARY KEY,
			operation_id BIGINT NOT NULL,
			payee        TEXT NOT NULL,
			role         TEXT NOT NULL,
			amount_paid  BIGINT NOT NULL,
			bps          INTEGER NOT NULL,
			denom        TEXT NOT NULL,
			settled_at   TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_settlements_operation ON settlements(operation_id);
	`
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to init schema: %w", err)
	}
	return nil
}

// SaveOperationAudit saves a terminal operation record to the database
func (r *PostgresRepository) SaveOperationAudit(ctx context.Context, audit *models.OperationAudit) error {
	query := `
		INSERT INTO operation_audits (
			operation_id, submitter, network, target, priority, final_state,
			failure_reason, reserved_amount, settled_cost, resource_limit,
			resource_used, denom, submitted_at, finalized_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (operation_id) DO NOTHING
	`

	_, err := r.pool.Exec(ctx, query,
		audit.OperationID,
		audit.Submitter,
		audit.Network,
		audit.Target,
		audit.Priority,
		audit.FinalState,
		audit.FailureReason,
		audit.ReservedAmount,
		audit.SettledCost,
		audit.ResourceLimit,
		audit.ResourceUsed,
		audit.Denom,
		audit.SubmittedAt,
		audit.FinalizedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save operation audit: %w", err)
	}
	return nil
}

// GetOperationAudit retrieves an audit record by operation id
func (r *PostgresRepository) GetOperationAudit(ctx context.Context, operationID uint64) (*models.OperationAudit, error) {
	query := `
		SELECT
			operation_id, submitter, network, target, priority, final_state,
			failure_reason, reserved_amount, settled_cost, resource_limit,
			resource_used, denom, submitted_at, finalized_at
		FROM operation_audits
		WHERE operation_id = $1
	`

	var audit models.OperationAudit
	err := r.pool.QueryRow(ctx, query, operationID).Scan(
		&audit.OperationID,
		&audit.Submitter,
		&audit.Network,
		&audit.Target,
		&audit.Priority,
		&audit.FinalState,
		&audit.FailureReason,
		&audit.ReservedAmount,
		&audit.SettledCost,
		&audit.ResourceLimit,
		&audit.ResourceUsed,
		&audit.Denom,
		&audit.SubmittedAt,
		&audit.FinalizedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get operation audit: %w", err)
	}
	return &audit, nil
}

// ListOperationAudits retrieves audit records, newest first
func (r *PostgresRepository) ListOperationAudits(ctx context.Context, limit, offset int) ([]*models.OperationAudit, error) {
	query := `
		SELECT
			operation_id, submitter, network, target, priority, final_state,
			failure_reason, reserved_amount, settled_cost, resource_limit,
			resource_used, denom, submitted_at, finalized_at
		FROM operation_audits
		ORDER BY finalized_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list operation audits: %w", err)
	}
	defer rows.Close()

	var audits []*models.OperationAudit
	for rows.Next() {
		var audit models.OperationAudit
		if err := rows.Scan(
			&audit.OperationID,
			&audit.Submitter,
			&audit.Network,
			&audit.Target,
			&audit.Priority,
			&audit.FinalState,
			&audit.FailureReason,
			&audit.ReservedAmount,
			&audit.SettledCost,
			&audit.ResourceLimit,
			&audit.ResourceUsed,
			&audit.Denom,
			&audit.SubmittedAt,
			&audit.FinalizedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan operation audit: %w", err)
		}
		audits = append(audits, &audit)
	}
	return audits, rows.Err()
}

// SaveSettlements saves a settlement's fee breakdown in one batch
func (r *PostgresRepository) SaveSettlements(ctx context.Context, records []models.SettlementRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO settlements (operation_id, payee, role, amount_paid, bps, denom, settled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, rec := range records {
		batch.Queue(query, rec.OperationID, rec.Payee, rec.Role, rec.AmountPaid, rec.Bps, rec.Denom, rec.SettledAt)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to save settlement record: %w", err)
		}
	}
	return nil
}

// ListSettlements retrieves the fee breakdown for one operation
func (r *PostgresRepository) ListSettlements(ctx context.Context, operationID uint64) ([]models.SettlementRecord, error) {
	query := `
		SELECT operation_id, payee, role, amount_paid, bps, denom, settled_at
		FROM settlements
		WHERE operation_id = $1
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query, operationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlements: %w", err)
	}
	defer rows.Close()

	var records []models.SettlementRecord
	for rows.Next() {
		var rec models.SettlementRecord
		if err := rows.Scan(&rec.OperationID, &rec.Payee, &rec.Role, &rec.AmountPaid, &rec.Bps, &rec.Denom, &rec.SettledAt); err != nil {
			return nil, fmt.Errorf("failed to scan settlement record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Ping verifies the database connection
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}
