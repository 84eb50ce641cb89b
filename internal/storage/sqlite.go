package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"txengine/internal/models"

	_ "modernc.org/sqlite"
)

// SQLiteRepository implements the Repository interface with an embedded
// sqlite database. Useful for single-node deployments and local runs where
// a postgres instance is overkill.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens (or creates) the sqlite database at path
func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	// sqlite serializes writers; a second connection would just contend
	db.SetMaxOpenConns(1)

	if err := initSQLiteSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteRepository{db: db}, nil
}

func initSQLiteSchema(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS operation_audits (
		operation_id    INTEGER PRIMARY KEY,
		submitter       TEXT NOT NULL,
		network         TEXT NOT NULL,
		target          TEXT NOT NULL,
		priority        TEXT NOT NULL,
		final_state     TEXT NOT NULL,
		failure_reason  TEXT,
		reserved_amount INTEGER NOT NULL,
		settled_cost    INTEGER NOT NULL,
		resource_limit  INTEGER NOT NULL,
		resource_used   INTEGER NOT NULL,
		denom           TEXT NOT NULL,
		submitted_at    DATETIME NOT NULL,
		finalized_at    DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_operation_audits_submitter ON operation_audits(submitter);

	CREATE TABLE IF NOT EXISTS settlements (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		operation_id INTEGER NOT NULL,
		payee        TEXT NOT NULL,
		role         TEXT NOT NULL,
		amount_paid  INTEGER NOT NULL,
		bps          INTEGER NOT NULL,
		denom        TEXT NOT NULL,
		settled_at   DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_settlements_operation ON settlements(operation_id);
	`
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to init schema: %w", err)
	}
	return nil
}

// SaveOperationAudit persists a terminal operation record
func (r *SQLiteRepository) SaveOperationAudit(ctx context.Context, audit *models.OperationAudit) error {
	query := `
	INSERT OR IGNORE INTO operation_audits (
		operation_id, submitter, network, target, priority, final_state,
		failure_reason, reserved_amount, settled_cost, resource_limit,
		resource_used, denom, submitted_at, finalized_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
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
func (r *SQLiteRepository) GetOperationAudit(ctx context.Context, operationID uint64) (*models.OperationAudit, error) {
	query := `
	SELECT operation_id, submitter, network, target, priority, final_state,
		failure_reason, reserved_amount, settled_cost, resource_limit,
		resource_used, denom, submitted_at, finalized_at
	FROM operation_audits
	WHERE operation_id = ?
	`

	var audit models.OperationAudit
	err := r.db.QueryRowContext(ctx, query, operationID).Scan(
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
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get operation audit: %w", err)
	}
	return &audit, nil
}

// ListOperationAudits retrieves audit records, newest first
func (r *SQLiteRepository) ListOperationAudits(ctx context.Context, limit, offset int) ([]*models.OperationAudit, error) {
	query := `
	SELECT operation_id, submitter, network, target, priority, final_state,
		failure_reason, reserved_amount, settled_cost, resource_limit,
		resource_used, denom, submitted_at, finalized_at
	FROM operation_audits
	ORDER BY finalized_at DESC
	LIMIT ? OFFSET ?
	`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
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

// SaveSettlements persists a settlement's fee breakdown in one transaction
func (r *SQLiteRepository) SaveSettlements(ctx context.Context, records []models.SettlementRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
	INSERT INTO settlements (operation_id, payee, role, amount_paid, bps, denom, settled_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	for _, rec := range records {
		if _, err := tx.ExecContext(ctx, query,
			rec.OperationID, rec.Payee, rec.Role, rec.AmountPaid, rec.Bps, rec.Denom, rec.SettledAt,
		); err != nil {
			return fmt.Errorf("failed to save settlement record: %w", err)
		}
	}
	return tx.Commit()
}

// ListSettlements retrieves the fee breakdown for one operation
func (r *SQLiteRepository) ListSettlements(ctx context.Context, operationID uint64) ([]models.SettlementRecord, error) {
	query := `
	SELECT operation_id, payee, role, amount_paid, bps, denom, settled_at
	FROM settlements
	WHERE operation_id = ?
	ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, operationID)
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

// Ping verifies the database is reachable
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}
