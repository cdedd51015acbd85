// Package store persists canonical records and the append-only change ledger.
package store

import (
	"context"

	"github.com/sells-group/reconcile-cli/internal/model"
)

// RecordFilter specifies criteria for listing record ids.
type RecordFilter struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// ImportOptions controls bulk record import.
type ImportOptions struct {
	// SkipExisting leaves records that already exist untouched.
	SkipExisting bool
}

// Store defines the persistence interface consumed by the reconciliation
// engine. Ledger queries return entries in append order.
type Store interface {
	// Records
	GetRecord(ctx context.Context, id string) (*model.Record, error)
	ListRecordIDs(ctx context.Context, filter RecordFilter) ([]string, error)
	ImportRecords(ctx context.Context, records []model.Record, opts ImportOptions) (int64, error)

	// Ledger
	ChangesByBatch(ctx context.Context, batchID string) ([]model.ChangeRecord, error)
	ChangesByRecord(ctx context.Context, recordID string) ([]model.ChangeRecord, error)

	// InTx runs fn in one transaction: everything fn writes commits together
	// or not at all.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Tx is the write path available inside InTx.
type Tx interface {
	// LockRecord loads a record and holds its row lock until the transaction
	// ends. It returns nil, nil when the record does not exist.
	LockRecord(ctx context.Context, id string) (*model.Record, error)
	SaveRecord(ctx context.Context, r *model.Record) error
	AppendChanges(ctx context.Context, changes []model.ChangeRecord) error
	ChangesByBatch(ctx context.Context, batchID string) ([]model.ChangeRecord, error)
}

// scannable is satisfied by pgx.Row, pgx.Rows, *sql.Row, and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}
