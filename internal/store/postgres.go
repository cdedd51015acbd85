package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/reconcile-cli/internal/db"
	"github.com/sells-group/reconcile-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	sqlGetRecord  = `SELECT id, fields, provenance, created_at, updated_at FROM records WHERE id = $1`
	sqlLockRecord = sqlGetRecord + ` FOR UPDATE`
	sqlSaveRecord = `INSERT INTO records (id, fields, provenance, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET fields = EXCLUDED.fields, provenance = EXCLUDED.provenance, updated_at = EXCLUDED.updated_at`
	sqlChangesByBatch  = ledgerSelect + ` WHERE batch_id = $1 ORDER BY id`
	sqlChangesByRecord = ledgerSelect + ` WHERE record_id = $1 ORDER BY id`
)

// preparedStatements are prepared on each new connection.
var preparedStatements = map[string]string{
	"get_record":        sqlGetRecord,
	"lock_record":       sqlLockRecord,
	"save_record":       sqlSaveRecord,
	"changes_by_batch":  sqlChangesByBatch,
	"changes_by_record": sqlChangesByRecord,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				// Tables do not exist until the first migrate.
				if isUndefinedTable(err) {
					return nil
				}
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: pool.Close}
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS records (
	id         TEXT PRIMARY KEY,
	fields     JSONB NOT NULL DEFAULT '{}',
	provenance JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS change_ledger (
	id            BIGSERIAL PRIMARY KEY,
	batch_id      TEXT NOT NULL,
	record_id     TEXT NOT NULL,
	field_name    TEXT NOT NULL,
	old_value     JSONB,
	new_value     JSONB,
	old_source    TEXT NOT NULL DEFAULT '',
	new_source    TEXT NOT NULL DEFAULT '',
	change_type   TEXT NOT NULL CHECK (change_type IN ('fill', 'auto_update', 'manual', 'rollback')),
	changed_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	changed_by    TEXT NOT NULL,
	trust_old     INTEGER NOT NULL DEFAULT 0,
	trust_new     INTEGER NOT NULL DEFAULT 0,
	conflict_type TEXT NOT NULL DEFAULT '',
	reason        TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_change_ledger_batch_id ON change_ledger(batch_id);
CREATE INDEX IF NOT EXISTS idx_change_ledger_record_id ON change_ledger(record_id);

CREATE OR REPLACE FUNCTION change_ledger_append_only() RETURNS trigger AS $$
BEGIN
	RAISE EXCEPTION 'change_ledger is append-only';
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS change_ledger_append_only ON change_ledger;
CREATE TRIGGER change_ledger_append_only
	BEFORE UPDATE OR DELETE ON change_ledger
	FOR EACH ROW EXECUTE FUNCTION change_ledger_append_only();
`

// Migrate creates the schema and the ledger's append-only trigger.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// GetRecord returns the record, or nil if it does not exist.
func (s *PostgresStore) GetRecord(ctx context.Context, id string) (*model.Record, error) {
	r, err := scanPgRecord(s.pool.QueryRow(ctx, sqlGetRecord, id))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get record %s", id)
	}
	return r, nil
}

// ListRecordIDs returns record ids in id order.
func (s *PostgresStore) ListRecordIDs(ctx context.Context, filter RecordFilter) ([]string, error) {
	query := `SELECT id FROM records ORDER BY id`
	var args []any
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $1`
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		if len(args) == 1 {
			query += ` OFFSET $1`
		} else {
			query += ` OFFSET $2`
		}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list records")
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan record ids")
	}
	return ids, nil
}

// ImportRecords bulk-loads records through db.BulkUpsert.
func (s *PostgresStore) ImportRecords(ctx context.Context, records []model.Record, opts ImportOptions) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(records))
	for i := range records {
		r := &records[i]
		if r.ID == "" {
			return 0, eris.Errorf("postgres: import: record %d has no id", i)
		}
		fields, prov, err := encodeRecord(r)
		if err != nil {
			return 0, err
		}
		created := r.CreatedAt
		if created.IsZero() {
			created = now
		}
		rows = append(rows, []any{r.ID, fields, prov, created, now})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "records",
		Columns:      []string{"id", "fields", "provenance", "created_at", "updated_at"},
		ConflictKeys: []string{"id"},
		UpdateCols:   []string{"fields", "provenance", "updated_at"},
		SkipExisting: opts.SkipExisting,
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: import records")
	}
	return n, nil
}

// ChangesByBatch returns a batch's ledger entries in append order.
func (s *PostgresStore) ChangesByBatch(ctx context.Context, batchID string) ([]model.ChangeRecord, error) {
	return queryChanges(ctx, s.pool, sqlChangesByBatch, batchID)
}

// ChangesByRecord returns a record's ledger entries in append order.
func (s *PostgresStore) ChangesByRecord(ctx context.Context, recordID string) ([]model.ChangeRecord, error) {
	return queryChanges(ctx, s.pool, sqlChangesByRecord, recordID)
}

// InTx runs fn inside a pgx transaction.
func (s *PostgresStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{tx: tx})
	})
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryChanges(ctx context.Context, q querier, sql, arg string) ([]model.ChangeRecord, error) {
	rows, err := q.Query(ctx, sql, arg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query changes")
	}
	defer rows.Close()

	var out []model.ChangeRecord
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate changes")
	}
	return out, nil
}

func scanPgRecord(row pgx.Row) (*model.Record, error) {
	var r model.Record
	var fields, prov []byte
	err := row.Scan(&r.ID, &fields, &prov, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan record")
	}
	if err := decodeRecord(&r, fields, prov); err != nil {
		return nil, err
	}
	return &r, nil
}

// pgTx implements Tx on a pgx transaction.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockRecord(ctx context.Context, id string) (*model.Record, error) {
	r, err := scanPgRecord(t.tx.QueryRow(ctx, sqlLockRecord, id))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: lock record %s", id)
	}
	return r, nil
}

func (t *pgTx) SaveRecord(ctx context.Context, r *model.Record) error {
	fields, prov, err := encodeRecord(r)
	if err != nil {
		return err
	}
	created := r.CreatedAt
	if created.IsZero() {
		created = r.UpdatedAt
	}
	if _, err := t.tx.Exec(ctx, sqlSaveRecord, r.ID, fields, prov, created, r.UpdatedAt); err != nil {
		return eris.Wrapf(err, "postgres: save record %s", r.ID)
	}
	return nil
}

func (t *pgTx) AppendChanges(ctx context.Context, changes []model.ChangeRecord) error {
	rows := make([][]any, 0, len(changes))
	for _, c := range changes {
		row, err := ledgerRow(c)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	if _, err := db.CopyFrom(ctx, t.tx, "change_ledger", ledgerColumns, rows); err != nil {
		return eris.Wrap(err, "postgres: append changes")
	}
	return nil
}

func (t *pgTx) ChangesByBatch(ctx context.Context, batchID string) ([]model.ChangeRecord, error) {
	return queryChanges(ctx, t.tx, sqlChangesByBatch, batchID)
}
