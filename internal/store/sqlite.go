package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/reconcile-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// sqlitePragmas are applied to every pooled connection through the DSN.
var sqlitePragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"foreign_keys(ON)",
}

// NewSQLite opens a SQLite database at the given path. Transactions take the
// write lock up front (BEGIN IMMEDIATE) so a reconcile pass never has to
// upgrade a read lock.
func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if strings.Contains(path, ":memory:") {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "sqlite: ping")
	}
	return &SQLiteStore{db: db}, nil
}

func sqliteDSN(path string) string {
	params := make([]string, 0, len(sqlitePragmas)+1)
	for _, p := range sqlitePragmas {
		params = append(params, "_pragma="+p)
	}
	params = append(params, "_txlock=immediate")

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(params, "&")
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS records (
	id         TEXT PRIMARY KEY,
	fields     TEXT NOT NULL DEFAULT '{}',
	provenance TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS change_ledger (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	batch_id      TEXT NOT NULL,
	record_id     TEXT NOT NULL,
	field_name    TEXT NOT NULL,
	old_value     TEXT,
	new_value     TEXT,
	old_source    TEXT NOT NULL DEFAULT '',
	new_source    TEXT NOT NULL DEFAULT '',
	change_type   TEXT NOT NULL CHECK (change_type IN ('fill', 'auto_update', 'manual', 'rollback')),
	changed_at    DATETIME NOT NULL,
	changed_by    TEXT NOT NULL,
	trust_old     INTEGER NOT NULL DEFAULT 0,
	trust_new     INTEGER NOT NULL DEFAULT 0,
	conflict_type TEXT NOT NULL DEFAULT '',
	reason        TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_change_ledger_batch_id ON change_ledger(batch_id);
CREATE INDEX IF NOT EXISTS idx_change_ledger_record_id ON change_ledger(record_id);

CREATE TRIGGER IF NOT EXISTS change_ledger_no_update
BEFORE UPDATE ON change_ledger
BEGIN
	SELECT RAISE(ABORT, 'change_ledger is append-only');
END;

CREATE TRIGGER IF NOT EXISTS change_ledger_no_delete
BEFORE DELETE ON change_ledger
BEGIN
	SELECT RAISE(ABORT, 'change_ledger is append-only');
END;
`

// Migrate creates the schema and the ledger's append-only triggers.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetRecord returns the record, or nil if it does not exist.
func (s *SQLiteStore) GetRecord(ctx context.Context, id string) (*model.Record, error) {
	return getSQLiteRecord(ctx, s.db, id)
}

// ListRecordIDs returns record ids in id order.
func (s *SQLiteStore) ListRecordIDs(ctx context.Context, filter RecordFilter) ([]string, error) {
	query := `SELECT id FROM records ORDER BY id`
	var args []any
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list records")
	}
	defer rows.Close() //nolint:errcheck

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: iterate record ids")
}

// ImportRecords inserts or replaces records in one transaction.
func (s *SQLiteStore) ImportRecords(ctx context.Context, records []model.Record, opts ImportOptions) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	query := `INSERT INTO records (id, fields, provenance, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET fields = excluded.fields, provenance = excluded.provenance, updated_at = excluded.updated_at`
	if opts.SkipExisting {
		query = `INSERT INTO records (id, fields, provenance, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT (id) DO NOTHING`
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: import: begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: import: prepare")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	var affected int64
	for i := range records {
		r := &records[i]
		if r.ID == "" {
			return 0, eris.Errorf("sqlite: import: record %d has no id", i)
		}
		fields, prov, err := encodeRecord(r)
		if err != nil {
			return 0, err
		}
		created := r.CreatedAt
		if created.IsZero() {
			created = now
		}
		res, err := stmt.ExecContext(ctx, r.ID, string(fields), string(prov), created, now)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: import record %s", r.ID)
		}
		n, _ := res.RowsAffected()
		affected += n
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: import: commit")
	}
	return affected, nil
}

// ChangesByBatch returns a batch's ledger entries in append order.
func (s *SQLiteStore) ChangesByBatch(ctx context.Context, batchID string) ([]model.ChangeRecord, error) {
	return querySQLiteChanges(ctx, s.db, ledgerSelect+` WHERE batch_id = ? ORDER BY id`, batchID)
}

// ChangesByRecord returns a record's ledger entries in append order.
func (s *SQLiteStore) ChangesByRecord(ctx context.Context, recordID string) ([]model.ChangeRecord, error) {
	return querySQLiteChanges(ctx, s.db, ledgerSelect+` WHERE record_id = ? ORDER BY id`, recordID)
}

// InTx runs fn inside an immediate transaction.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(ctx, &sqliteTx{tx: tx}); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

// sqlQuerier is satisfied by *sql.DB and *sql.Tx.
type sqlQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getSQLiteRecord(ctx context.Context, q sqlQuerier, id string) (*model.Record, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, fields, provenance, created_at, updated_at FROM records WHERE id = ?`, id)

	var r model.Record
	var fields, prov string
	err := row.Scan(&r.ID, &fields, &prov, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get record %s", id)
	}
	if err := decodeRecord(&r, []byte(fields), []byte(prov)); err != nil {
		return nil, err
	}
	return &r, nil
}

func querySQLiteChanges(ctx context.Context, q sqlQuerier, query, arg string) ([]model.ChangeRecord, error) {
	rows, err := q.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query changes")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ChangeRecord
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate changes")
}

// sqliteTx implements Tx on a database/sql transaction. The immediate
// transaction already holds the database write lock, so LockRecord is a read.
type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) LockRecord(ctx context.Context, id string) (*model.Record, error) {
	return getSQLiteRecord(ctx, t.tx, id)
}

func (t *sqliteTx) SaveRecord(ctx context.Context, r *model.Record) error {
	fields, prov, err := encodeRecord(r)
	if err != nil {
		return err
	}
	created := r.CreatedAt
	if created.IsZero() {
		created = r.UpdatedAt
	}
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO records (id, fields, provenance, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET fields = excluded.fields, provenance = excluded.provenance, updated_at = excluded.updated_at`,
		r.ID, string(fields), string(prov), created, r.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: save record %s", r.ID)
}

func (t *sqliteTx) AppendChanges(ctx context.Context, changes []model.ChangeRecord) error {
	if len(changes) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ledgerColumns)), ", ")
	stmt, err := t.tx.PrepareContext(ctx,
		`INSERT INTO change_ledger (`+strings.Join(ledgerColumns, ", ")+`) VALUES (`+placeholders+`)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare append")
	}
	defer stmt.Close() //nolint:errcheck

	for _, c := range changes {
		row, err := ledgerRow(c)
		if err != nil {
			return err
		}
		// JSON columns are TEXT here; keep NULL for nil values.
		for _, i := range []int{3, 4} {
			if b, ok := row[i].([]byte); ok && b != nil {
				row[i] = string(b)
			} else {
				row[i] = nil
			}
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return eris.Wrapf(err, "sqlite: append change %s.%s", c.RecordID, c.FieldName)
		}
	}
	return nil
}

func (t *sqliteTx) ChangesByBatch(ctx context.Context, batchID string) ([]model.ChangeRecord, error) {
	return querySQLiteChanges(ctx, t.tx, ledgerSelect+` WHERE batch_id = ? ORDER BY id`, batchID)
}
