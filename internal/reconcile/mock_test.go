package reconcile

import (
	"context"
	"sort"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/store"
)

// memStore is an in-memory store.Store. Transactions work on copies and
// publish them only on success, so failure injection exercises rollback.
type memStore struct {
	mu      sync.Mutex
	records map[string]*model.Record
	ledger  []model.ChangeRecord
	nextID  int64

	getErr    error
	lockErr   error
	saveErr   error
	appendErr error

	txCount  int
	saves    int
	appended int
}

var _ store.Store = (*memStore)(nil)

func newMemStore(records ...*model.Record) *memStore {
	s := &memStore{records: make(map[string]*model.Record)}
	for _, r := range records {
		s.records[r.ID] = r.Clone()
	}
	return s
}

func (s *memStore) record(id string) *model.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[id]; ok {
		return r.Clone()
	}
	return nil
}

func (s *memStore) ledgerLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ledger)
}

func (s *memStore) GetRecord(_ context.Context, id string) (*model.Record, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.record(id), nil
}

func (s *memStore) ListRecordIDs(_ context.Context, filter store.RecordFilter) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if filter.Offset > 0 {
		if filter.Offset >= len(ids) {
			return nil, nil
		}
		ids = ids[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(ids) {
		ids = ids[:filter.Limit]
	}
	return ids, nil
}

func (s *memStore) ImportRecords(_ context.Context, records []model.Record, opts store.ImportOptions) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i := range records {
		if _, ok := s.records[records[i].ID]; ok && opts.SkipExisting {
			continue
		}
		s.records[records[i].ID] = records[i].Clone()
		n++
	}
	return n, nil
}

func (s *memStore) ChangesByBatch(_ context.Context, batchID string) ([]model.ChangeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return filterChanges(s.ledger, func(c model.ChangeRecord) bool { return c.BatchID == batchID }), nil
}

func (s *memStore) ChangesByRecord(_ context.Context, recordID string) ([]model.ChangeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return filterChanges(s.ledger, func(c model.ChangeRecord) bool { return c.RecordID == recordID }), nil
}

func filterChanges(all []model.ChangeRecord, keep func(model.ChangeRecord) bool) []model.ChangeRecord {
	var out []model.ChangeRecord
	for _, c := range all {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

// InTx serializes transactions, which stands in for row locks.
func (s *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txCount++

	tx := &memTx{s: s, staged: make(map[string]*model.Record)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for id, r := range tx.staged {
		s.records[id] = r
		s.saves++
	}
	for _, c := range tx.pending {
		s.nextID++
		c.ID = s.nextID
		s.ledger = append(s.ledger, c)
		s.appended++
	}
	return nil
}

func (s *memStore) Migrate(context.Context) error { return nil }
func (s *memStore) Close() error                  { return nil }

type memTx struct {
	s       *memStore
	staged  map[string]*model.Record
	pending []model.ChangeRecord
}

func (t *memTx) LockRecord(_ context.Context, id string) (*model.Record, error) {
	if t.s.lockErr != nil {
		return nil, t.s.lockErr
	}
	if r, ok := t.staged[id]; ok {
		return r.Clone(), nil
	}
	if r, ok := t.s.records[id]; ok {
		return r.Clone(), nil
	}
	return nil, nil
}

func (t *memTx) SaveRecord(_ context.Context, r *model.Record) error {
	if t.s.saveErr != nil {
		return t.s.saveErr
	}
	if r.ID == "" {
		return eris.New("memstore: record has no id")
	}
	t.staged[r.ID] = r.Clone()
	return nil
}

func (t *memTx) AppendChanges(_ context.Context, changes []model.ChangeRecord) error {
	if t.s.appendErr != nil {
		return t.s.appendErr
	}
	t.pending = append(t.pending, changes...)
	return nil
}

func (t *memTx) ChangesByBatch(_ context.Context, batchID string) ([]model.ChangeRecord, error) {
	return filterChanges(t.s.ledger, func(c model.ChangeRecord) bool { return c.BatchID == batchID }), nil
}
