package store

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reconcile-cli/internal/model"
)

// ledgerColumns is the insert column order shared by both backends.
var ledgerColumns = []string{
	"batch_id", "record_id", "field_name", "old_value", "new_value",
	"old_source", "new_source", "change_type", "changed_at", "changed_by",
	"trust_old", "trust_new", "conflict_type", "reason",
}

const ledgerSelect = `SELECT id, batch_id, record_id, field_name, old_value, new_value, old_source, new_source, change_type, changed_at, changed_by, trust_old, trust_new, conflict_type, reason FROM change_ledger`

func encodeRecord(r *model.Record) (fields, prov []byte, err error) {
	f := r.Fields
	if f == nil {
		f = map[string]any{}
	}
	p := r.Provenance
	if p == nil {
		p = map[string]model.FieldProvenance{}
	}
	fields, err = json.Marshal(f)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "store: marshal fields of %s", r.ID)
	}
	prov, err = json.Marshal(p)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "store: marshal provenance of %s", r.ID)
	}
	return fields, prov, nil
}

func decodeRecord(r *model.Record, fields, prov []byte) error {
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &r.Fields); err != nil {
			return eris.Wrapf(err, "store: unmarshal fields of %s", r.ID)
		}
	}
	if len(prov) > 0 {
		if err := json.Unmarshal(prov, &r.Provenance); err != nil {
			return eris.Wrapf(err, "store: unmarshal provenance of %s", r.ID)
		}
	}
	r.EnsureMaps()
	for k, v := range r.Fields {
		r.Fields[k] = normalizeJSON(v)
	}
	for k, p := range r.Provenance {
		p.Value = normalizeJSON(p.Value)
		if p.Previous != nil {
			p.Previous.Value = normalizeJSON(p.Previous.Value)
		}
		r.Provenance[k] = p
	}
	return nil
}

// encodeValue returns nil for a nil value so the column stores SQL NULL.
func encodeValue(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal value")
	}
	return b, nil
}

func decodeValue(b []byte) (any, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal value")
	}
	return normalizeJSON(v), nil
}

// normalizeJSON turns decoded string arrays back into []string, the shape
// reference lists have in memory.
func normalizeJSON(v any) any {
	list, ok := v.([]any)
	if !ok {
		return v
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return v
		}
		out = append(out, s)
	}
	return out
}

func ledgerRow(c model.ChangeRecord) ([]any, error) {
	oldVal, err := encodeValue(c.OldValue)
	if err != nil {
		return nil, err
	}
	newVal, err := encodeValue(c.NewValue)
	if err != nil {
		return nil, err
	}
	return []any{
		c.BatchID, c.RecordID, c.FieldName, oldVal, newVal,
		c.OldSource, c.NewSource, string(c.ChangeType), c.ChangedAt.UTC(), c.ChangedBy,
		c.TrustOld, c.TrustNew, c.ConflictType, c.Reason,
	}, nil
}

func scanChange(row scannable) (model.ChangeRecord, error) {
	var c model.ChangeRecord
	var oldVal, newVal []byte
	var changeType string
	err := row.Scan(&c.ID, &c.BatchID, &c.RecordID, &c.FieldName, &oldVal, &newVal,
		&c.OldSource, &c.NewSource, &changeType, &c.ChangedAt, &c.ChangedBy,
		&c.TrustOld, &c.TrustNew, &c.ConflictType, &c.Reason)
	if err != nil {
		return c, eris.Wrap(err, "store: scan change")
	}
	c.ChangeType = model.ChangeType(changeType)
	if c.OldValue, err = decodeValue(oldVal); err != nil {
		return c, err
	}
	if c.NewValue, err = decodeValue(newVal); err != nil {
		return c, err
	}
	return c, nil
}
