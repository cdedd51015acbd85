package model

import "time"

// ChangeType categorizes a change ledger entry.
type ChangeType string

const (
	ChangeTypeFill       ChangeType = "fill"
	ChangeTypeAutoUpdate ChangeType = "auto_update"
	ChangeTypeManual     ChangeType = "manual"
	ChangeTypeRollback   ChangeType = "rollback"
)

// ChangeRecord is an immutable change ledger entry describing exactly one
// field mutation. ID is assigned by the ledger and orders entries.
type ChangeRecord struct {
	ID           int64      `json:"id,omitempty"`
	BatchID      string     `json:"batch_id"`
	RecordID     string     `json:"record_id"`
	FieldName    string     `json:"field_name"`
	OldValue     any        `json:"old_value"`
	NewValue     any        `json:"new_value"`
	OldSource    string     `json:"old_source,omitempty"`
	NewSource    string     `json:"new_source,omitempty"`
	ChangeType   ChangeType `json:"change_type"`
	ChangedAt    time.Time  `json:"changed_at"`
	ChangedBy    string     `json:"changed_by"`
	TrustOld     int        `json:"trust_old"`
	TrustNew     int        `json:"trust_new"`
	ConflictType string     `json:"conflict_type,omitempty"`
	Reason       string     `json:"reason,omitempty"`
}

// Observation is one source's proposed value for one field of a record.
// Observations are ephemeral input to a single reconciliation pass.
type Observation struct {
	Field   string          `json:"field"`
	Value   any             `json:"value"`
	Source  string          `json:"source"`
	Context map[string]bool `json:"context,omitempty"`
}
