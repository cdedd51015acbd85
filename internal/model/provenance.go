package model

import "time"

// PreviousValue is the single prior snapshot kept on a field's provenance.
// Deeper history lives in the change ledger.
type PreviousValue struct {
	Value  any    `json:"value"`
	Source string `json:"source,omitempty"`
}

// FieldProvenance records where a field's current value came from.
// It is replaced wholesale on every field mutation.
type FieldProvenance struct {
	Value        any            `json:"value"`
	Source       string         `json:"source,omitempty"`
	Trust        int            `json:"trust"`
	SetAt        time.Time      `json:"set_at"`
	SetBy        string         `json:"set_by,omitempty"`
	BatchID      string         `json:"batch_id,omitempty"`
	UserVerified bool           `json:"user_verified"`
	VerifiedAt   *time.Time     `json:"verified_at,omitempty"`
	VerifyNote   string         `json:"verify_note,omitempty"`
	Previous     *PreviousValue `json:"previous,omitempty"`
}
