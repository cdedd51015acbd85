package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/trust"
)

func seededCoin() *model.Record {
	rec := coin("coin-1")
	withField(rec, model.FieldWeight, 3.90, "user", trust.UserTrust)
	withField(rec, model.FieldGrade, "VF", "heritage", 70)
	withField(rec, model.FieldReferences, []string{"RIC 207"}, "cng", 70)
	return rec
}

func seededObservations() []model.Observation {
	return []model.Observation{
		obs(model.FieldWeight, 3.92, "cng"),
		obs(model.FieldGrade, "Choice VF", "cng"),
		obs(model.FieldReferences, []string{"RIC 207", "BMC 123"}, "ocre"),
		obs(model.FieldCertificationNumber, "NGC-123456", "ngc"),
	}
}

func TestRollback_RestoresPreBatchState(t *testing.T) {
	before := seededCoin()
	st := newMemStore(before)
	e := newTestEngine(st)
	ctx := context.Background()

	report, err := e.Reconcile(ctx, Request{RecordID: "coin-1", Observations: seededObservations()})
	require.NoError(t, err)
	require.Equal(t, 4, report.TotalChanges)

	rb, err := e.Rollback(ctx, report.BatchID, "alice")
	require.NoError(t, err)
	assert.Equal(t, report.BatchID, rb.OriginalBatchID)
	assert.NotEmpty(t, rb.BatchID)
	assert.NotEqual(t, report.BatchID, rb.BatchID)
	assert.Equal(t, 4, rb.RestoredCount)
	assert.Equal(t, []string{"coin-1"}, rb.RecordsAffected)
	assert.Equal(t, []string{
		model.FieldCertificationNumber, model.FieldGrade, model.FieldReferences, model.FieldWeight,
	}, rb.FieldsAffected)
	assert.Empty(t, rb.SkippedVerified)

	after := st.record("coin-1")
	assert.Equal(t, before.Fields, after.Fields)
	assert.NotContains(t, after.Provenance, model.FieldCertificationNumber)
	for field, p := range before.Provenance {
		assert.Equal(t, p.Source, after.Provenance[field].Source, field)
		assert.Equal(t, p.Trust, after.Provenance[field].Trust, field)
		assert.Equal(t, "alice", after.Provenance[field].SetBy, field)
		assert.Equal(t, rb.BatchID, after.Provenance[field].BatchID, field)
	}
}

func TestRollback_EntriesInvertOriginals(t *testing.T) {
	st := newMemStore(seededCoin())
	e := newTestEngine(st)
	ctx := context.Background()

	report, err := e.Reconcile(ctx, Request{RecordID: "coin-1", Observations: seededObservations()})
	require.NoError(t, err)
	originals, err := st.ChangesByBatch(ctx, report.BatchID)
	require.NoError(t, err)

	rb, err := e.Rollback(ctx, report.BatchID, "")
	require.NoError(t, err)

	reversed, err := st.ChangesByBatch(ctx, rb.BatchID)
	require.NoError(t, err)
	require.Len(t, reversed, len(originals))

	byField := make(map[string]model.ChangeRecord)
	for _, c := range reversed {
		byField[c.FieldName] = c
	}
	for _, orig := range originals {
		inv, ok := byField[orig.FieldName]
		require.True(t, ok, orig.FieldName)
		assert.Equal(t, model.ChangeTypeRollback, inv.ChangeType)
		assert.Equal(t, orig.NewValue, inv.OldValue)
		assert.Equal(t, orig.OldValue, inv.NewValue)
		assert.Equal(t, orig.NewSource, inv.OldSource)
		assert.Equal(t, orig.TrustNew, inv.TrustOld)
		assert.Equal(t, orig.TrustOld, inv.TrustNew)
		assert.Equal(t, "rollback of batch "+report.BatchID, inv.Reason)
		assert.Equal(t, DefaultActor, inv.ChangedBy)
	}

	// Originals are untouched.
	again, err := st.ChangesByBatch(ctx, report.BatchID)
	require.NoError(t, err)
	assert.Equal(t, originals, again)
}

func TestRollback_Twice(t *testing.T) {
	st := newMemStore(seededCoin())
	e := newTestEngine(st)
	ctx := context.Background()

	report, err := e.Reconcile(ctx, Request{RecordID: "coin-1", Observations: seededObservations()})
	require.NoError(t, err)

	first, err := e.Rollback(ctx, report.BatchID, "")
	require.NoError(t, err)
	require.Equal(t, 4, first.RestoredCount)
	stateAfterFirst := st.record("coin-1")
	ledgerAfterFirst := st.ledgerLen()

	second, err := e.Rollback(ctx, report.BatchID, "")
	require.NoError(t, err)
	assert.Zero(t, second.RestoredCount)
	assert.Empty(t, second.BatchID)
	assert.Empty(t, second.RecordsAffected)
	assert.Equal(t, ledgerAfterFirst, st.ledgerLen())
	assert.Equal(t, stateAfterFirst.Fields, st.record("coin-1").Fields)
}

func TestRollback_EmptyBatch(t *testing.T) {
	st := newMemStore(seededCoin())
	e := newTestEngine(st)

	rb, err := e.Rollback(context.Background(), "no-such-batch", "")
	require.NoError(t, err)
	assert.Equal(t, "no-such-batch", rb.OriginalBatchID)
	assert.Zero(t, rb.RestoredCount)
	assert.Empty(t, rb.FieldsAffected)
	assert.Empty(t, rb.RecordsAffected)
	assert.Zero(t, st.ledgerLen())
	assert.Zero(t, st.saves)
}

func TestRollback_FieldChangedTwiceInBatch(t *testing.T) {
	st := newMemStore(coin("coin-1"))
	e := newTestEngine(st)
	ctx := context.Background()

	_, err := e.Reconcile(ctx, Request{
		RecordID:     "coin-1",
		BatchID:      "batch-1",
		Observations: []model.Observation{obs(model.FieldWeight, 3.90, "scraper")},
	})
	require.NoError(t, err)
	_, err = e.Reconcile(ctx, Request{
		RecordID:     "coin-1",
		BatchID:      "batch-1",
		Observations: []model.Observation{obs(model.FieldWeight, 3.92, "cng")},
	})
	require.NoError(t, err)
	require.Equal(t, 3.92, st.record("coin-1").Fields[model.FieldWeight])

	rb, err := e.Rollback(ctx, "batch-1", "")
	require.NoError(t, err)
	assert.Equal(t, 1, rb.RestoredCount)

	rec := st.record("coin-1")
	assert.NotContains(t, rec.Fields, model.FieldWeight)
	assert.NotContains(t, rec.Provenance, model.FieldWeight)

	again, err := e.Rollback(ctx, "batch-1", "")
	require.NoError(t, err)
	assert.Zero(t, again.RestoredCount)
}

func TestRollback_SkipsVerifiedFields(t *testing.T) {
	st := newMemStore(seededCoin())
	e := newTestEngine(st)
	ctx := context.Background()

	report, err := e.Reconcile(ctx, Request{RecordID: "coin-1", Observations: seededObservations()})
	require.NoError(t, err)

	ok, err := e.VerifyField(ctx, "coin-1", model.FieldWeight, "weighed in hand")
	require.NoError(t, err)
	require.True(t, ok)

	rb, err := e.Rollback(ctx, report.BatchID, "")
	require.NoError(t, err)
	assert.Equal(t, 3, rb.RestoredCount)
	assert.Equal(t, []string{"coin-1/" + model.FieldWeight}, rb.SkippedVerified)
	assert.NotContains(t, rb.FieldsAffected, model.FieldWeight)
	assert.Equal(t, 3.92, st.record("coin-1").Fields[model.FieldWeight])
}

func TestRollback_MultipleRecords(t *testing.T) {
	st := newMemStore(coin("coin-b"), coin("coin-a"))
	e := newTestEngine(st)
	ctx := context.Background()

	for _, id := range []string{"coin-b", "coin-a"} {
		_, err := e.Reconcile(ctx, Request{
			RecordID:     id,
			BatchID:      "sweep-1",
			Observations: []model.Observation{obs(model.FieldMint, "Rome", "cng")},
		})
		require.NoError(t, err)
	}

	rb, err := e.Rollback(ctx, "sweep-1", "")
	require.NoError(t, err)
	assert.Equal(t, 2, rb.RestoredCount)
	assert.Equal(t, []string{"coin-a", "coin-b"}, rb.RecordsAffected)
	assert.Equal(t, []string{model.FieldMint}, rb.FieldsAffected)
}

func TestRollback_RollbackOfRollback(t *testing.T) {
	st := newMemStore(seededCoin())
	e := newTestEngine(st)
	ctx := context.Background()

	report, err := e.Reconcile(ctx, Request{RecordID: "coin-1", Observations: seededObservations()})
	require.NoError(t, err)
	reconciled := st.record("coin-1")

	rb, err := e.Rollback(ctx, report.BatchID, "")
	require.NoError(t, err)

	redo, err := e.Rollback(ctx, rb.BatchID, "")
	require.NoError(t, err)
	assert.Equal(t, 4, redo.RestoredCount)
	assert.Equal(t, reconciled.Fields, st.record("coin-1").Fields)
}

func TestRollback_PersistenceFailure(t *testing.T) {
	st := newMemStore(seededCoin())
	e := newTestEngine(st)
	ctx := context.Background()

	report, err := e.Reconcile(ctx, Request{RecordID: "coin-1", Observations: seededObservations()})
	require.NoError(t, err)
	reconciled := st.record("coin-1")
	ledger := st.ledgerLen()

	st.appendErr = errors.New("disk full")
	rb, err := e.Rollback(ctx, report.BatchID, "")
	require.Error(t, err)
	assert.Nil(t, rb)
	assert.True(t, errors.Is(err, ErrPersistence))
	assert.Equal(t, reconciled.Fields, st.record("coin-1").Fields)
	assert.Equal(t, ledger, st.ledgerLen())
}

func TestRollback_UnattributedValueRestoredWithoutProvenance(t *testing.T) {
	before := coin("coin-1")
	before.Fields[model.FieldMint] = "Rome"
	withField(before, model.FieldWeight, 3.90, "heritage", 70)
	st := newMemStore(before.Clone())
	e := newTestEngine(st)
	ctx := context.Background()

	report, err := e.Reconcile(ctx, Request{
		RecordID:          "coin-1",
		Observations:      []model.Observation{obs(model.FieldMint, "Antioch", "ocre")},
		ApprovedConflicts: []string{model.FieldMint},
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeAutoUpdated, report.Fields[model.FieldMint].Outcome)

	changes, err := st.ChangesByBatch(ctx, report.BatchID)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Empty(t, changes[0].OldSource)

	rb, err := e.Rollback(ctx, report.BatchID, "")
	require.NoError(t, err)
	assert.Equal(t, 1, rb.RestoredCount)

	after := st.record("coin-1")
	assert.Equal(t, before.Fields, after.Fields)
	assert.NotContains(t, after.Provenance, model.FieldMint)
	assert.Len(t, after.Provenance, len(before.Provenance))

	reversed, err := st.ChangesByBatch(ctx, rb.BatchID)
	require.NoError(t, err)
	require.Len(t, reversed, 1)
	assert.Equal(t, "Rome", reversed[0].NewValue)
	assert.Empty(t, reversed[0].NewSource)

	// A second rollback finds the bare value already in place.
	again, err := e.Rollback(ctx, report.BatchID, "")
	require.NoError(t, err)
	assert.Zero(t, again.RestoredCount)
}

func TestRestoreTargets_OldestEntryWins(t *testing.T) {
	entries := []model.ChangeRecord{
		{ID: 1, RecordID: "r", FieldName: "mint", OldValue: nil, NewValue: "Rome"},
		{ID: 2, RecordID: "r", FieldName: "grade", OldValue: "VF", OldSource: "", NewValue: "EF", TrustOld: 50},
		{ID: 3, RecordID: "r", FieldName: "mint", OldValue: "Rome", OldSource: "cng", NewValue: "Antioch"},
	}
	targets := restoreTargets(entries)
	require.Len(t, targets, 2)
	assert.Equal(t, "mint", targets[0].field)
	assert.Nil(t, targets[0].value)
	assert.Equal(t, "grade", targets[1].field)
	assert.Equal(t, "VF", targets[1].value)
	assert.Empty(t, targets[1].source)
}

func TestSameValue(t *testing.T) {
	assert.True(t, sameValue(nil, ""))
	assert.True(t, sameValue([]string{}, nil))
	assert.True(t, sameValue(3.9, 3.9))
	assert.True(t, sameValue([]string{"a", "b"}, []any{"a", "b"}))
	assert.False(t, sameValue("Rome", "rome"))
	assert.False(t, sameValue(nil, "Rome"))
}
