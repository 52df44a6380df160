package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/resolver-cli/internal/config"
	"github.com/sells-group/resolver-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func sampleResult() *model.ResolutionResult {
	return &model.ResolutionResult{
		Entities: []model.Entity{
			{
				EntityID:     "ENT000000",
				PartyIDs:     []string{"A", "B"},
				Type:         model.EntityBusiness,
				Confidence:   0.95,
				RiskScore:    0.1,
				ResolvedName: "Acme Inc",
				Sources:      []model.SourceSystem{model.SourceRegistry},
				RecordCount:  2,
			},
			{
				EntityID:     "ENT000001",
				PartyIDs:     []string{"C"},
				Type:         model.EntityIndividual,
				PEPFlag:      true,
				Confidence:   0.7,
				RiskScore:    0.1,
				ResolvedName: "Senator Jane Doe",
				Sources:      []model.SourceSystem{model.SourceScreening},
				RecordCount:  1,
			},
		},
		Mapping: map[string]string{
			"A": "ENT000000",
			"B": "ENT000000",
			"C": "ENT000001",
		},
		Exclusions: []model.Exclusion{
			{PartyID: "X", Source: "mystery", Reason: "unknown source system"},
		},
		Summary: model.RunSummary{
			RecordsIn:       4,
			RecordsExcluded: 1,
			TotalEntities:   2,
		},
	}
}

func TestSQLite_RunLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)

	sum := &model.RunSummary{RecordsIn: 4, TotalEntities: 2}
	require.NoError(t, st.CompleteRun(ctx, run.ID, sum))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	require.NotNil(t, got.Summary)
	assert.Equal(t, 2, got.Summary.TotalEntities)
}

func TestSQLite_FailRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx)
	require.NoError(t, err)
	require.NoError(t, st.FailRun(ctx, run.ID, errors.New("blocking exploded")))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Contains(t, got.Error, "blocking exploded")
}

func TestSQLite_CompleteRun_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)
	err := st.CompleteRun(context.Background(), "no-such-run", &model.RunSummary{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_GetRun_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)
	_, err := st.GetRun(context.Background(), "no-such-run")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ListRuns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	first, err := st.CreateRun(ctx)
	require.NoError(t, err)
	_, err = st.CreateRun(ctx)
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(ctx, first.ID, &model.RunSummary{}))

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	complete, err := st.ListRuns(ctx, RunFilter{Status: model.RunStatusComplete})
	require.NoError(t, err)
	require.Len(t, complete, 1)
	assert.Equal(t, first.ID, complete[0].ID)
}

func TestSQLite_LatestCompleteRunID(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.LatestCompleteRunID(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	run, err := st.CreateRun(ctx)
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(ctx, run.ID, &model.RunSummary{}))

	id, err := st.LatestCompleteRunID(ctx)
	require.NoError(t, err)
	assert.Equal(t, run.ID, id)
}

func TestSQLite_SaveAndQueryResult(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx)
	require.NoError(t, err)
	require.NoError(t, st.SaveResult(ctx, run.ID, sampleResult()))

	entities, err := st.ListEntities(ctx, run.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, entities, 2)
	assert.Equal(t, "ENT000000", entities[0].EntityID)
	assert.Equal(t, []string{"A", "B"}, entities[0].PartyIDs)

	e, err := st.GetEntity(ctx, run.ID, "ENT000001")
	require.NoError(t, err)
	assert.True(t, e.PEPFlag)
	assert.Equal(t, "Senator Jane Doe", e.ResolvedName)

	byParty, err := st.GetEntityByParty(ctx, run.ID, "B")
	require.NoError(t, err)
	assert.Equal(t, "ENT000000", byParty.EntityID)

	_, err = st.GetEntityByParty(ctx, run.ID, "Z")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ListEntities_Pagination(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx)
	require.NoError(t, err)
	require.NoError(t, st.SaveResult(ctx, run.ID, sampleResult()))

	page, err := st.ListEntities(ctx, run.ID, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "ENT000001", page[0].EntityID)
}

func TestSQLite_ResultsIsolatedByRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	runA, err := st.CreateRun(ctx)
	require.NoError(t, err)
	require.NoError(t, st.SaveResult(ctx, runA.ID, sampleResult()))

	runB, err := st.CreateRun(ctx)
	require.NoError(t, err)

	entities, err := st.ListEntities(ctx, runB.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, entities)

	_, err = st.GetEntity(ctx, runB.ID, "ENT000000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: "mongodb"})
	assert.Error(t, err)
}

func TestOpen_SQLite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "open.db")
	st, err := Open(context.Background(), config.StoreConfig{Driver: "sqlite", DatabaseURL: dbPath})
	require.NoError(t, err)
	defer st.Close()
	assert.NoError(t, st.Migrate(context.Background()))
}
