package resolve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/resolver-cli/internal/config"
	"github.com/sells-group/resolver-cli/internal/model"
)

func testResolutionConfig() config.ResolutionConfig {
	return config.ResolutionConfig{
		Weights:    config.WeightsConfig{Name: 0.4, Email: 0.3, Phone: 0.2, Address: 0.1},
		Thresholds: config.ThresholdsConfig{Overall: 0.80},
		Blocking: config.BlockingConfig{
			Strategies:     []string{"name_prefix", "name_token", "email_prefix", "phone_prefix"},
			NamePrefixLen:  5,
			TokenPrefixLen: 4,
			EmailPrefixLen: 6,
			PhonePrefixLen: 4,
			MaxBlockSize:   1000,
		},
		Cluster: config.ClusterConfig{MaxSize: 100},
		Keywords: config.KeywordsConfig{
			Business:   []string{"inc", "corp", "ltd", "llc"},
			PEP:        []string{"senator", "minister"},
			Suspicious: []string{"test", "fake", "dummy"},
		},
		Confidence: config.ConfidenceConfig{
			SingleRecordBaseline: 0.7,
			SizeBoostPerRecord:   0.05,
			SizeBoostCap:         0.2,
		},
		Risk: config.RiskConfig{
			Baseline:             0.1,
			MultiRecordThreshold: 3,
			MultiRecordIncrement: 0.2,
			SuspiciousIncrement:  0.3,
		},
		Workers: 2,
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	rc := testResolutionConfig()
	rc.Weights.Name = 0.9 // weights no longer sum to 1

	_, err := New(rc)
	assert.Error(t, err)
}

func TestResolve_EndToEnd(t *testing.T) {
	engine, err := New(testResolutionConfig())
	require.NoError(t, err)

	records := []model.PartyRecord{
		{PartyID: "id1", Name: "Acme Inc", SourceSystem: model.SourceRegistry},
		{PartyID: "id2", Name: "ACME, INC.", SourceSystem: model.SourceRegistry},
		{PartyID: "id3", Name: "Jane Doe", SourceSystem: model.SourceRegistry},
	}

	result, err := engine.Resolve(context.Background(), records)
	require.NoError(t, err)

	require.Len(t, result.Entities, 2)

	acme := result.Entities[0]
	assert.Equal(t, "ENT000000", acme.EntityID)
	assert.ElementsMatch(t, []string{"id1", "id2"}, acme.PartyIDs)
	assert.Equal(t, model.EntityBusiness, acme.Type)
	assert.Equal(t, "ACME, INC.", acme.ResolvedName) // longest raw name
	assert.Equal(t, 2, acme.RecordCount)

	jane := result.Entities[1]
	assert.Equal(t, "ENT000001", jane.EntityID)
	assert.Equal(t, []string{"id3"}, jane.PartyIDs)
	assert.Equal(t, model.EntityIndividual, jane.Type)
	assert.Equal(t, 0.7, jane.Confidence)

	assert.Equal(t, map[string]string{
		"id1": "ENT000000",
		"id2": "ENT000000",
		"id3": "ENT000001",
	}, result.Mapping)
}

func TestResolve_PartitionIsTotal(t *testing.T) {
	engine, err := New(testResolutionConfig())
	require.NoError(t, err)

	records := []model.PartyRecord{
		{PartyID: "a", Name: "Acme Inc", Email: "ops@acme.com", SourceSystem: model.SourceRegistry},
		{PartyID: "b", Name: "Acme Corp", Email: "ops@acme.com", SourceSystem: model.SourceRegistry},
		{PartyID: "c", Name: "Jane Doe", Phone: "5551234567", SourceSystem: model.SourceTransactions},
		{PartyID: "d", Name: "Bob Smith", SourceSystem: model.SourceScreening},
	}

	result, err := engine.Resolve(context.Background(), records)
	require.NoError(t, err)

	// Every well-formed record maps to exactly one entity.
	assert.Len(t, result.Mapping, 4)
	counted := 0
	for _, e := range result.Entities {
		counted += e.RecordCount
	}
	assert.Equal(t, 4, counted)
}

func TestResolve_Exclusions(t *testing.T) {
	engine, err := New(testResolutionConfig())
	require.NoError(t, err)

	records := []model.PartyRecord{
		{PartyID: "ok", Name: "Jane Doe", SourceSystem: model.SourceTransactions},
		{PartyID: "", Name: "No ID", SourceSystem: model.SourceTransactions},
		{PartyID: "bad-src", Name: "Bob", SourceSystem: "mystery"},
	}

	result, err := engine.Resolve(context.Background(), records)
	require.NoError(t, err)

	require.Len(t, result.Exclusions, 2)
	assert.Equal(t, "missing party_id", result.Exclusions[0].Reason)
	assert.Equal(t, "bad-src", result.Exclusions[1].PartyID)

	assert.Len(t, result.Entities, 1)
	assert.NotContains(t, result.Mapping, "bad-src")
	assert.Equal(t, 3, result.Summary.RecordsIn)
	assert.Equal(t, 2, result.Summary.RecordsExcluded)
}

func TestResolve_EmptyInput(t *testing.T) {
	engine, err := New(testResolutionConfig())
	require.NoError(t, err)

	result, err := engine.Resolve(context.Background(), nil)
	require.NoError(t, err)

	assert.Empty(t, result.Entities)
	assert.Empty(t, result.Mapping)
	assert.Equal(t, 0, result.Summary.TotalEntities)
}

func TestResolve_Summary(t *testing.T) {
	engine, err := New(testResolutionConfig())
	require.NoError(t, err)

	records := []model.PartyRecord{
		{PartyID: "a", Name: "Acme Inc", SourceSystem: model.SourceRegistry},
		{PartyID: "b", Name: "Senator Jane Doe", SourceSystem: model.SourceScreening},
	}

	result, err := engine.Resolve(context.Background(), records)
	require.NoError(t, err)

	sum := result.Summary
	assert.Equal(t, 2, sum.TotalEntities)
	assert.Equal(t, 1, sum.BusinessEntities)
	assert.Equal(t, 1, sum.IndividualEntities)
	assert.Equal(t, 1, sum.PEPEntities)
	assert.InDelta(t, 0.7, sum.AvgConfidence, 1e-12)
	assert.InDelta(t, 1.0, sum.AvgRecordsPerEntity, 1e-12)
}

func TestResolve_SummaryOverflowBlocks(t *testing.T) {
	rc := testResolutionConfig()
	rc.Blocking.MaxBlockSize = 2

	engine, err := New(rc)
	require.NoError(t, err)

	records := []model.PartyRecord{
		{PartyID: "a", Name: "Maria Lopez", SourceSystem: model.SourceRegistry},
		{PartyID: "b", Name: "Maria Lopez", SourceSystem: model.SourceRegistry},
		{PartyID: "c", Name: "Maria Lopez", SourceSystem: model.SourceRegistry},
	}

	result, err := engine.Resolve(context.Background(), records)
	require.NoError(t, err)

	// Three records share every name block, so the split keys surface in the
	// summary for review.
	assert.Contains(t, result.Summary.OverflowBlocks, "orbis|name_prefix|maria")

	// A run without oversized blocks reports none.
	small, err := engine.Resolve(context.Background(), records[:1])
	require.NoError(t, err)
	assert.Empty(t, small.Summary.OverflowBlocks)
}

func TestResolve_Deterministic(t *testing.T) {
	engine, err := New(testResolutionConfig())
	require.NoError(t, err)

	records := []model.PartyRecord{
		{PartyID: "a", Name: "Acme Inc", Email: "ops@acme.com", SourceSystem: model.SourceRegistry},
		{PartyID: "b", Name: "ACME INC", Email: "ops@acme.com", SourceSystem: model.SourceRegistry},
		{PartyID: "c", Name: "Jane Doe", SourceSystem: model.SourceTransactions},
		{PartyID: "d", Name: "Doe Jane", SourceSystem: model.SourceTransactions},
	}

	first, err := engine.Resolve(context.Background(), records)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := engine.Resolve(context.Background(), records)
		require.NoError(t, err)
		assert.Equal(t, first.Entities, again.Entities)
		assert.Equal(t, first.Mapping, again.Mapping)
	}
}
