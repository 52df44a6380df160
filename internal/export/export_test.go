package export

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/resolver-cli/internal/model"
)

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
				RiskScore:    0.4,
				ResolvedName: "Jane Doe",
				Sources:      []model.SourceSystem{model.SourceScreening},
				RecordCount:  1,
			},
		},
		Mapping: map[string]string{
			"C": "ENT000001",
			"A": "ENT000000",
			"B": "ENT000000",
		},
		Summary: model.RunSummary{RecordsIn: 3, TotalEntities: 2},
	}
}

func readCSVFile(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriteCSV(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteCSV(sampleResult(), dir))

	entities := readCSVFile(t, filepath.Join(dir, "entities.csv"))
	require.Len(t, entities, 3)
	assert.Equal(t, entityHeader, entities[0])
	assert.Equal(t, "ENT000000", entities[1][0])
	assert.Equal(t, "business", entities[1][1])
	assert.Equal(t, "A;B", entities[1][12])
	assert.Equal(t, "true", entities[2][2]) // pep flag

	mapping := readCSVFile(t, filepath.Join(dir, "party_mapping.csv"))
	require.Len(t, mapping, 4)
	// Mapping rows sort by party ID regardless of map iteration order.
	assert.Equal(t, []string{"A", "ENT000000"}, mapping[1])
	assert.Equal(t, []string{"B", "ENT000000"}, mapping[2])
	assert.Equal(t, []string{"C", "ENT000001"}, mapping[3])
}

func TestWriteCSV_Deterministic(t *testing.T) {
	dirA, dirB := t.TempDir(), t.TempDir()
	require.NoError(t, WriteCSV(sampleResult(), dirA))
	require.NoError(t, WriteCSV(sampleResult(), dirB))

	for _, name := range []string{"entities.csv", "party_mapping.csv"} {
		a, err := os.ReadFile(filepath.Join(dirA, name))
		require.NoError(t, err)
		b, err := os.ReadFile(filepath.Join(dirB, name))
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "entities.json")
	require.NoError(t, WriteJSON(sampleResult(), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got model.ResolutionResult
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Len(t, got.Entities, 2)
	assert.Equal(t, "ENT000001", got.Mapping["C"])
	assert.Equal(t, 3, got.Summary.RecordsIn)
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entities.xlsx")
	require.NoError(t, WriteXLSX(sampleResult(), path))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 3)

	entities := f.Sheets[0]
	assert.Equal(t, "Entities", entities.Name)
	require.Len(t, entities.Rows, 3)
	assert.Equal(t, "ENT000000", entities.Rows[1].Cells[0].String())
	assert.Equal(t, "Acme Inc", entities.Rows[1].Cells[5].String())

	mapping := f.Sheets[1]
	assert.Equal(t, "Mapping", mapping.Name)
	require.Len(t, mapping.Rows, 4)
	assert.Equal(t, "A", mapping.Rows[1].Cells[0].String())

	summary := f.Sheets[2]
	assert.Equal(t, "Summary", summary.Name)
	assert.Equal(t, "records_in", summary.Rows[0].Cells[0].String())
}
