// Package export writes resolution output to CSV, JSON, and XLSX files.
package export

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/resolver-cli/internal/model"
)

var entityHeader = []string{
	"entity_id", "entity_type", "pep_flag", "confidence_score", "risk_score",
	"resolved_name", "resolved_email", "resolved_phone", "resolved_address",
	"resolved_country", "source_systems", "record_count", "party_ids",
}

var mappingHeader = []string{"party_id", "entity_id"}

func entityRow(e *model.Entity) []string {
	sources := make([]string, len(e.Sources))
	for i, s := range e.Sources {
		sources[i] = string(s)
	}
	return []string{
		e.EntityID,
		string(e.Type),
		strconv.FormatBool(e.PEPFlag),
		strconv.FormatFloat(e.Confidence, 'f', 4, 64),
		strconv.FormatFloat(e.RiskScore, 'f', 4, 64),
		e.ResolvedName,
		e.ResolvedEmail,
		e.ResolvedPhone,
		e.ResolvedAddress,
		e.ResolvedCountry,
		strings.Join(sources, ";"),
		strconv.Itoa(e.RecordCount),
		strings.Join(e.PartyIDs, ";"),
	}
}

// sortedMapping flattens the party→entity map into rows ordered by party ID
// so exports are byte-identical across runs.
func sortedMapping(mapping map[string]string) [][]string {
	partyIDs := make([]string, 0, len(mapping))
	for id := range mapping {
		partyIDs = append(partyIDs, id)
	}
	sort.Strings(partyIDs)

	rows := make([][]string, 0, len(partyIDs))
	for _, id := range partyIDs {
		rows = append(rows, []string{id, mapping[id]})
	}
	return rows
}

// WriteCSV writes entities.csv and party_mapping.csv into dir.
func WriteCSV(result *model.ResolutionResult, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrap(err, "export: create output dir")
	}

	if err := writeCSVFile(filepath.Join(dir, "entities.csv"), entityHeader, func(w *csv.Writer) error {
		for i := range result.Entities {
			if err := w.Write(entityRow(&result.Entities[i])); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	return writeCSVFile(filepath.Join(dir, "party_mapping.csv"), mappingHeader, func(w *csv.Writer) error {
		for _, row := range sortedMapping(result.Mapping) {
			if err := w.Write(row); err != nil {
				return err
			}
		}
		return nil
	})
}

func writeCSVFile(path string, header []string, body func(w *csv.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return eris.Wrapf(err, "export: write header %s", path)
	}
	if err := body(w); err != nil {
		return eris.Wrapf(err, "export: write rows %s", path)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrapf(err, "export: flush %s", path)
	}
	return eris.Wrapf(f.Close(), "export: close %s", path)
}

// WriteJSON writes the full resolution result as one indented JSON document.
func WriteJSON(result *model.ResolutionResult, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "export: create output dir")
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return eris.Wrapf(err, "export: encode %s", path)
	}
	return eris.Wrapf(f.Close(), "export: close %s", path)
}
