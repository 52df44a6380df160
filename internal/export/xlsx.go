package export

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/resolver-cli/internal/model"
)

// WriteXLSX writes a workbook with Entities, Mapping, and Summary sheets.
func WriteXLSX(result *model.ResolutionResult, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "export: create output dir")
	}

	f := xlsx.NewFile()

	entities, err := f.AddSheet("Entities")
	if err != nil {
		return eris.Wrap(err, "export: add entities sheet")
	}
	addStringRow(entities, entityHeader)
	for i := range result.Entities {
		addStringRow(entities, entityRow(&result.Entities[i]))
	}

	mapping, err := f.AddSheet("Mapping")
	if err != nil {
		return eris.Wrap(err, "export: add mapping sheet")
	}
	addStringRow(mapping, mappingHeader)
	for _, row := range sortedMapping(result.Mapping) {
		addStringRow(mapping, row)
	}

	summary, err := f.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "export: add summary sheet")
	}
	addSummary(summary, &result.Summary)

	return eris.Wrapf(f.Save(path), "export: save %s", path)
}

func addStringRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func addSummary(sheet *xlsx.Sheet, sum *model.RunSummary) {
	addMetric := func(name string, set func(c *xlsx.Cell)) {
		row := sheet.AddRow()
		row.AddCell().SetString(name)
		set(row.AddCell())
	}
	addMetric("records_in", func(c *xlsx.Cell) { c.SetInt(sum.RecordsIn) })
	addMetric("records_excluded", func(c *xlsx.Cell) { c.SetInt(sum.RecordsExcluded) })
	addMetric("total_entities", func(c *xlsx.Cell) { c.SetInt(sum.TotalEntities) })
	addMetric("individual_entities", func(c *xlsx.Cell) { c.SetInt(sum.IndividualEntities) })
	addMetric("business_entities", func(c *xlsx.Cell) { c.SetInt(sum.BusinessEntities) })
	addMetric("pep_entities", func(c *xlsx.Cell) { c.SetInt(sum.PEPEntities) })
	addMetric("avg_confidence", func(c *xlsx.Cell) { c.SetFloat(sum.AvgConfidence) })
	addMetric("avg_records_per_entity", func(c *xlsx.Cell) { c.SetFloat(sum.AvgRecordsPerEntity) })
	addMetric("overflow_blocks", func(c *xlsx.Cell) { c.SetInt(len(sum.OverflowBlocks)) })
}
