package scraper

import (
	"fmt"
	"log/slog"

	"golang.org/x/net/html"

	"github.com/windguru-tools/wgscrape/models"
	"github.com/windguru-tools/wgscrape/schema"
)

// extractTable walks the forecast horizon row by row, columns in
// declaration order. Cell containers are located by synthesized ids of
// the form <base><suffix>_<rowIndex> under the table root. A row whose
// every column comes back missing or locator-not-found marks the end of
// the model's horizon: the row is dropped and iteration stops, so no
// later index is attempted.
func (a *Assembler) extractTable(docRoot *html.Node, spec schema.Table, rowCount int) ([]models.ForecastRow, error) {
	root, err := a.res.ResolveOne(docRoot, spec.Location)
	if err != nil {
		return nil, fmt.Errorf("resolve table root: %w", err)
	}

	baseID := spec.Location.Value
	if spec.Location.Kind != schema.LocatorID {
		id, ok := attrValue(root, "id")
		if !ok || id == "" {
			return nil, fmt.Errorf("table root carries no id attribute to synthesize cell ids from")
		}
		baseID = id
	}

	rows := make([]models.ForecastRow, 0, rowCount)
	for idx := 0; idx < rowCount; idx++ {
		row := models.ForecastRow{
			Index:  idx,
			Values: make(map[string]models.Value, len(spec.Columns)),
		}
		populated := false
		for _, col := range spec.Columns {
			v := a.extractCell(root, spec, col, baseID, idx)
			row.Values[col.Key] = v
			a.metrics.IncCell(v.Status())
			if keepsRowAlive(v) {
				populated = true
			}
		}
		if !populated {
			slog.Debug("forecast horizon reached",
				slog.String("table", spec.Key),
				slog.Int("row", idx),
			)
			break
		}
		rows = append(rows, row)
		a.metrics.IncRows()
	}
	return rows, nil
}

func (a *Assembler) extractCell(tableRoot *html.Node, spec schema.Table, col schema.Column, baseID string, rowIdx int) models.Value {
	cellID := fmt.Sprintf("%s%s_%d", baseID, col.RowIDSuffix, rowIdx)
	container := elementByID(tableRoot, cellID)
	if container == nil {
		return models.Missing("cell_not_found")
	}

	target := container
	if col.RequiresActiveCell {
		active, err := a.activeCell(container, spec, col)
		if err != nil {
			return models.Fault(models.FaultConfig, err.Error())
		}
		if active == nil {
			return models.Missing("inactive_cell")
		}
		target = active
	}
	return a.extract(target, col.Extraction)
}

// activeCell returns the first candidate cell under the container that
// carries the table's active marker class, or nil when the forecast step
// lies outside the model's horizon.
func (a *Assembler) activeCell(container *html.Node, spec schema.Table, col schema.Column) (*html.Node, error) {
	candidates, err := a.res.Resolve(container, *col.CellSelector)
	if err != nil {
		return nil, err
	}
	for _, n := range candidates {
		if hasClass(n, spec.ActiveClass) {
			return n, nil
		}
	}
	return nil, nil
}

// keepsRowAlive reports whether a value counts as data for the horizon
// rule. Missing data and unresolved locators do not; parse faults do,
// since they prove the page still carries cells at this step.
func keepsRowAlive(v models.Value) bool {
	if v.IsMissing() {
		return false
	}
	if kind, _, ok := v.Fault(); ok && kind == models.FaultLocator {
		return false
	}
	return true
}
