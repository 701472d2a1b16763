package scraper

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"golang.org/x/net/html"

	"github.com/windguru-tools/wgscrape/models"
	"github.com/windguru-tools/wgscrape/schema"
)

// Assembler turns a parsed document into a ScrapeResult according to a
// schema. It owns the locator caches, so reusing one assembler across
// scrapes keeps compiled selectors warm.
type Assembler struct {
	res     *Resolver
	metrics *Metrics
}

func NewAssembler(metrics *Metrics) *Assembler {
	return &Assembler{
		res:     NewResolver(),
		metrics: metrics,
	}
}

// Assemble extracts every page field and table the config declares.
// Failures are recorded in the result rather than returned: a fault in
// one column never blocks its neighbors. The only error paths are an
// invalid config and a nil document.
func (a *Assembler) Assemble(doc *goquery.Document, cfg *schema.Config, rowCount int) (*models.ScrapeResult, error) {
	if doc == nil {
		return nil, fmt.Errorf("assemble: nil document")
	}
	if cfg == nil {
		return nil, fmt.Errorf("assemble: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("assemble: %w", err)
	}
	root := doc.Get(0)
	if root == nil {
		return nil, fmt.Errorf("assemble: empty document")
	}

	start := time.Now()
	result := &models.ScrapeResult{
		RunID:        uuid.NewString(),
		StartTime:    start,
		PageFields:   make(map[string]models.Value, len(cfg.Fields)),
		Tables:       make(map[string][]models.ForecastRow, len(cfg.Tables)),
		TableErrors:  make(map[string]string),
		FaultsByKind: make(map[string]int),
	}

	for _, f := range cfg.Fields {
		v := a.extractField(root, f)
		result.PageFields[f.Name] = v
		a.recordField(result, f.Name, v)
	}

	for _, t := range cfg.Tables {
		rows, err := a.extractTable(root, t, rowCount)
		if err != nil {
			slog.Warn("table extraction failed",
				slog.String("table", t.Key),
				slog.String("error", err.Error()),
			)
			result.TableErrors[t.Key] = err.Error()
			result.FaultsByKind[string(models.FaultLocator)]++
			result.Tables[t.Key] = []models.ForecastRow{}
			continue
		}
		result.Tables[t.Key] = rows
		result.RowCount += len(rows)
		for _, row := range rows {
			result.CellCount += len(row.Values)
			for _, v := range row.Values {
				if kind, _, ok := v.Fault(); ok {
					result.FaultsByKind[string(kind)]++
				}
			}
		}
	}

	result.EndTime = time.Now()
	a.metrics.ObserveScrape(result.EndTime.Sub(start))
	return result, nil
}

// extractField resolves the field's location and runs its extraction.
// When sub_fields are declared they are resolved against the field's own
// node and merged into a mapping: the parent's captures at the top level
// when its extraction yields a mapping, under "value" otherwise.
func (a *Assembler) extractField(scope *html.Node, f schema.Field) models.Value {
	node, err := a.res.ResolveOne(scope, f.Location)
	if err != nil {
		return fieldFault(err)
	}

	own := a.extract(node, f.Extraction)
	if len(f.SubFields) == 0 {
		return own
	}

	merged := make(map[string]models.Value, len(f.SubFields)+1)
	if m, ok := own.Map(); ok {
		for k, v := range m {
			merged[k] = v
		}
	} else {
		merged["value"] = own
	}
	for _, sub := range f.SubFields {
		merged[sub.Name] = a.extractField(node, sub)
	}
	return models.Mapping(merged)
}

func (a *Assembler) recordField(result *models.ScrapeResult, name string, v models.Value) {
	result.FieldCount++
	a.metrics.IncField(v.Status())
	if kind, detail, ok := v.Fault(); ok {
		result.FaultsByKind[string(kind)]++
		slog.Debug("field extraction fault",
			slog.String("field", name),
			slog.String("kind", string(kind)),
			slog.String("detail", detail),
		)
	}
}
