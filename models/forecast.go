package models

import (
	"encoding/json"
	"time"
)

// TideKind is the phase of a tide event.
type TideKind string

const (
	TideHigh TideKind = "high"
	TideLow  TideKind = "low"
)

// Opposite returns the other tide phase.
func (k TideKind) Opposite() TideKind {
	if k == TideHigh {
		return TideLow
	}
	return TideHigh
}

// TideEvent is one classified tide occurrence within a forecast day.
type TideEvent struct {
	Time string   `json:"time"`
	Kind TideKind `json:"kind"`
}

// ForecastRow holds the extracted values of one forecast step, keyed by
// column key. Index is the 0-based offset into the forecast horizon.
// Rows are immutable once the table extractor returns them.
type ForecastRow struct {
	Index  int              `json:"index"`
	Values map[string]Value `json:"values"`
}

// ScrapeResult is the sole output artifact of one assemble call: scalar
// page fields plus the extracted rows of every configured table.
type ScrapeResult struct {
	RunID     string    `json:"run_id"`
	Source    string    `json:"source,omitempty"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	PageFields map[string]Value         `json:"page_fields"`
	Tables     map[string][]ForecastRow `json:"tables"`

	// TableErrors records tables whose root location could not be
	// resolved; those tables produce no rows but never abort the run.
	TableErrors map[string]string `json:"table_errors,omitempty"`

	// FaultsByKind tallies degraded values across fields and cells.
	FaultsByKind map[string]int `json:"faults_by_kind,omitempty"`

	FieldCount int `json:"field_count"`
	CellCount  int `json:"cell_count"`
	RowCount   int `json:"row_count"`
}

// Rows returns the extracted rows of one table.
func (r *ScrapeResult) Rows(tableKey string) []ForecastRow {
	if r == nil {
		return nil
	}
	return r.Tables[tableKey]
}

// Record is one flattened, enriched export row built from a ForecastRow:
// the declared column values plus the derived columns (parsed date parts,
// averaged wind, display arrows, split cloud layers).
type Record struct {
	Table      string           `json:"table"`
	Row        int              `json:"row"`
	Day        string           `json:"day,omitempty"`
	DayOfMonth int              `json:"day_of_month,omitempty"`
	Hour       int              `json:"hour,omitempty"`
	Values     map[string]Value `json:"values"`
	ScrapedAt  time.Time        `json:"scraped_at"`
}

// HasDate reports whether the record carries parsed date parts.
func (r *Record) HasDate() bool {
	return r != nil && r.Day != ""
}

// MarshalJSON emits the date parts as a group: all three for dated
// records, none for undated ones. Hour zero is a valid step time, so
// omitempty alone cannot be trusted with it.
func (r *Record) MarshalJSON() ([]byte, error) {
	out := recordJSON{
		Table:     r.Table,
		Row:       r.Row,
		Values:    r.Values,
		ScrapedAt: r.ScrapedAt,
	}
	if r.HasDate() {
		out.Day = r.Day
		out.DayOfMonth = &r.DayOfMonth
		out.Hour = &r.Hour
	}
	return json.Marshal(out)
}

type recordJSON struct {
	Table      string           `json:"table"`
	Row        int              `json:"row"`
	Day        string           `json:"day,omitempty"`
	DayOfMonth *int             `json:"day_of_month,omitempty"`
	Hour       *int             `json:"hour,omitempty"`
	Values     map[string]Value `json:"values"`
	ScrapedAt  time.Time        `json:"scraped_at"`
}
