package pipeline

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/windguru-tools/wgscrape/models"
)

func TestSQLiteWriterWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forecast.db")

	writer, err := NewSQLiteWriter(path)
	if err != nil {
		t.Fatalf("create sqlite writer: %v", err)
	}

	if err := writer.Validate(); err == nil {
		t.Fatal("expected validation error for empty database")
	}

	if err := writer.Write([]*models.Record{datedRecord(), undatedRecord()}); err != nil {
		t.Fatalf("write sqlite: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate after write: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close sqlite: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("reopen database: %v", err)
	}
	defer db.Close()

	var cells int
	if err := db.QueryRow(`SELECT COUNT(*) FROM forecast_cells`).Scan(&cells); err != nil {
		t.Fatalf("count cells: %v", err)
	}
	if cells != 5 {
		t.Fatalf("cells = %d, want 5", cells)
	}

	var status, value string
	var num float64
	err = db.QueryRow(`SELECT status, value, value_num FROM forecast_cells
		WHERE table_key = 'forecast' AND column_key = 'wind_speed'`).
		Scan(&status, &value, &num)
	if err != nil {
		t.Fatalf("query wind_speed cell: %v", err)
	}
	if status != "ok" || value != "12" || num != 12 {
		t.Fatalf("wind_speed cell = (%q, %q, %v), want (ok, 12, 12)", status, value, num)
	}

	var faultStatus string
	var faultNum sql.NullFloat64
	err = db.QueryRow(`SELECT status, value_num FROM forecast_cells
		WHERE table_key = 'forecast' AND column_key = 'temperature'`).
		Scan(&faultStatus, &faultNum)
	if err != nil {
		t.Fatalf("query temperature cell: %v", err)
	}
	if faultStatus != "parse_error" || faultNum.Valid {
		t.Fatalf("temperature cell = (%q, valid=%v), want (parse_error, NULL)", faultStatus, faultNum.Valid)
	}

	var day sql.NullString
	err = db.QueryRow(`SELECT day FROM forecast_cells
		WHERE table_key = 'observations' AND column_key = 'wind_speed'`).Scan(&day)
	if err != nil {
		t.Fatalf("query undated cell: %v", err)
	}
	if day.Valid {
		t.Fatalf("undated cell day = %q, want NULL", day.String)
	}

	var missingValue sql.NullString
	err = db.QueryRow(`SELECT value FROM forecast_cells
		WHERE table_key = 'observations' AND column_key = 'tide'`).Scan(&missingValue)
	if err != nil {
		t.Fatalf("query missing cell: %v", err)
	}
	if missingValue.Valid {
		t.Fatalf("missing cell value = %q, want NULL", missingValue.String)
	}
}

func TestSQLiteWriterWriteResult(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forecast.db")

	writer, err := NewSQLiteWriter(path)
	if err != nil {
		t.Fatalf("create sqlite writer: %v", err)
	}

	res := &models.ScrapeResult{
		RunID:     "run-1",
		Source:    "https://station.test/53",
		StartTime: time.Date(2025, 11, 4, 13, 9, 0, 0, time.UTC),
		EndTime:   time.Date(2025, 11, 4, 13, 9, 13, 0, time.UTC),
		PageFields: map[string]models.Value{
			"spot_name":  models.Scalar("Pointe de la Torche"),
			"water_temp": models.Missing("no_data"),
		},
		FieldCount: 2,
		RowCount:   0,
		CellCount:  0,
	}

	if err := writer.WriteResult(res); err != nil {
		t.Fatalf("write result: %v", err)
	}
	// Replaying the same run replaces rather than duplicates.
	if err := writer.WriteResult(res); err != nil {
		t.Fatalf("rewrite result: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close sqlite: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("reopen database: %v", err)
	}
	defer db.Close()

	var runs int
	if err := db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&runs); err != nil {
		t.Fatalf("count runs: %v", err)
	}
	if runs != 1 {
		t.Fatalf("runs = %d, want 1", runs)
	}

	var source string
	if err := db.QueryRow(`SELECT source FROM runs WHERE run_id = 'run-1'`).Scan(&source); err != nil {
		t.Fatalf("query run: %v", err)
	}
	if source != res.Source {
		t.Fatalf("source = %q, want %q", source, res.Source)
	}

	var fields int
	if err := db.QueryRow(`SELECT COUNT(*) FROM page_fields`).Scan(&fields); err != nil {
		t.Fatalf("count page fields: %v", err)
	}
	if fields != 2 {
		t.Fatalf("page fields = %d, want 2", fields)
	}

	var spot string
	err = db.QueryRow(`SELECT value FROM page_fields
		WHERE run_id = 'run-1' AND name = 'spot_name'`).Scan(&spot)
	if err != nil {
		t.Fatalf("query spot_name: %v", err)
	}
	if spot != "Pointe de la Torche" {
		t.Fatalf("spot_name = %q, want %q", spot, "Pointe de la Torche")
	}

	var missing sql.NullString
	err = db.QueryRow(`SELECT value FROM page_fields
		WHERE run_id = 'run-1' AND name = 'water_temp'`).Scan(&missing)
	if err != nil {
		t.Fatalf("query water_temp: %v", err)
	}
	if missing.Valid {
		t.Fatalf("water_temp value = %q, want NULL", missing.String)
	}
}
