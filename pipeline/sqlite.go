package pipeline

import (
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/windguru-tools/wgscrape/models"
)

// Timestamps are stored as RFC3339Nano TEXT: SQLite has no native
// timestamp type and strings round-trip reliably through the driver.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS forecast_cells (
  table_key    TEXT NOT NULL,
  row_idx      INTEGER NOT NULL,
  day          TEXT,
  day_of_month INTEGER,
  hour         INTEGER,
  column_key   TEXT NOT NULL,
  status       TEXT NOT NULL,
  value        TEXT,
  value_num    REAL,
  scraped_at   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS runs (
  run_id      TEXT PRIMARY KEY,
  source      TEXT,
  started_at  TEXT NOT NULL,
  finished_at TEXT NOT NULL,
  field_count INTEGER NOT NULL,
  row_count   INTEGER NOT NULL,
  cell_count  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS page_fields (
  run_id TEXT NOT NULL,
  name   TEXT NOT NULL,
  status TEXT NOT NULL,
  value  TEXT,
  PRIMARY KEY (run_id, name)
);
`

const insertCellSQL = `INSERT INTO forecast_cells
  (table_key, row_idx, day, day_of_month, hour, column_key, status, value, value_num, scraped_at)
  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// SQLiteWriter persists records into a SQLite database, one row per cell.
// It also implements ResultWriter to store run metadata and page fields.
type SQLiteWriter struct {
	db      *sql.DB
	mu      sync.Mutex
	written int64
}

// NewSQLiteWriter opens (or creates) the database file and ensures the
// schema exists.
func NewSQLiteWriter(filename string) (*SQLiteWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}

	return &SQLiteWriter{db: db}, nil
}

// Write inserts every cell of every record inside one transaction.
// Column keys are inserted in sorted order so reruns produce identical
// databases.
func (sw *SQLiteWriter) Write(records []*models.Record) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	tx, err := sw.db.Begin()
	if err != nil {
		return fmt.Errorf("begin sqlite tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(insertCellSQL)
	if err != nil {
		return fmt.Errorf("prepare cell insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, rec := range records {
		var day, dayOfMonth, hour any
		if rec.HasDate() {
			day, dayOfMonth, hour = rec.Day, rec.DayOfMonth, rec.Hour
		}
		scraped := rec.ScrapedAt.UTC().Format(time.RFC3339Nano)

		for _, key := range sortedValueKeys(rec.Values) {
			v := rec.Values[key]
			var text, num any
			if !v.IsMissing() {
				text = v.Cell()
			}
			if f, ok := v.Float(); ok {
				num = f
			}
			if _, err := stmt.Exec(rec.Table, rec.Row, day, dayOfMonth, hour,
				key, v.Status(), text, num, scraped); err != nil {
				return fmt.Errorf("insert forecast cell: %w", err)
			}
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sqlite tx: %w", err)
	}
	sw.written += inserted
	return nil
}

// WriteResult stores the run metadata and page fields of one scrape.
// Rewrites of the same run id replace the previous rows.
func (sw *SQLiteWriter) WriteResult(res *models.ScrapeResult) error {
	if res == nil {
		return nil
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()

	tx, err := sw.db.Begin()
	if err != nil {
		return fmt.Errorf("begin sqlite tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`INSERT OR REPLACE INTO runs
		(run_id, source, started_at, finished_at, field_count, row_count, cell_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		res.RunID, res.Source,
		res.StartTime.UTC().Format(time.RFC3339Nano),
		res.EndTime.UTC().Format(time.RFC3339Nano),
		res.FieldCount, res.RowCount, res.CellCount)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO page_fields
		(run_id, name, status, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare field insert: %w", err)
	}
	defer stmt.Close()

	for _, name := range sortedValueKeys(res.PageFields) {
		v := res.PageFields[name]
		var text any
		if !v.IsMissing() {
			text = v.Cell()
		}
		if _, err := stmt.Exec(res.RunID, name, v.Status(), text); err != nil {
			return fmt.Errorf("insert page field %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sqlite tx: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (sw *SQLiteWriter) Close() error {
	return sw.db.Close()
}

// Validate ensures at least one cell was written.
func (sw *SQLiteWriter) Validate() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.written == 0 {
		return fmt.Errorf("sqlite database contains no records")
	}
	return nil
}

func sortedValueKeys(values map[string]models.Value) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
