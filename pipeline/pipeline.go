// Package pipeline prepares extracted forecast rows for export and fans
// them out to the configured sinks: CSV, JSONL, SQLite, or several at once.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/windguru-tools/wgscrape/config"
	"github.com/windguru-tools/wgscrape/models"
	"github.com/windguru-tools/wgscrape/parser"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
	// ErrPipelineCloseTimeout is returned when workers fail to drain the
	// queue within drainTimeout.
	ErrPipelineCloseTimeout = errors.New("pipeline: close timed out")
)

// drainTimeout bounds how long Close waits for workers to finish.
var drainTimeout = 30 * time.Second

// OutputWriter is the sink for prepared records.
type OutputWriter interface {
	Write(records []*models.Record) error
	Close() error
	Validate() error
}

// ResultWriter is implemented by sinks that also persist page-level
// fields and run metadata alongside the row records.
type ResultWriter interface {
	WriteResult(res *models.ScrapeResult) error
}

// item is one forecast row queued for record building.
type item struct {
	table     string
	row       models.ForecastRow
	scrapedAt time.Time
}

// Pipeline turns forecast rows into export records and writes them in
// batches: build, de-duplicate, filter, write.
type Pipeline struct {
	ctx    context.Context
	writer OutputWriter
	itemCh chan item

	batchSize   int
	filterHours bool
	dayStart    int
	dayEnd      int

	wg sync.WaitGroup

	// seen is the bounded duplicate-detection window; eviction means a
	// step older than DedupeMaxSize submissions can be accepted again.
	seen *lru.Cache[string, struct{}]

	metrics metrics

	mu     sync.Mutex // guards closed/err
	closed bool
	err    error

	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline sized by the runtime config. A nil cfg
// falls back to the defaults.
func NewPipeline(ctx context.Context, writer OutputWriter, cfg *config.Config) *Pipeline {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	dedupeSize := cfg.DedupeMaxSize
	if dedupeSize <= 0 {
		dedupeSize = config.DefaultConfig().DedupeMaxSize
	}
	seen, _ := lru.New[string, struct{}](dedupeSize)
	return &Pipeline{
		ctx:         ctx,
		writer:      writer,
		itemCh:      make(chan item, cfg.PipelineBufferSize),
		batchSize:   cfg.BatchSize,
		filterHours: cfg.FilterHours,
		dayStart:    cfg.DayStart,
		dayEnd:      cfg.DayEnd,
		seen:        seen,
		metrics:     newMetrics(),
		shutdown:    make(chan struct{}),
	}
}

// Start launches worker goroutines.
func (p *Pipeline) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Process enqueues the rows of one table for downstream processing.
// scrapedAt stamps the records; pass the scrape's end time.
func (p *Pipeline) Process(table string, scrapedAt time.Time, rows ...models.ForecastRow) error {
	if len(rows) == 0 {
		return nil
	}

	closed, err := p.state()
	if err != nil {
		return err
	}
	if closed {
		return ErrPipelineClosed
	}

	for _, row := range rows {
		if err := p.enqueue(item{table: table, row: row, scrapedAt: scrapedAt}); err != nil {
			return err
		}
	}
	return nil
}

// ProcessResult enqueues every table of a scrape result, stamped with the
// scrape's end time. Tables are submitted in key order.
func (p *Pipeline) ProcessResult(res *models.ScrapeResult) error {
	if res == nil {
		return nil
	}

	keys := make([]string, 0, len(res.Tables))
	for key := range res.Tables {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := p.Process(key, res.EndTime, res.Tables[key]...); err != nil {
			return fmt.Errorf("process table %s: %w", key, err)
		}
	}
	return nil
}

// Close waits for workers to drain the queue and prevents more
// submissions. It returns the first processing error, or
// ErrPipelineCloseTimeout when the drain exceeds its deadline.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
	}
	p.mu.Unlock()

	p.signalShutdown()
	p.closeOnce.Do(func() {
		close(p.itemCh)
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return p.Err()
	case <-time.After(drainTimeout):
		return ErrPipelineCloseTimeout
	}
}

// Err returns the first error encountered during processing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

// StartMetricsReporting emits periodic progress logs.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				snapshot := p.GetMetrics()
				processed := snapshot["processed_records"].(int64)
				rejected := snapshot["rejected_records"].(map[string]int)
				total := 0
				for _, n := range rejected {
					total += n
				}
				slog.Info("pipeline progress",
					slog.Int64("processed", processed),
					slog.Int("rejected", total))
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pipeline) worker() {
	defer p.wg.Done()

	batch := make([]*models.Record, 0, p.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.writer.Write(batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for it := range p.itemCh {
		rec := p.prepare(it)
		if rec == nil {
			continue
		}
		batch = append(batch, rec)
		if len(batch) >= p.batchSize {
			if err := flush(); err != nil {
				p.setErr(fmt.Errorf("write batch: %w", err))
				return
			}
		}
	}

	if err := flush(); err != nil {
		p.setErr(fmt.Errorf("write batch: %w", err))
	}
}

// prepare builds the export record for one row and applies the rejection
// rules: rows without a parsable date, duplicate submissions of the same
// step, and hours outside the configured day window.
func (p *Pipeline) prepare(it item) *models.Record {
	rec, err := parser.BuildRecord(it.table, it.row, it.scrapedAt)
	if err != nil {
		if errors.Is(err, parser.ErrNoDate) {
			p.metrics.addRejection("no_date")
		} else {
			p.metrics.addRejection("invalid_record")
		}
		return nil
	}

	// Step identity within one scrape; a later rescrape may legitimately
	// resubmit the same index.
	key := fmt.Sprintf("%s:%d:%d", it.table, it.row.Index, it.scrapedAt.UnixNano())
	if dup, _ := p.seen.ContainsOrAdd(key, struct{}{}); dup {
		p.metrics.addRejection("duplicate_step")
		return nil
	}

	if p.filterHours && rec.HasDate() && (rec.Hour < p.dayStart || rec.Hour > p.dayEnd) {
		p.metrics.addRejection("outside_day_window")
		return nil
	}

	p.metrics.incrementProcessed()
	return rec
}

func (p *Pipeline) enqueue(it item) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrPipelineClosed
		}
	}()

	if err := p.ctx.Err(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	select {
	case <-p.shutdown:
		return ErrPipelineClosed
	case <-p.ctx.Done():
		return fmt.Errorf("pipeline: %w", p.ctx.Err())
	case p.itemCh <- it:
		return nil
	}
}

func (p *Pipeline) setErr(err error) {
	if err == nil {
		return
	}

	p.mu.Lock()
	if p.err != nil {
		p.mu.Unlock()
		return
	}
	p.err = err
	p.closed = true
	p.mu.Unlock()

	p.signalShutdown()
	p.closeOnce.Do(func() {
		close(p.itemCh)
	})
}

func (p *Pipeline) state() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed, p.err
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

type metrics struct {
	mu        sync.Mutex
	processed int64
	rejected  map[string]int
}

func newMetrics() metrics {
	return metrics{
		rejected: make(map[string]int),
	}
}

func (m *metrics) incrementProcessed() {
	m.mu.Lock()
	m.processed++
	m.mu.Unlock()
}

func (m *metrics) addRejection(kind string) {
	m.mu.Lock()
	m.rejected[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyRejected := make(map[string]int, len(m.rejected))
	for k, v := range m.rejected {
		copyRejected[k] = v
	}

	return map[string]interface{}{
		"processed_records": m.processed,
		"rejected_records":  copyRejected,
	}
}
