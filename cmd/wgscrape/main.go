// Command wgscrape extracts a windguru station forecast: fetch the page
// (or read a saved copy), run the schema-driven extraction, and export
// flat records as CSV, JSONL, or SQLite.
//
// Live station:
//
//	wgscrape -station 53 -rows 48 -output output/forecast.csv
//
// Saved page:
//
//	wgscrape -input page.html -format json -output output/forecast.json
//
// Debug (print matches for an ad-hoc selector):
//
//	cat page.html | wgscrape -stdin -selector "#tabid_0_0_dates"
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/windguru-tools/wgscrape/config"
	"github.com/windguru-tools/wgscrape/loader"
	"github.com/windguru-tools/wgscrape/models"
	"github.com/windguru-tools/wgscrape/parser"
	"github.com/windguru-tools/wgscrape/pipeline"
	"github.com/windguru-tools/wgscrape/schema"
	"github.com/windguru-tools/wgscrape/scraper"
)

func main() {
	if err := config.LoadEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "loading .env: %v\n", err)
		os.Exit(1)
	}

	defaultCfg := config.DefaultConfig()
	stationDefault := defaultCfg.Station
	if value, ok, err := config.EnvInt("WGSCRAPE_STATION"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid WGSCRAPE_STATION: %v\n", err)
		os.Exit(1)
	} else if ok {
		stationDefault = value
	}
	rowsDefault := defaultCfg.Rows
	if value, ok, err := config.EnvInt("WGSCRAPE_ROWS"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid WGSCRAPE_ROWS: %v\n", err)
		os.Exit(1)
	} else if ok {
		rowsDefault = value
	}
	schemaDefault := defaultCfg.SchemaFile
	if value, ok := config.EnvString("WGSCRAPE_SCHEMA"); ok {
		schemaDefault = value
	}
	outputDefault := defaultCfg.OutputFile
	if value, ok := config.EnvString("WGSCRAPE_OUTPUT"); ok {
		outputDefault = value
	}
	metricsDefault := defaultCfg.MetricsAddr
	if value, ok := config.EnvString("WGSCRAPE_METRICS_ADDR"); ok {
		metricsDefault = value
	}

	station := flag.Int("station", stationDefault, "Windguru station number")
	baseURL := flag.String("base-url", defaultCfg.BaseURL, "Windguru host the station number is appended to")
	inputFile := flag.String("input", "", "Read the page from a local HTML file instead of fetching")
	useStdin := flag.Bool("stdin", false, "Read the page from standard input")
	schemaFile := flag.String("schema", schemaDefault, "Schema YAML file overriding the built-in windguru schema")
	rows := flag.Int("rows", rowsDefault, "Maximum forecast steps per table")
	timeout := flag.Duration("timeout", defaultCfg.Timeout, "HTTP fetch timeout")
	maxRetries := flag.Int("max-retries", defaultCfg.MaxRetries, "Maximum retry attempts per fetch")
	retryBackoffMs := flag.Int("retry-backoff", int(defaultCfg.RetryBackoff/time.Millisecond), "Initial retry backoff (milliseconds)")
	retryBackoffMaxMs := flag.Int("retry-backoff-max", int(defaultCfg.RetryBackoffMax/time.Millisecond), "Maximum retry backoff (milliseconds)")
	respectRobots := flag.Bool("respect-robots", false, "Respect robots.txt directives")
	readySelector := flag.String("ready-selector", defaultCfg.ReadySelector, "Selector that must match before a page counts as rendered")
	outputFile := flag.String("output", outputDefault, "Output file path")
	outputFormat := flag.String("format", defaultCfg.OutputFormat, "Output format: csv, json, dual, or sqlite")
	workers := flag.Int("workers", defaultCfg.Workers, "Pipeline worker count")
	hours := flag.String("hours", "", "Keep only records inside a day window, e.g. 7-21")
	printMode := flag.String("print", "", "Print the result to stdout instead of writing files: json or llm")
	debugSelector := flag.String("selector", "", "Debug: CSS selector to print matches for, then exit")
	textOnly := flag.Bool("text", false, "Debug: print text instead of HTML for -selector matches")
	verbose := flag.Bool("v", false, "Enable verbose logging")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg := buildConfigFromFlags(*baseURL, *station, *schemaFile, *rows, *timeout, *maxRetries, *retryBackoffMs, *retryBackoffMaxMs, *respectRobots, *readySelector, *outputFile, *outputFormat, *workers, *verbose, *metricsAddr)
	if *hours != "" {
		start, end, err := config.ParseHourRange(*hours)
		if err != nil {
			slog.Error("invalid hour range", slog.Any("error", err))
			os.Exit(1)
		}
		cfg.FilterHours = true
		cfg.DayStart = start
		cfg.DayEnd = end
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}
	switch *printMode {
	case "", "json", "llm":
	default:
		slog.Error("unknown print mode", slog.String("print", *printMode))
		os.Exit(1)
	}

	schemaCfg, err := loadSchema(cfg.SchemaFile)
	if err != nil {
		slog.Error("loading schema", slog.Any("error", err))
		os.Exit(1)
	}

	in := pageInput(cfg, *inputFile, *useStdin)

	slog.Info("starting scrape",
		slog.String("source", in.Source()),
		slog.Int("rows", cfg.Rows),
		slog.Int("workers", cfg.Workers),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight work to finish")
	}()

	metrics := scraper.NewMetrics()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	startTime := time.Now()

	doc, err := loader.New(cfg, metrics).Load(ctx, in)
	if err != nil {
		slog.Error("loading page", slog.Any("error", err))
		os.Exit(1)
	}

	// Debug mode needs a parsed page but no extraction.
	if *debugSelector != "" {
		printSelector(os.Stdout, doc, *debugSelector, *textOnly)
		return
	}

	result, err := scraper.NewAssembler(metrics).Assemble(doc, schemaCfg, cfg.Rows)
	if err != nil {
		slog.Error("extraction failed", slog.Any("error", err))
		os.Exit(1)
	}
	result.Source = in.Source()

	if *printMode != "" {
		if err := printResult(os.Stdout, *printMode, result, cfg); err != nil {
			slog.Error("printing result", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	writer, err := createWriter(cfg.OutputFormat, cfg.OutputFile, exportColumns(schemaCfg))
	if err != nil {
		slog.Error("creating writer", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	p := pipeline.NewPipeline(ctx, writer, cfg)
	p.Start(cfg.Workers)
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	if err := p.ProcessResult(result); err != nil {
		slog.Error("queueing records failed", slog.Any("error", err))
		os.Exit(1)
	}
	if err := p.Close(); err != nil {
		slog.Error("pipeline shutdown failed", slog.Any("error", err))
		os.Exit(1)
	}

	if rw, ok := writer.(pipeline.ResultWriter); ok {
		if err := rw.WriteResult(result); err != nil {
			slog.Error("writing run metadata failed", slog.Any("error", err))
			os.Exit(1)
		}
	}

	if err := writer.Validate(); err != nil {
		slog.Error("output validation failed", slog.Any("error", err))
		os.Exit(1)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	pm := p.GetMetrics()
	duration := time.Since(startTime)
	written := int64(0)
	if processed, ok := pm["processed_records"].(int64); ok {
		written = processed
	}
	recordsPerSec := 0.0
	if duration.Seconds() > 0 {
		recordsPerSec = float64(written) / duration.Seconds()
	}

	printSummary(result, duration, recordsPerSec, cfg.OutputFile, pm)
}

func buildConfigFromFlags(baseURL string, station int, schemaFile string, rows int, timeout time.Duration, maxRetries, retryBackoffMs, retryBackoffMaxMs int, respectRobots bool, readySelector, outputFile, outputFormat string, workers int, verbose bool, metricsAddr string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.Station = station
	cfg.SchemaFile = schemaFile
	cfg.Rows = rows
	cfg.Timeout = timeout
	cfg.MaxRetries = maxRetries
	cfg.RetryBackoff = time.Duration(retryBackoffMs) * time.Millisecond
	cfg.RetryBackoffMax = time.Duration(retryBackoffMaxMs) * time.Millisecond
	cfg.RespectRobotsTxt = respectRobots
	cfg.ReadySelector = readySelector
	cfg.OutputFile = outputFile
	cfg.OutputFormat = strings.ToLower(outputFormat)
	cfg.Workers = workers
	cfg.Verbose = verbose
	cfg.MetricsAddr = metricsAddr
	return cfg
}

// loadSchema picks the configured schema file, or the built-in windguru
// schema when none is set.
func loadSchema(path string) (*schema.Config, error) {
	if path == "" {
		return schema.Default(), nil
	}
	return schema.Load(path)
}

// pageInput picks the page source: stdin and a local file win over the
// station URL, so saved pages can be replayed offline.
func pageInput(cfg *config.Config, path string, stdin bool) loader.Input {
	switch {
	case stdin:
		return loader.Input{Stdin: true}
	case path != "":
		return loader.Input{Path: path}
	}
	return loader.Input{URL: cfg.StationURL()}
}

// exportColumns fixes the flat-output column order: declared table
// columns in declaration order, then the derived columns.
func exportColumns(cfg *schema.Config) []string {
	seen := make(map[string]struct{})
	var columns []string
	add := func(key string) {
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		columns = append(columns, key)
	}
	for _, t := range cfg.Tables {
		for _, col := range t.Columns {
			add(col.Key)
		}
	}
	for _, key := range parser.DerivedColumns {
		add(key)
	}
	return columns
}

func createWriter(format, filename string, columns []string) (pipeline.OutputWriter, error) {
	switch format {
	case "json":
		return pipeline.NewJSONWriter(filename)
	case "csv":
		return pipeline.NewCSVWriter(filename, columns)
	case "dual":
		jsonFilename := strings.TrimSuffix(filename, ".csv") + ".json"
		return pipeline.NewDualWriter(filename, jsonFilename, columns)
	case "sqlite":
		return pipeline.NewSQLiteWriter(filename)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func printResult(w io.Writer, mode string, result *models.ScrapeResult, cfg *config.Config) error {
	switch mode {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case "llm":
		return printLLM(w, result, cfg)
	}
	return fmt.Errorf("unknown print mode: %s", mode)
}

// printLLM emits a self-describing JSON document: flat records plus the
// column metadata a language model needs to interpret them.
func printLLM(w io.Writer, result *models.ScrapeResult, cfg *config.Config) error {
	records := flattenRecords(result, cfg)

	meta := make(map[string]models.ColumnInfo)
	addMeta := func(key string) {
		if info, ok := models.ColumnDescriptions[key]; ok {
			meta[key] = info
		}
	}
	for _, rec := range records {
		if rec.HasDate() {
			addMeta("day")
			addMeta("day_of_month")
			addMeta("hour")
		}
		for key := range rec.Values {
			addMeta(key)
		}
	}

	doc := struct {
		Description    string                       `json:"description"`
		Source         string                       `json:"source,omitempty"`
		ScrapedAt      time.Time                    `json:"scraped_at"`
		ColumnMetadata map[string]models.ColumnInfo `json:"column_metadata"`
		PageFields     map[string]models.Value      `json:"page_fields,omitempty"`
		Forecast       []*models.Record             `json:"forecast"`
	}{
		Description:    fmt.Sprintf("Windguru weather forecast data from %s with detailed column metadata below.", result.Source),
		Source:         result.Source,
		ScrapedAt:      result.EndTime,
		ColumnMetadata: meta,
		PageFields:     result.PageFields,
		Forecast:       records,
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// flattenRecords builds export records from every table, applying the
// same drop rules as the file pipeline.
func flattenRecords(result *models.ScrapeResult, cfg *config.Config) []*models.Record {
	keys := make([]string, 0, len(result.Tables))
	for key := range result.Tables {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	records := make([]*models.Record, 0)
	for _, key := range keys {
		for _, row := range result.Tables[key] {
			rec, err := parser.BuildRecord(key, row, result.EndTime)
			if err != nil {
				slog.Debug("dropping row",
					slog.String("table", key),
					slog.Int("row", row.Index),
					slog.Any("error", err),
				)
				continue
			}
			if cfg.FilterHours && rec.HasDate() && (rec.Hour < cfg.DayStart || rec.Hour > cfg.DayEnd) {
				continue
			}
			records = append(records, rec)
		}
	}
	return records
}

// printSelector dumps what the resolver would see for an ad-hoc
// selector: outer HTML per match, or trimmed text with textOnly.
func printSelector(w io.Writer, doc *goquery.Document, selector string, textOnly bool) {
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if textOnly {
			fmt.Fprintln(w, strings.TrimSpace(s.Text()))
			fmt.Fprintln(w)
			return
		}
		out, err := goquery.OuterHtml(s)
		if err != nil {
			in, _ := s.Html()
			fmt.Fprintln(w, in)
			fmt.Fprintln(w)
			return
		}
		fmt.Fprintln(w, out)
		fmt.Fprintln(w)
	})
}

func printSummary(result *models.ScrapeResult, duration time.Duration, recordsPerSec float64, outputFile string, metrics map[string]interface{}) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Scrape complete")

	written := int64(0)
	if processed, ok := metrics["processed_records"].(int64); ok {
		written = processed
	}

	fmt.Printf("  Page fields:     %d\n", result.FieldCount)
	fmt.Printf("  Rows extracted:  %d\n", result.RowCount)
	fmt.Printf("  Cells extracted: %d\n", result.CellCount)
	if len(result.FaultsByKind) > 0 {
		fmt.Printf("  Faults:          %v\n", result.FaultsByKind)
	}
	if len(result.TableErrors) > 0 {
		fmt.Printf("  Table errors:    %v\n", result.TableErrors)
	}
	fmt.Printf("  Records written: %d\n", written)
	if rejected, ok := metrics["rejected_records"].(map[string]int); ok && len(rejected) > 0 {
		fmt.Printf("  Rejected:        %v\n", rejected)
	}
	fmt.Printf("  Duration:        %v\n", duration)
	fmt.Printf("  Records/sec:     %.2f\n", recordsPerSec)
	fmt.Printf("  Output file:     %s\n", outputFile)
	fmt.Println(separator)
}

// newLogger builds the process logger. Logs go to stderr so the stdout
// print modes stay machine-readable.
func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
