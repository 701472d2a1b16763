package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Config holds the runtime settings of one scrape run. Extraction
// semantics live in the schema package; everything here is about how the
// binary fetches, filters, and writes.
type Config struct {
	// BaseURL is the windguru host. The station number is appended to
	// form the page URL, mirroring how windguru routes stations.
	BaseURL string
	Station int

	// SchemaFile optionally replaces the built-in windguru schema.
	SchemaFile string

	// Rows caps how many forecast steps each table walks; the walk
	// usually stops earlier, at the model's own horizon.
	Rows int

	Timeout         time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration

	// ReadySelector must match before a fetched page counts as
	// rendered; empty disables the check.
	ReadySelector string

	OutputFile   string
	OutputFormat string // csv, json, dual, or sqlite

	UserAgent        string
	Verbose          bool
	RespectRobotsTxt bool

	MetricsAddr string

	Workers            int
	PipelineBufferSize int
	BatchSize          int

	// DedupeMaxSize bounds the pipeline's duplicate-detection window;
	// steps older than the window may be accepted again.
	DedupeMaxSize int

	// FilterHours keeps only forecast records whose hour falls inside
	// [DayStart, DayEnd], both inclusive.
	FilterHours bool
	DayStart    int
	DayEnd      int
}

// DefaultConfig returns defaults tuned for windguru's public pages.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:            "https://www.windguru.cz/",
		Station:            53,
		Rows:               72,
		Timeout:            15 * time.Second,
		MaxRetries:         3,
		RetryBackoff:       2 * time.Second,
		RetryBackoffMax:    30 * time.Second,
		ReadySelector:      "#tabid_0_0",
		OutputFile:         "output/forecast.csv",
		OutputFormat:       "csv",
		UserAgent:          "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		Verbose:            false,
		RespectRobotsTxt:   false,
		MetricsAddr:        "",
		Workers:            2,
		PipelineBufferSize: 256,
		BatchSize:          32,
		DedupeMaxSize:      10000,
		FilterHours:        false,
		DayStart:           7,
		DayEnd:             21,
	}
}

// StationURL is the forecast page URL for the configured station.
func (c *Config) StationURL() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strconv.Itoa(c.Station)
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.Station <= 0 {
		return fmt.Errorf("station number must be positive")
	}
	if c.Rows <= 0 {
		return fmt.Errorf("rows must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	switch c.OutputFormat {
	case "csv", "json", "dual", "sqlite":
	default:
		return fmt.Errorf("output format must be csv, json, dual, or sqlite")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.PipelineBufferSize <= 0 {
		return fmt.Errorf("pipeline buffer size must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	if c.FilterHours {
		if c.DayStart < 0 || c.DayStart > 23 || c.DayEnd < 0 || c.DayEnd > 23 {
			return fmt.Errorf("day hours must fall within 0-23")
		}
		if c.DayStart > c.DayEnd {
			return fmt.Errorf("day start (%d) cannot exceed day end (%d)", c.DayStart, c.DayEnd)
		}
	}

	return nil
}
