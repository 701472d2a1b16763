// Package loader turns a page source into a parsed document for the
// extraction engine. The source can be a live station URL, a saved page
// on disk, or stdin; only the URL path involves the network.
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/windguru-tools/wgscrape/config"
	"github.com/windguru-tools/wgscrape/scraper"
)

// Input names exactly one page source. URL wins over Path, Path over
// Stdin, when more than one is set.
type Input struct {
	URL   string
	Path  string
	Stdin bool
}

// Source describes the input for logs and result metadata.
func (in Input) Source() string {
	switch {
	case in.URL != "":
		return in.URL
	case in.Path != "":
		return in.Path
	case in.Stdin:
		return "stdin"
	}
	return ""
}

// Loader fetches forecast pages. A loader can be reused across loads but
// not concurrently: fetch state is kept per visit.
type Loader struct {
	cfg       *config.Config
	collector *colly.Collector
	metrics   *scraper.Metrics
	stdin     io.Reader

	handlersOnce sync.Once

	mu       sync.Mutex
	body     []byte
	fetchErr error
}

// New builds a loader around a colly collector configured from cfg.
func New(cfg *config.Config, metrics *scraper.Metrics) *Loader {
	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	return &Loader{
		cfg:       cfg,
		collector: collector,
		metrics:   metrics,
		stdin:     os.Stdin,
	}
}

// Load produces a parsed document from the input. Transient fetch
// failures and not-yet-rendered pages are retried with capped
// exponential backoff; forbidden and not-found responses fail fast.
func (l *Loader) Load(ctx context.Context, in Input) (*goquery.Document, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	switch {
	case in.URL != "":
		return l.loadURL(ctx, in.URL)
	case in.Path != "":
		return l.loadFile(in.Path)
	case in.Stdin:
		return l.loadReader(l.stdin)
	}
	return nil, fmt.Errorf("no input: need a url, a file path, or stdin")
}

func (l *Loader) loadFile(path string) (*goquery.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open page file: %w", err)
	}
	defer f.Close()
	return l.loadReader(f)
}

func (l *Loader) loadReader(r io.Reader) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return doc, l.checkReady(doc)
}

func (l *Loader) loadURL(ctx context.Context, url string) (*goquery.Document, error) {
	l.configureHandlers()

	var lastErr error
	for attempt := 0; attempt <= l.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			l.metrics.IncRetries()
			if err := sleepCtx(ctx, l.backoff(attempt)); err != nil {
				return nil, err
			}
			slog.Debug("retrying fetch",
				slog.String("url", url),
				slog.Int("attempt", attempt),
			)
		}

		body, err := l.fetch(url)
		if err != nil {
			lastErr = err
			if retryable(err) {
				continue
			}
			return nil, fmt.Errorf("fetch %s: %w", url, err)
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("parse page: %w", err)
		}
		if err := l.checkReady(doc); err != nil {
			lastErr = err
			l.metrics.IncFetchError(errorTypeLabel(err))
			slog.Warn("page not ready",
				slog.String("url", url),
				slog.String("selector", l.cfg.ReadySelector),
			)
			continue
		}
		return doc, nil
	}
	return nil, fmt.Errorf("fetch %s: %w", url, lastErr)
}

// fetch performs one visit and returns the captured body. Body and
// error land in OnResponse/OnError handlers, so state is reset first.
func (l *Loader) fetch(url string) ([]byte, error) {
	l.mu.Lock()
	l.body = nil
	l.fetchErr = nil
	l.mu.Unlock()

	visitErr := l.collector.Visit(url)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fetchErr != nil {
		return nil, l.fetchErr
	}
	if visitErr != nil {
		return nil, visitErr
	}
	if l.body == nil {
		return nil, ErrConnection{Err: errors.New("no response")}
	}
	return append([]byte(nil), l.body...), nil
}

func (l *Loader) configureHandlers() {
	l.handlersOnce.Do(func() {
		l.collector.OnRequest(func(r *colly.Request) {
			r.Ctx.Put("start", time.Now())
			l.metrics.IncRequest("started")
			slog.Debug("fetching page", slog.String("url", r.URL.String()))
		})

		l.collector.OnResponse(func(r *colly.Response) {
			l.mu.Lock()
			l.body = append([]byte(nil), r.Body...)
			l.mu.Unlock()
			if start, ok := r.Request.Ctx.GetAny("start").(time.Time); ok {
				l.metrics.ObserveFetch(time.Since(start))
			}
		})

		l.collector.OnError(func(r *colly.Response, err error) {
			statusCode := 0
			if r != nil {
				statusCode = r.StatusCode
			}
			classified := classifyError(err, statusCode)

			l.mu.Lock()
			l.fetchErr = classified
			l.mu.Unlock()

			l.metrics.IncFetchError(errorTypeLabel(classified))
			slog.Warn("fetch error",
				slog.String("url", requestURL(r)),
				slog.String("category", errorTypeLabel(classified)),
				slog.Any("error", err),
			)
		})
	})
}

// checkReady verifies the schema's anchor element is present on the
// page when a ready selector is configured.
func (l *Loader) checkReady(doc *goquery.Document) error {
	sel := l.cfg.ReadySelector
	if sel == "" {
		return nil
	}
	if doc.Find(sel).Length() == 0 {
		return ErrPageNotReady{Selector: sel}
	}
	return nil
}

func (l *Loader) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := l.cfg.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if max := l.cfg.RetryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode != 0 {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch {
		case statusCode == http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case statusCode == http.StatusNotFound:
			return ErrNotFound{Err: wrapped}
		case statusCode == http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		case statusCode >= http.StatusInternalServerError:
			return ErrServerError{Err: wrapped}
		}
	}

	if err == nil {
		return nil
	}
	return err
}

func requestURL(r *colly.Response) string {
	if r != nil && r.Request != nil && r.Request.URL != nil {
		return r.Request.URL.String()
	}
	return ""
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
