// Package collyfetcher downloads bid documents into the spool using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/bidharvest/internal/harvest"
	"github.com/JakeFAU/bidharvest/internal/metrics"
	"github.com/JakeFAU/bidharvest/internal/spool"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// MaxBodyBytes caps a single document; zero means unlimited.
	MaxBodyBytes int
	// DefaultExtension names artifacts whose URL path has no extension.
	DefaultExtension string
	// Kind labels downloads in metrics ("main" or "linked").
	Kind string
}

// Waiter throttles requests per host.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Downloader implements harvest.Downloader.
type Downloader struct {
	cfg           Config
	spool         *spool.Dir
	limiter       Waiter
	baseCollector *colly.Collector
	logger        *zap.Logger
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Downloader writing into sp. limiter may be nil.
func New(cfg Config, sp *spool.Dir, limiter Waiter, logger *zap.Logger) *Downloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.DefaultExtension == "" {
		cfg.DefaultExtension = ".pdf"
	}
	if cfg.Kind == "" {
		cfg.Kind = "main"
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(newRetryTransport(newHTTPTransport()))
	return &Downloader{
		cfg:           cfg,
		spool:         sp,
		limiter:       limiter,
		baseCollector: c,
		logger:        logger.Named("downloader"),
	}
}

// WithKind returns a Downloader sharing the collector and spool but labeled
// differently in metrics.
func (d *Downloader) WithKind(kind string) *Downloader {
	clone := *d
	clone.cfg.Kind = kind
	return &clone
}

// Download fetches rawURL and stores the body in the spool.
func (d *Downloader) Download(ctx context.Context, rawURL string) (harvest.Artifact, error) {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx, rawURL); err != nil {
			return harvest.Artifact{}, fmt.Errorf("%w: %w", harvest.ErrDownload, err)
		}
	}

	var (
		body     []byte
		fetchErr error
	)
	collector := d.buildCollector(&body, &fetchErr)
	if err := d.runCollector(ctx, collector, rawURL, &fetchErr); err != nil {
		metrics.ObserveDocument(d.cfg.Kind, "error", rawURL, 0)
		return harvest.Artifact{}, fmt.Errorf("%w: %w", harvest.ErrDownload, err)
	}
	if len(body) == 0 {
		metrics.ObserveDocument(d.cfg.Kind, "empty", rawURL, 0)
		return harvest.Artifact{}, fmt.Errorf("%w: empty body from %s", harvest.ErrDownload, rawURL)
	}

	artifact, err := d.spool.Put(body, d.extension(rawURL))
	if err != nil {
		return harvest.Artifact{}, fmt.Errorf("%w: %w", harvest.ErrDownload, err)
	}
	metrics.ObserveDocument(d.cfg.Kind, "ok", rawURL, artifact.Size)
	d.logger.Debug("document spooled",
		zap.String("url", rawURL),
		zap.String("artifact", artifact.Name),
		zap.Int64("bytes", artifact.Size),
	)
	return artifact, nil
}

// Read returns a spooled artifact.
func (d *Downloader) Read(artifact harvest.Artifact) ([]byte, error) {
	data, err := d.spool.Read(artifact)
	if err != nil {
		return nil, fmt.Errorf("read spooled artifact: %w", err)
	}
	return data, nil
}

// Remove deletes a spooled artifact.
func (d *Downloader) Remove(artifact harvest.Artifact) error {
	if err := d.spool.Remove(artifact); err != nil {
		return fmt.Errorf("remove spooled artifact: %w", err)
	}
	return nil
}

func (d *Downloader) buildCollector(body *[]byte, fetchErr *error) *colly.Collector {
	collector := d.baseCollector.Clone()
	if d.cfg.UserAgent != "" {
		collector.UserAgent = d.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = true
	collector.MaxBodySize = d.cfg.MaxBodyBytes
	collector.SetRequestTimeout(d.cfg.Timeout)
	configureCollectorHooks(collector, body, fetchErr)
	return collector
}

func configureCollectorHooks(hooks collectorHooks, body *[]byte, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		*body = append([]byte(nil), r.Body...)
	})
	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		*fetchErr = err
	})
}

func (d *Downloader) runCollector(ctx context.Context, collector *colly.Collector, rawURL string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func (d *Downloader) extension(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return d.cfg.DefaultExtension
	}
	ext := path.Ext(u.Path)
	if ext == "" || len(ext) > 6 {
		return d.cfg.DefaultExtension
	}
	return ext
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
