// Package webhook delivers outreach payloads to an HTTP endpoint as JSON.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/bidharvest/internal/harvest"
)

// Config controls the webhook sink.
type Config struct {
	URL     string
	Timeout time.Duration
	// Headers are added to every request, e.g. an authorization token.
	Headers map[string]string
}

// Sink implements harvest.Notifier over HTTP POST.
type Sink struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New creates a Sink. client may be nil.
func New(cfg Config, client *http.Client, logger *zap.Logger) (*Sink, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("webhook url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{cfg: cfg, client: client, logger: logger.Named("webhook")}, nil
}

// Notify posts payload. Any 2xx response is success.
func (s *Sink) Notify(ctx context.Context, payload harvest.Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: marshal payload: %w", harvest.ErrSink, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %w", harvest.ErrSink, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: post: %w", harvest.ErrSink, err)
	}
	defer resp.Body.Close() //nolint:errcheck // drained below

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d: %s", harvest.ErrSink, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	s.logger.Debug("webhook accepted payload",
		zap.Int("status", resp.StatusCode),
		zap.Int("addresses", len(payload.Addresses)),
	)
	return nil
}
