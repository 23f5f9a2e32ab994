// Package pubsub publishes outreach payloads to a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/bidharvest/internal/harvest"
)

// Config names the topic payloads go to.
type Config struct {
	ProjectID string
	Topic     string
}

// Sink implements harvest.Notifier on a Pub/Sub topic.
type Sink struct {
	topic  *pubsub.Topic
	client *pubsub.Client
	logger *zap.Logger
}

// Dial opens a client for cfg.ProjectID and returns a Sink that owns it.
func Dial(ctx context.Context, cfg Config, logger *zap.Logger, opts ...option.ClientOption) (*Sink, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("pubsub project id is required")
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	s, err := New(client, cfg.Topic, logger)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	s.client = client
	return s, nil
}

// New creates a Sink publishing to topicID through client.
func New(client *pubsub.Client, topicID string, logger *zap.Logger) (*Sink, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client is required")
	}
	if topicID == "" {
		return nil, fmt.Errorf("pubsub topic is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{topic: client.Topic(topicID), logger: logger.Named("pubsub")}, nil
}

// Notify publishes payload as JSON and waits for the server to acknowledge it.
func (s *Sink) Notify(ctx context.Context, payload harvest.Payload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: marshal payload: %w", harvest.ErrSink, err)
	}
	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"kind":      string(payload.Kind),
			"addresses": fmt.Sprint(len(payload.Addresses)),
		},
	}
	id, err := s.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return fmt.Errorf("%w: publish message: %w", harvest.ErrSink, err)
	}
	s.logger.Debug("payload published", zap.String("message_id", id))
	return nil
}

// Stop flushes pending messages and closes the client if Dial opened it.
func (s *Sink) Stop() {
	s.topic.Stop()
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			s.logger.Warn("close pubsub client", zap.Error(err))
		}
	}
}
