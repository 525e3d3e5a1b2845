//go:build enterprise
// +build enterprise

// Package events optionally publishes one JSON event per terminal
// document state so downstream search-indexing consumers can react to
// newly-available vectors without polling the journals.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// DocumentState enumerates the terminal states a document can publish.
type DocumentState string

const (
	StateDone    DocumentState = "done"
	StateSkipped DocumentState = "skipped"
	StateFailed  DocumentState = "failed"
)

// DocumentEvent is the wire shape published for each terminal document
// state.
type DocumentEvent struct {
	Filename    string        `json:"filename"`
	Fingerprint string        `json:"fingerprint"`
	State       DocumentState `json:"state"`
	Collection  string        `json:"collection,omitempty"`
	Stage       string        `json:"stage,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
}

// KafkaConfig configures the optional publisher.
type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

// KafkaPublisher writes one DocumentEvent per terminal pipeline state to
// a configurable topic. A nil *KafkaPublisher (the disabled case) is a
// safe no-op.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher builds a publisher when enabled. Returns nil, nil
// when disabled so callers can wire it through unconditionally.
func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("events: kafka topic is required when enabled")
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return &KafkaPublisher{writer: writer}, nil
}

// Publish emits a DocumentEvent. Errors are logged, not returned: event
// publication is a best-effort side channel, never a reason to fail a
// document that otherwise reached a terminal state.
func (p *KafkaPublisher) Publish(ctx context.Context, evt DocumentEvent) {
	if p == nil || p.writer == nil {
		return
	}
	evt.Timestamp = time.Now().UTC()
	payload, err := json.Marshal(evt)
	if err != nil {
		log.Warn().Err(err).Str("filename", evt.Filename).Msg("events: marshal document event failed")
		return
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.Fingerprint),
		Value: payload,
	}); err != nil {
		log.Warn().Err(err).Str("filename", evt.Filename).Msg("events: publish document event failed")
	}
}

// Close flushes and closes the underlying Kafka writer.
func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
