// Package ingest feeds the search engine from a Kafka document-event topic,
// letting host applications publish index and delete operations
// asynchronously instead of calling the engine in-process.
package ingest

import (
	"context"
	"log/slog"

	"github.com/fastsearch/fastsearch/internal/engine"
	"github.com/fastsearch/fastsearch/pkg/kafka"
)

// Event actions understood by the consumer.
const (
	ActionIndex  = "index"
	ActionDelete = "delete"
)

// DocumentEvent is the wire format of one document operation.
type DocumentEvent struct {
	Action string         `json:"action"`
	Index  string         `json:"index"`
	DocID  string         `json:"doc_id"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Consumer wraps a Kafka consumer to drive the indexing pipeline.
type Consumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates a Consumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *Consumer {
	return &Consumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "ingest-consumer"),
	}
}

// Start begins consuming document events. It blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("ingest consumer starting")
	return c.consumer.Start(ctx)
}

// Close closes the underlying Kafka consumer.
func (c *Consumer) Close() error {
	return c.consumer.Close()
}

// HandleEvent returns a Kafka MessageHandler that applies each document
// event to the engine. Undecodable events are logged and skipped; engine
// errors are returned so the message is not committed.
func HandleEvent(eng *engine.Engine) kafka.MessageHandler {
	logger := slog.Default().With("component", "ingest-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[DocumentEvent](value)
		if err != nil {
			logger.Error("failed to decode document event", "key", string(key), "error", err)
			return nil
		}
		switch event.Action {
		case ActionIndex:
			if err := eng.IndexDocument(ctx, event.Index, event.DocID, event.Fields); err != nil {
				return err
			}
			logger.Debug("document indexed from event", "index", event.Index, "doc_id", event.DocID)
		case ActionDelete:
			if err := eng.DeleteDocument(ctx, event.Index, event.DocID); err != nil {
				return err
			}
			logger.Debug("document deleted from event", "index", event.Index, "doc_id", event.DocID)
		default:
			logger.Error("unknown event action, skipping", "action", event.Action, "doc_id", event.DocID)
		}
		return nil
	}
}
