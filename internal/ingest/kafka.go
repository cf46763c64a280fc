package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"osintwarn/internal/config"
	"osintwarn/internal/history"
	"osintwarn/internal/metrics"
	"osintwarn/internal/model"
)

const SourceKafka = "kafka"

// Evaluator is the part of the engine the consumer needs.
type Evaluator interface {
	Evaluate(ev model.Event) model.Evaluation
}

var errEmptyMessage = errors.New("empty message")

type Consumer struct {
	engine  Evaluator
	history *history.Store
	logger  *slog.Logger
}

func NewConsumer(engine Evaluator, historyStore *history.Store, logger *slog.Logger) *Consumer {
	return &Consumer{engine: engine, history: historyStore, logger: logger}
}

// StartKafka reads events from the configured topic until ctx is done.
func StartKafka(ctx context.Context, cfg config.KafkaConfig, c *Consumer, logger *slog.Logger) {
	if !cfg.Enabled {
		if logger != nil {
			logger.Info("kafka ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("kafka ingest enabled", "brokers", cfg.Brokers, "topic", cfg.Topic, "group_id", cfg.GroupID)
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 1e6,
	})
	go func() {
		defer reader.Close()
		for {
			m, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				metrics.KafkaMessagesTotal.WithLabelValues("read_error").Inc()
				if logger != nil {
					logger.Warn("kafka read error", "err", err)
				}
				if !backoffSleep(ctx, time.Second) {
					return
				}
				continue
			}
			if _, err := c.HandleMessage(m); err != nil && logger != nil {
				logger.Warn("kafka message skipped", "partition", m.Partition, "offset", m.Offset, "err", err)
			}
		}
	}()
}

// HandleMessage evaluates a single message whose value is an event document.
func (c *Consumer) HandleMessage(m kafka.Message) (model.Evaluation, error) {
	ev, err := DecodeEvent(m.Value)
	if err != nil {
		metrics.KafkaMessagesTotal.WithLabelValues("invalid").Inc()
		return model.Evaluation{}, err
	}
	result := c.engine.Evaluate(ev)
	metrics.KafkaMessagesTotal.WithLabelValues("evaluated").Inc()
	metrics.ObserveEvaluation(SourceKafka, result)
	if c.history != nil {
		c.history.Record(SourceKafka, ev, result)
	}
	if c.logger != nil {
		if result.Matched {
			c.logger.Info("indicator matched",
				"source", SourceKafka,
				"indicator_id", result.IndicatorID,
				"confidence", result.Confidence,
				"recommended_task", result.RecommendedTask,
			)
		} else {
			c.logger.Warn("indicator unmatched", "source", SourceKafka, "reason", result.Reason)
		}
	}
	return result, nil
}

// DecodeEvent parses {"indicator_id": "...", "payload": {...}}.
func DecodeEvent(data []byte) (model.Event, error) {
	if len(data) == 0 {
		return model.Event{}, errEmptyMessage
	}
	var ev model.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return model.Event{}, fmt.Errorf("decode event: %w", err)
	}
	if ev.Payload == nil {
		ev.Payload = map[string]any{}
	}
	return ev, nil
}

func backoffSleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
