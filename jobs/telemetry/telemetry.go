// Package telemetry publishes buffer lifecycle events to Kafka.
//
// A ticker loop scans the ledger for records in the RELEASED or
// SYNC_FAILED state, publishes each as a JSON event, and transitions
// the record to PUBLISHED only after the broker acknowledges the
// message. A record that fails to publish stays in its current state
// and is retried on the next tick.
package telemetry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"wsalloc/infra/ledger"
)

// Event is the wire form of a single buffer lifecycle transition.
type Event struct {
	V         int    `json:"v"`
	Workspace uint64 `json:"workspace"`
	Space     string `json:"space"`
	Size      uint64 `json:"size"`
	Align     uint64 `json:"align"`
	State     string `json:"state"`
	UpdatedAt int64  `json:"updated_at"`
}

// Publisher drains terminal ledger records into a Kafka topic.
type Publisher struct {
	ledger   *ledger.Ledger
	producer sarama.SyncProducer
	topic    string
	interval time.Duration
	logger   log.Logger
}

// New connects a synchronous producer to the given brokers. Publishing
// waits for acknowledgement from all in-sync replicas so a PUBLISHED
// ledger state always means the event reached the broker.
func New(l *ledger.Ledger, brokers []string, topic string, interval time.Duration, logger log.Logger) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return newWithProducer(l, producer, topic, interval, logger), nil
}

func newWithProducer(l *ledger.Ledger, producer sarama.SyncProducer, topic string, interval time.Duration, logger log.Logger) *Publisher {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &Publisher{
		ledger:   l,
		producer: producer,
		topic:    topic,
		interval: interval,
		logger:   logger,
	}
}

// Start runs the scan loop until ctx is cancelled.
func (p *Publisher) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.publishOnce()
			}
		}
	}()
}

func (p *Publisher) publishOnce() {
	for _, state := range []ledger.State{ledger.StateReleased, ledger.StateSyncFailed} {
		err := p.ledger.ScanByState(state, func(rec ledger.Record) error {
			if err := p.publish(rec); err != nil {
				// Broker unavailable; leave the record in place
				// and retry on the next tick.
				level.Warn(p.logger).Log("msg", "publish failed", "workspace", rec.Workspace, "err", err)
				return nil
			}
			return p.ledger.Transition(rec.Workspace, rec.Space, ledger.StatePublished)
		})
		if err != nil {
			level.Warn(p.logger).Log("msg", "ledger scan failed", "state", state.String(), "err", err)
		}
	}
}

func (p *Publisher) publish(rec ledger.Record) error {
	payload, err := json.Marshal(Event{
		V:         1,
		Workspace: rec.Workspace,
		Space:     rec.Space.String(),
		Size:      rec.Size,
		Align:     rec.Align,
		State:     rec.State.String(),
		UpdatedAt: rec.UpdatedAt,
	})
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(rec.Space.String()),
		Value: sarama.ByteEncoder(payload),
	}
	_, _, err = p.producer.SendMessage(msg)
	return err
}

// Close shuts down the underlying producer.
func (p *Publisher) Close() error {
	return p.producer.Close()
}
