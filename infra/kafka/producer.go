// Package kafka wraps the low-level kafka-go writer used for
// fire-and-forget usage samples. The acked release-event feed lives in
// jobs/telemetry and uses sarama instead.
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// UsageSample is one point-in-time reading of a memory space.
type UsageSample struct {
	Time     int64  `json:"time"`
	Space    string `json:"space"`
	InUse    uint64 `json:"in_use"`
	Capacity uint64 `json:"capacity"`
}

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireOne,
			Async:        true,
			BatchTimeout: 100 * time.Millisecond,
		},
	}
}

// SendUsage publishes one batch of samples keyed by space name.
func (p *Producer) SendUsage(ctx context.Context, samples ...UsageSample) error {
	msgs := make([]kafka.Message, 0, len(samples))
	for _, s := range samples {
		value, err := json.Marshal(s)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(s.Space),
			Value: value,
		})
	}
	return p.writer.WriteMessages(ctx, msgs...)
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
