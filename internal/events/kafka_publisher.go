package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"transcode-service/internal/entity"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// StatusEvent is published once per job when it reaches a terminal state.
type StatusEvent struct {
	JobID      string           `json:"job_id"`
	Status     entity.JobStatus `json:"status"`
	Progress   int              `json:"progress"`
	Preset     entity.Preset    `json:"preset"`
	Filename   string           `json:"filename"`
	Error      string           `json:"error,omitempty"`
	FinishedAt time.Time        `json:"finished_at"`
}

type KafkaPublisher struct {
	w messageWriter
}

// NewKafkaWriter builds a writer for a comma separated broker list.
func NewKafkaWriter(brokers, topic string) *kafka.Writer {
	var addrs []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			addrs = append(addrs, b)
		}
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(addrs...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
}

func NewKafkaPublisher(w messageWriter) *KafkaPublisher {
	return &KafkaPublisher{w: w}
}

// Notify ignores non-terminal snapshots.
func (p *KafkaPublisher) Notify(ctx context.Context, job entity.Job) error {
	if !job.Status.Terminal() {
		return nil
	}
	payload, err := json.Marshal(StatusEvent{
		JobID:      job.ID,
		Status:     job.Status,
		Progress:   job.Progress,
		Preset:     job.Preset,
		Filename:   job.Filename,
		Error:      job.Error,
		FinishedAt: job.FinishedAt,
	})
	if err != nil {
		return err
	}
	if err := p.w.WriteMessages(ctx, kafka.Message{Key: []byte(job.ID), Value: payload}); err != nil {
		return fmt.Errorf("kafka publish %s: %w", job.ID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}
