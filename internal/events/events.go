// Package events publishes job lifecycle events for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/kiranshivaraju/matchscope/pkg/models"
)

const (
	subjectJobPrefix = "matchscope.jobs."
	subjectAll       = "matchscope.jobs.all"
)

// Event kinds.
const (
	KindTransition  = "transition"
	KindVanished    = "vanished"
	KindReportReady = "report_ready"
)

// JobEvent describes one observed change of a job.
type JobEvent struct {
	JobID    uuid.UUID        `json:"job_id"`
	TargetID int64            `json:"target_id,omitempty"`
	Status   models.JobStatus `json:"status,omitempty"`
	Kind     string           `json:"kind"`
	Message  string           `json:"message,omitempty"`
	At       time.Time        `json:"at"`
}

// Publisher sends job events somewhere.
type Publisher interface {
	PublishJobEvent(ctx context.Context, ev JobEvent) error
}

// JobSubject is the per-job subject an event is published on.
func JobSubject(jobID uuid.UUID) string { return subjectJobPrefix + jobID.String() }

// AllSubject receives every job event.
func AllSubject() string { return subjectAll }

// NATSPublisher publishes events on core NATS subjects.
type NATSPublisher struct {
	nc *nats.Conn
}

func NewNATSPublisher(nc *nats.Conn) *NATSPublisher {
	return &NATSPublisher{nc: nc}
}

// PublishJobEvent sends ev to the job subject and the global subject. Only a
// failure on the job subject is returned.
func (p *NATSPublisher) PublishJobEvent(_ context.Context, ev JobEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := p.nc.Publish(JobSubject(ev.JobID), data); err != nil {
		slog.Error("failed to publish job event", "error", err, "job_id", ev.JobID)
		return fmt.Errorf("publish event: %w", err)
	}

	if err := p.nc.Publish(subjectAll, data); err != nil {
		slog.Error("failed to publish global event", "error", err)
	}
	return nil
}

// Connect dials NATS with the reconnect settings the service uses.
func Connect(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("matchscope"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return nc, nil
}

// Nop drops every event. Used when no broker is configured.
type Nop struct{}

func (Nop) PublishJobEvent(context.Context, JobEvent) error { return nil }
