package sync

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

// RunsSubject carries one message per completed synchronization run.
const RunsSubject = "stocksync.runs.completed"

// Publisher emits run-completion events. Publish failures are reported
// to the caller but a run never fails because of them.
type Publisher interface {
	PublishReport(ctx context.Context, report *RunReport) error
}

// NATSPublisher publishes run reports as JSON on a NATS subject, with
// the active trace context carried in message headers.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

// NewNATSPublisher wraps an established connection.
func NewNATSPublisher(conn *nats.Conn) *NATSPublisher {
	return &NATSPublisher{conn: conn, subject: RunsSubject}
}

func (p *NATSPublisher) PublishReport(ctx context.Context, report *RunReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return err
	}
	msg := nats.NewMsg(p.subject)
	msg.Data = data
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier(msg.Header))
	return p.conn.PublishMsg(msg)
}

// headerCarrier adapts NATS message headers to the propagation API.
type headerCarrier nats.Header

func (c headerCarrier) Get(key string) string { return nats.Header(c).Get(key) }

func (c headerCarrier) Set(key, value string) { nats.Header(c).Set(key, value) }

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
