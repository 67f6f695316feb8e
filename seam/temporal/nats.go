package temporal

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/TIVerse/neurobus"
)

// NATSLog implements neurobus.TemporalLog over a JetStream stream, giving
// the event history durability and cross-process replay at the cost of
// network I/O on every Append. Grounded on bitechdev/pkg/eventbroker's
// NATSProvider: one stream, one subject per topic under a fixed prefix,
// limits-based retention instead of an in-process ring.
type NATSLog struct {
	nc            *nats.Conn
	js            jetstream.JetStream
	stream        jetstream.Stream
	subjectPrefix string
}

// NATSLogConfig configures NewNATSLog.
type NATSLogConfig struct {
	URL           string
	StreamName    string
	SubjectPrefix string
	MaxAge        time.Duration
	Storage       string // "file" or "memory"
}

// NewNATSLog connects to NATS and ensures the backing stream exists.
func NewNATSLog(ctx context.Context, cfg NATSLogConfig) (*NATSLog, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.StreamName == "" {
		cfg.StreamName = "NEUROBUS_EVENTS"
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "neurobus"
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = 24 * time.Hour
	}

	nc, err := nats.Connect(cfg.URL, nats.Timeout(5*time.Second))
	if err != nil {
		return nil, fmt.Errorf("neurobus/temporal: connecting to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("neurobus/temporal: creating JetStream context: %w", err)
	}

	storage := jetstream.FileStorage
	if cfg.Storage == "memory" {
		storage = jetstream.MemoryStorage
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.StreamName,
		Subjects:  []string{cfg.SubjectPrefix + ".>"},
		MaxAge:    cfg.MaxAge,
		Storage:   storage,
		Retention: jetstream.LimitsPolicy,
		Discard:   jetstream.DiscardOld,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("neurobus/temporal: ensuring stream: %w", err)
	}

	return &NATSLog{nc: nc, js: js, stream: stream, subjectPrefix: cfg.SubjectPrefix}, nil
}

func (l *NATSLog) subject(topicStr string) string {
	return l.subjectPrefix + "." + topicStr
}

// Append publishes e's JSON encoding onto its topic's subject.
func (l *NATSLog) Append(ctx context.Context, e *neurobus.Event) error {
	data, err := e.ToJSON()
	if err != nil {
		return fmt.Errorf("neurobus/temporal: encoding event: %w", err)
	}
	if _, err := l.js.Publish(ctx, l.subject(e.Topic()), data); err != nil {
		return fmt.Errorf("neurobus/temporal: publishing event: %w", err)
	}
	return nil
}

// QueryByTopic fetches stored messages on topic's subject, decoding each
// back into an Event. It makes a single fetch of at most 1000 messages
// (waiting up to 5s); messages beyond that are not returned. It is a scan,
// not an index lookup; intended for replay/debugging rather than hot-path
// queries.
func (l *NATSLog) QueryByTopic(ctx context.Context, topicStr string) ([]*neurobus.Event, error) {
	consumerName := fmt.Sprintf("scan-%d", time.Now().UnixNano())
	consumer, err := l.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		FilterSubject: l.subject(topicStr),
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("neurobus/temporal: creating scan consumer: %w", err)
	}
	defer func() { _ = l.stream.DeleteConsumer(ctx, consumerName) }()

	msgs, err := consumer.Fetch(1000, jetstream.FetchMaxWait(5*time.Second))
	if err != nil {
		return nil, fmt.Errorf("neurobus/temporal: fetching messages: %w", err)
	}

	var out []*neurobus.Event
	for msg := range msgs.Messages() {
		e, err := neurobus.FromJSON(msg.Data())
		if err == nil {
			out = append(out, e)
		}
		_ = msg.Ack()
	}
	return out, nil
}

// Close releases the underlying NATS connection.
func (l *NATSLog) Close() error {
	l.nc.Close()
	return nil
}
