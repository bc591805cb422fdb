package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/acura/internal/shared"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// DedupeWindow is how long JetStream remembers message ids.
//
// Refill requests for the same license inside one window collapse into a single message.
const DedupeWindow = 2 * time.Minute

// JetStreamContext defines the subset of [jetstream.JetStream] used by [Stream].
type JetStreamContext interface {
	Stream(ctx context.Context, name string) (jetstream.Stream, error)
	CreateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
	UpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Stream publishes curation requests and feeds deliveries to a [Consumer].
type Stream struct {
	nc     *nats.Conn
	js     JetStreamContext
	cfg    shared.QueueConfig
	logger *log.Logger
}

// Connect dials NATS and returns a Stream. Call [Stream.EnsureStream] before use.
func Connect(cfg shared.QueueConfig, logger *log.Logger) (*Stream, error) {
	if logger == nil {
		logger = log.Default()
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name("acura"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", cfg.URL, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	return &Stream{nc: nc, js: js, cfg: cfg, logger: logger}, nil
}

// NewStream wraps an existing JetStream context, mainly for tests.
func NewStream(js JetStreamContext, cfg shared.QueueConfig, logger *log.Logger) *Stream {
	if logger == nil {
		logger = log.Default()
	}
	return &Stream{js: js, cfg: cfg, logger: logger}
}

// StreamConfig returns the work-queue stream definition.
func (s *Stream) StreamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:       s.cfg.Stream,
		Subjects:   []string{s.cfg.Subject},
		Retention:  jetstream.WorkQueuePolicy,
		Storage:    jetstream.FileStorage,
		Duplicates: DedupeWindow,
		Discard:    jetstream.DiscardOld,
	}
}

// EnsureStream creates the stream or updates it to the current definition.
func (s *Stream) EnsureStream(ctx context.Context) (jetstream.Stream, error) {
	cfg := s.StreamConfig()

	_, err := s.js.Stream(ctx, cfg.Name)
	if err == nil {
		stream, err := s.js.UpdateStream(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("update stream %s: %w", cfg.Name, err)
		}
		return stream, nil
	}

	if errors.Is(err, jetstream.ErrStreamNotFound) {
		stream, err := s.js.CreateStream(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		s.logger.Info("stream created", "stream", cfg.Name, "subject", s.cfg.Subject)
		return stream, nil
	}

	return nil, fmt.Errorf("check stream %s: %w", cfg.Name, err)
}

// ConsumerConfig returns the durable pull consumer definition.
func (s *Stream) ConsumerConfig() jetstream.ConsumerConfig {
	return jetstream.ConsumerConfig{
		Durable:       s.cfg.Durable,
		FilterSubject: s.cfg.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       s.cfg.AckWait.Duration,
		MaxDeliver:    s.cfg.MaxDeliveries,
		MaxAckPending: max(s.cfg.Concurrency, 1),
	}
}

// Deliveries starts pulling messages and returns them on a channel.
//
// The channel closes once ctx is cancelled; a message pulled but not handed over is requeued.
func (s *Stream) Deliveries(ctx context.Context) (<-chan Message, error) {
	stream, err := s.EnsureStream(ctx)
	if err != nil {
		return nil, err
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, s.ConsumerConfig())
	if err != nil {
		return nil, fmt.Errorf("create consumer %s: %w", s.cfg.Durable, err)
	}

	iter, err := cons.Messages(jetstream.PullMaxMessages(max(s.cfg.Concurrency, 1)))
	if err != nil {
		return nil, fmt.Errorf("start message iterator: %w", err)
	}

	out := make(chan Message)
	go func() {
		<-ctx.Done()
		iter.Stop()
	}()
	go func() {
		defer close(out)
		for {
			msg, err := iter.Next()
			if err != nil {
				if errors.Is(err, jetstream.ErrMsgIteratorClosed) || ctx.Err() != nil {
					return
				}
				s.logger.Warn("pull failed", "err", err)
				continue
			}

			select {
			case out <- msg:
			case <-ctx.Done():
				if err := msg.Nak(); err != nil {
					s.logger.Warn("failed to requeue undelivered message", "err", err)
				}
				return
			}
		}
	}()

	return out, nil
}

// Publish enqueues a curation request for license. Requests sharing msgID within
// [DedupeWindow] are stored once.
func (s *Stream) Publish(ctx context.Context, license, msgID string) error {
	data, err := Request{License: license}.Encode()
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	ack, err := s.js.Publish(ctx, s.cfg.Subject, data, jetstream.WithMsgID(msgID))
	if err != nil {
		return fmt.Errorf("publish to %s: %w", s.cfg.Subject, err)
	}
	if ack.Duplicate {
		s.logger.Debug("duplicate curation request dropped", "msg_id", msgID)
	}
	return nil
}

// RefillMsgID is the message id for automatic refills, shared by every request for
// license within the same [DedupeWindow].
func RefillMsgID(license string, now time.Time) string {
	return fmt.Sprintf("refill-%s-%d", license, now.Truncate(DedupeWindow).Unix())
}

// Close drains the NATS connection.
func (s *Stream) Close() error {
	if s.nc == nil {
		return nil
	}
	return s.nc.Drain()
}
