package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/acura/internal/models"
	"github.com/desertthunder/acura/internal/shared"
	"github.com/desertthunder/acura/internal/tasks"
	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/semaphore"
)

// Message is the part of [jetstream.Msg] the consumer needs.
type Message interface {
	Data() []byte
	Ack() error
	Nak() error
	NakWithDelay(delay time.Duration) error
	Term() error
	InProgress() error
	Metadata() (*jetstream.MsgMetadata, error)
}

// SubscriberLookup resolves a license to its subscriber.
type SubscriberLookup interface {
	SubscriberByLicense(ctx context.Context, license string) (*models.Subscriber, error)
}

// Disposition is how a message is settled.
type Disposition int

const (
	Ack     Disposition = iota // processed, remove from the stream
	Requeue                    // redeliver later
	Reject                     // never redeliver
)

func (d Disposition) String() string {
	switch d {
	case Ack:
		return "ack"
	case Requeue:
		return "requeue"
	case Reject:
		return "reject"
	default:
		return "unknown"
	}
}

// dispositionFor maps a curation outcome to a disposition.
func dispositionFor(added int, err error) Disposition {
	switch {
	case err != nil:
		return Reject
	case added > 0:
		return Ack
	default:
		return Requeue
	}
}

// Request is the body of a curation message.
type Request struct {
	License string `json:"license"`
}

// DecodeRequest parses and validates a message body.
func DecodeRequest(data []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Request{}, fmt.Errorf("%w: %v", shared.ErrInvalidMessage, err)
	}
	req.License = strings.TrimSpace(req.License)
	if req.License == "" {
		return Request{}, fmt.Errorf("%w: license is required", shared.ErrInvalidMessage)
	}
	return req, nil
}

// Encode returns the JSON body of the request.
func (r Request) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// Settings bound the consumer.
type Settings struct {
	Concurrency     int
	MaxDeliveries   int // 0 disables the cap
	RequeueDelay    time.Duration
	MessageTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// SettingsFromConfig converts the queue config section.
func SettingsFromConfig(c shared.QueueConfig) Settings {
	return Settings{
		Concurrency:     c.Concurrency,
		MaxDeliveries:   c.MaxDeliveries,
		RequeueDelay:    c.RequeueDelay.Duration,
		MessageTimeout:  c.MessageTimeout.Duration,
		ShutdownTimeout: c.ShutdownTimeout.Duration,
	}
}

// Consumer processes curation requests with bounded concurrency.
type Consumer struct {
	curator     tasks.Curator
	subscribers SubscriberLookup
	settings    Settings
	sem         *semaphore.Weighted
	logger      *log.Logger
}

// NewConsumer creates a Consumer. Concurrency below one is raised to one.
func NewConsumer(curator tasks.Curator, subscribers SubscriberLookup, settings Settings, logger *log.Logger) *Consumer {
	if settings.Concurrency < 1 {
		settings.Concurrency = 1
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Consumer{
		curator:     curator,
		subscribers: subscribers,
		settings:    settings,
		sem:         semaphore.NewWeighted(int64(settings.Concurrency)),
		logger:      logger,
	}
}

// Run handles deliveries until the channel closes or ctx is cancelled.
//
// A closed channel waits for in-flight messages. Cancellation cancels them and waits
// up to ShutdownTimeout, returning [shared.ErrShutdownTimeout] if workers are still running.
func (c *Consumer) Run(ctx context.Context, deliveries <-chan Message) error {
	var wg sync.WaitGroup
	c.logger.Info("consumer started", "concurrency", c.settings.Concurrency)

	for {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return c.drain(&wg)
		}

		select {
		case <-ctx.Done():
			c.sem.Release(1)
			return c.drain(&wg)
		case msg, ok := <-deliveries:
			if !ok {
				c.sem.Release(1)
				wg.Wait()
				c.logger.Info("deliveries closed, consumer stopped")
				return nil
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer c.sem.Release(1)
				c.handle(ctx, msg)
			}()
		}
	}
}

func (c *Consumer) drain(wg *sync.WaitGroup) error {
	c.logger.Info("shutting down, waiting for in-flight messages", "timeout", c.settings.ShutdownTimeout)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(c.settings.ShutdownTimeout):
		return shared.ErrShutdownTimeout
	}
}

// handle processes one message and settles it exactly once.
//
// The ack deadline restarts here, since the message may have waited for a slot since the pull.
func (c *Consumer) handle(ctx context.Context, msg Message) {
	if err := msg.InProgress(); err != nil {
		c.logger.Warn("failed to extend ack deadline", "err", err)
	}
	d, err := c.process(ctx, msg)
	c.settle(ctx, msg, d, err)
}

func (c *Consumer) process(ctx context.Context, msg Message) (d Disposition, err error) {
	defer func() {
		if r := recover(); r != nil {
			d, err = Reject, fmt.Errorf("panic while curating: %v", r)
		}
	}()

	req, err := DecodeRequest(msg.Data())
	if err != nil {
		return Reject, err
	}

	mctx, cancel := c.messageContext(ctx)
	defer cancel()

	sub, err := c.subscribers.SubscriberByLicense(mctx, req.License)
	if err != nil {
		return Reject, fmt.Errorf("license %s: %w", shared.Truncate(req.License, 8), err)
	}

	added, err := c.curator.Curate(mctx, sub, nil)
	if err != nil {
		err = fmt.Errorf("subscriber %d: %w", sub.ID, err)
	}
	return dispositionFor(added, err), err
}

func (c *Consumer) messageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.settings.MessageTimeout > 0 {
		return context.WithTimeout(ctx, c.settings.MessageTimeout)
	}
	return context.WithCancel(ctx)
}

// settle applies the disposition. Messages interrupted by shutdown are requeued immediately.
func (c *Consumer) settle(ctx context.Context, msg Message, d Disposition, cause error) {
	var err error
	switch {
	case ctx.Err() != nil && interrupted(cause):
		d = Requeue
		c.logger.Info("requeueing message interrupted by shutdown")
		err = msg.Nak()
	case d == Ack:
		err = msg.Ack()
	case d == Requeue && c.exhausted(msg):
		d = Reject
		c.logger.Warn("message dead-lettered: nothing curated within the delivery cap", "max_deliveries", c.settings.MaxDeliveries)
		err = msg.Term()
	case d == Requeue:
		err = msg.NakWithDelay(c.settings.RequeueDelay)
	default:
		c.logger.Error("message rejected", "err", cause)
		err = msg.Term()
	}

	if err != nil {
		c.logger.Warn("failed to settle message", "disposition", d, "err", err)
		return
	}
	c.logger.Debug("message settled", "disposition", d)
}

// interrupted reports whether cause came from a cancelled or expired context.
func interrupted(cause error) bool {
	return errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded)
}

func (c *Consumer) exhausted(msg Message) bool {
	if c.settings.MaxDeliveries <= 0 {
		return false
	}
	meta, err := msg.Metadata()
	if err != nil {
		c.logger.Debug("message metadata unavailable", "err", err)
		return false
	}
	return meta.NumDelivered >= uint64(c.settings.MaxDeliveries)
}
