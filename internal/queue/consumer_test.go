package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/acura/internal/models"
	"github.com/desertthunder/acura/internal/shared"
	"github.com/desertthunder/acura/internal/tasks"
	tu "github.com/desertthunder/acura/internal/testing"
	"github.com/nats-io/nats.go/jetstream"
)

type fakeMsg struct {
	mu        sync.Mutex
	data      []byte
	delivered uint64
	settleErr error
	settled   []string
	delay     time.Duration
	progress  int
}

func newMsg(body string) *fakeMsg {
	return &fakeMsg{data: []byte(body), delivered: 1}
}

func (m *fakeMsg) record(kind string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settled = append(m.settled, kind)
	return m.settleErr
}

func (m *fakeMsg) Data() []byte { return m.data }
func (m *fakeMsg) Ack() error   { return m.record("ack") }
func (m *fakeMsg) Nak() error   { return m.record("nak") }
func (m *fakeMsg) Term() error  { return m.record("term") }

func (m *fakeMsg) InProgress() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress++
	return nil
}

func (m *fakeMsg) NakWithDelay(d time.Duration) error {
	m.mu.Lock()
	m.delay = d
	m.mu.Unlock()
	return m.record("nak_delay")
}

func (m *fakeMsg) Metadata() (*jetstream.MsgMetadata, error) {
	return &jetstream.MsgMetadata{NumDelivered: m.delivered}, nil
}

func (m *fakeMsg) outcome() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.settled...)
}

type curatorFunc func(ctx context.Context, sub *models.Subscriber) (int, error)

func (f curatorFunc) Curate(ctx context.Context, sub *models.Subscriber, _ chan<- tasks.ProgressUpdate) (int, error) {
	return f(ctx, sub)
}

type subscriberMap map[string]*models.Subscriber

func (m subscriberMap) SubscriberByLicense(_ context.Context, license string) (*models.Subscriber, error) {
	if sub, ok := m[license]; ok {
		return sub, nil
	}
	return nil, shared.ErrSubscriberNotFound
}

var testSubscribers = subscriberMap{
	"lic-3":     {ID: 3, License: "lic-3"},
	"lic-0":     {ID: 0, License: "lic-0"},
	"lic-err":   {ID: 7, License: "lic-err"},
	"lic-panic": {ID: 8, License: "lic-panic"},
}

func scriptedCurator(ctx context.Context, sub *models.Subscriber) (int, error) {
	switch sub.License {
	case "lic-err":
		return 0, shared.ErrCatalog
	case "lic-panic":
		panic("boom")
	}
	return int(sub.ID), nil
}

func testSettings() Settings {
	return Settings{
		Concurrency:     2,
		MaxDeliveries:   5,
		RequeueDelay:    5 * time.Minute,
		MessageTimeout:  time.Second,
		ShutdownTimeout: time.Second,
	}
}

// feed returns a closed channel holding msgs.
func feed(msgs ...*fakeMsg) <-chan Message {
	ch := make(chan Message, len(msgs))
	for _, m := range msgs {
		ch <- m
	}
	close(ch)
	return ch
}

func TestConsumer_Dispositions(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		delivered uint64
		want      string
	}{
		{name: "tracks added", body: `{"license":"lic-3"}`, want: "ack"},
		{name: "nothing added", body: `{"license":"lic-0"}`, want: "nak_delay"},
		{name: "nothing added at delivery cap", body: `{"license":"lic-0"}`, delivered: 5, want: "term"},
		{name: "malformed json", body: `{"license":`, want: "term"},
		{name: "empty license", body: `{"license":"  "}`, want: "term"},
		{name: "unknown subscriber", body: `{"license":"nobody"}`, want: "term"},
		{name: "curation error", body: `{"license":"lic-err"}`, want: "term"},
		{name: "panic", body: `{"license":"lic-panic"}`, want: "term"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := newMsg(tt.body)
			if tt.delivered > 0 {
				msg.delivered = tt.delivered
			}
			c := NewConsumer(curatorFunc(scriptedCurator), testSubscribers, testSettings(), tu.DiscardLogger())

			if err := c.Run(context.Background(), feed(msg)); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			got := msg.outcome()
			if len(got) != 1 || got[0] != tt.want {
				t.Errorf("expected exactly one %q, got %v", tt.want, got)
			}
			if msg.progress != 1 {
				t.Errorf("expected ack deadline extended once, got %d", msg.progress)
			}
		})
	}

	t.Run("requeue uses the configured delay", func(t *testing.T) {
		msg := newMsg(`{"license":"lic-0"}`)
		c := NewConsumer(curatorFunc(scriptedCurator), testSubscribers, testSettings(), tu.DiscardLogger())
		if err := c.Run(context.Background(), feed(msg)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if msg.delay != 5*time.Minute {
			t.Errorf("expected 5m delay, got %v", msg.delay)
		}
	})

	t.Run("bad message does not stop the loop", func(t *testing.T) {
		bad := newMsg(`not json`)
		good := newMsg(`{"license":"lic-3"}`)
		c := NewConsumer(curatorFunc(scriptedCurator), testSubscribers, testSettings(), tu.DiscardLogger())

		if err := c.Run(context.Background(), feed(bad, good)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := bad.outcome(); len(got) != 1 || got[0] != "term" {
			t.Errorf("expected bad message terminated, got %v", got)
		}
		if got := good.outcome(); len(got) != 1 || got[0] != "ack" {
			t.Errorf("expected good message acked, got %v", got)
		}
	})

	t.Run("settle errors are logged only", func(t *testing.T) {
		msg := newMsg(`{"license":"lic-3"}`)
		msg.settleErr = errors.New("nats: message was already acknowledged")
		c := NewConsumer(curatorFunc(scriptedCurator), testSubscribers, testSettings(), tu.DiscardLogger())

		if err := c.Run(context.Background(), feed(msg)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := msg.outcome(); len(got) != 1 {
			t.Errorf("expected a single settle attempt, got %v", got)
		}
	})

	t.Run("message timeout rejects a stuck curation", func(t *testing.T) {
		stuck := curatorFunc(func(ctx context.Context, _ *models.Subscriber) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		})
		settings := testSettings()
		settings.MessageTimeout = 20 * time.Millisecond
		msg := newMsg(`{"license":"lic-3"}`)
		c := NewConsumer(stuck, testSubscribers, settings, tu.DiscardLogger())

		if err := c.Run(context.Background(), feed(msg)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := msg.outcome(); len(got) != 1 || got[0] != "term" {
			t.Errorf("expected timed-out message terminated, got %v", got)
		}
	})
}

func TestConsumer_Concurrency(t *testing.T) {
	var (
		current atomic.Int32
		peak    atomic.Int32
	)
	slow := curatorFunc(func(ctx context.Context, sub *models.Subscriber) (int, error) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		current.Add(-1)
		return 1, nil
	})

	msgs := make([]*fakeMsg, 5)
	for i := range msgs {
		msgs[i] = newMsg(`{"license":"lic-3"}`)
	}

	c := NewConsumer(slow, testSubscribers, testSettings(), tu.DiscardLogger())
	if err := c.Run(context.Background(), feed(msgs...)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p := peak.Load(); p > 2 {
		t.Errorf("expected at most 2 in flight, saw %d", p)
	}
	if p := peak.Load(); p < 2 {
		t.Errorf("expected messages to overlap, peak was %d", p)
	}
	for i, m := range msgs {
		if got := m.outcome(); len(got) != 1 || got[0] != "ack" {
			t.Errorf("message %d: expected ack, got %v", i, got)
		}
	}
}

func TestConsumer_Shutdown(t *testing.T) {
	t.Run("cancels in-flight work and requeues it", func(t *testing.T) {
		started := make(chan struct{})
		blocking := curatorFunc(func(ctx context.Context, sub *models.Subscriber) (int, error) {
			close(started)
			<-ctx.Done()
			return 0, ctx.Err()
		})

		deliveries := make(chan Message, 1)
		msg := newMsg(`{"license":"lic-3"}`)
		deliveries <- msg

		ctx, cancel := context.WithCancel(context.Background())
		c := NewConsumer(blocking, testSubscribers, testSettings(), tu.DiscardLogger())

		errc := make(chan error, 1)
		go func() { errc <- c.Run(ctx, deliveries) }()

		<-started
		cancel()

		select {
		case err := <-errc:
			if err != nil {
				t.Fatalf("expected clean shutdown, got %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("consumer did not stop")
		}
		if got := msg.outcome(); len(got) != 1 || got[0] != "nak" {
			t.Errorf("expected immediate requeue, got %v", got)
		}
	})

	t.Run("input errors are terminated after cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		for _, body := range []string{`{not json`, `{"license":""}`, `{"license":"unknown"}`} {
			t.Run(body, func(t *testing.T) {
				msg := newMsg(body)
				c := NewConsumer(curatorFunc(scriptedCurator), testSubscribers, testSettings(), tu.DiscardLogger())

				c.handle(ctx, msg)

				if got := msg.outcome(); len(got) != 1 || got[0] != "term" {
					t.Errorf("expected term, got %v", got)
				}
			})
		}
	})

	t.Run("curation errors are terminated after cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		msg := newMsg(`{"license":"lic-err"}`)
		c := NewConsumer(curatorFunc(scriptedCurator), testSubscribers, testSettings(), tu.DiscardLogger())

		c.handle(ctx, msg)

		if got := msg.outcome(); len(got) != 1 || got[0] != "term" {
			t.Errorf("expected term, got %v", got)
		}
	})

	t.Run("gives up on stuck workers", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)
		started := make(chan struct{})
		stuck := curatorFunc(func(ctx context.Context, sub *models.Subscriber) (int, error) {
			close(started)
			<-release
			return 1, nil
		})

		deliveries := make(chan Message, 1)
		deliveries <- newMsg(`{"license":"lic-3"}`)

		settings := testSettings()
		settings.ShutdownTimeout = 50 * time.Millisecond
		ctx, cancel := context.WithCancel(context.Background())
		c := NewConsumer(stuck, testSubscribers, settings, tu.DiscardLogger())

		errc := make(chan error, 1)
		go func() { errc <- c.Run(ctx, deliveries) }()

		<-started
		cancel()

		if err := <-errc; !errors.Is(err, shared.ErrShutdownTimeout) {
			t.Fatalf("expected ErrShutdownTimeout, got %v", err)
		}
	})
}

func TestDispositionFor(t *testing.T) {
	tests := []struct {
		added int
		err   error
		want  Disposition
	}{
		{added: 3, want: Ack},
		{added: 0, want: Requeue},
		{added: 0, err: shared.ErrVideoSearch, want: Reject},
		{added: 2, err: shared.ErrCatalog, want: Reject},
	}

	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			if got := dispositionFor(tt.added, tt.err); got != tt.want {
				t.Errorf("dispositionFor(%d, %v) = %s, want %s", tt.added, tt.err, got, tt.want)
			}
		})
	}
}

func TestDecodeRequest(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{name: "valid", body: `{"license":"abc"}`, want: "abc"},
		{name: "trims", body: `{"license":" abc "}`, want: "abc"},
		{name: "extra fields", body: `{"license":"abc","source":"web"}`, want: "abc"},
		{name: "missing license", body: `{}`, wantErr: true},
		{name: "wrong type", body: `{"license":5}`, wantErr: true},
		{name: "not json", body: `license=abc`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := DecodeRequest([]byte(tt.body))
			if tt.wantErr {
				if !errors.Is(err, shared.ErrInvalidMessage) {
					t.Fatalf("expected ErrInvalidMessage, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if req.License != tt.want {
				t.Errorf("expected %q, got %q", tt.want, req.License)
			}
		})
	}
}

func TestDispositionString(t *testing.T) {
	for d, want := range map[Disposition]string{Ack: "ack", Requeue: "requeue", Reject: "reject", Disposition(9): "unknown"} {
		if got := d.String(); got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	}
}
