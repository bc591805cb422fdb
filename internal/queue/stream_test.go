package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/acura/internal/shared"
	tu "github.com/desertthunder/acura/internal/testing"
	"github.com/nats-io/nats.go/jetstream"
)

type fakeJetStream struct {
	streamErr error
	created   []jetstream.StreamConfig
	updated   []jetstream.StreamConfig
	subject   string
	published []byte
	duplicate bool
}

func (f *fakeJetStream) Stream(context.Context, string) (jetstream.Stream, error) {
	return nil, f.streamErr
}

func (f *fakeJetStream) CreateStream(_ context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	f.created = append(f.created, cfg)
	return nil, nil
}

func (f *fakeJetStream) UpdateStream(_ context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	f.updated = append(f.updated, cfg)
	return nil, nil
}

func (f *fakeJetStream) Publish(_ context.Context, subject string, data []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	f.subject = subject
	f.published = data
	return &jetstream.PubAck{Stream: "ACURA", Sequence: 1, Duplicate: f.duplicate}, nil
}

func TestStream_EnsureStream(t *testing.T) {
	cfg := shared.DefaultConfig().Queue

	t.Run("creates a missing stream", func(t *testing.T) {
		js := &fakeJetStream{streamErr: jetstream.ErrStreamNotFound}
		if _, err := NewStream(js, cfg, tu.DiscardLogger()).EnsureStream(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(js.created) != 1 || len(js.updated) != 0 {
			t.Fatalf("expected one create, got %d creates and %d updates", len(js.created), len(js.updated))
		}
		got := js.created[0]
		if got.Name != "ACURA" || got.Retention != jetstream.WorkQueuePolicy {
			t.Errorf("unexpected stream config %+v", got)
		}
		if len(got.Subjects) != 1 || got.Subjects[0] != "acura.curate" {
			t.Errorf("unexpected subjects %v", got.Subjects)
		}
	})

	t.Run("updates an existing stream", func(t *testing.T) {
		js := &fakeJetStream{}
		if _, err := NewStream(js, cfg, tu.DiscardLogger()).EnsureStream(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(js.updated) != 1 || len(js.created) != 0 {
			t.Errorf("expected one update, got %d creates and %d updates", len(js.created), len(js.updated))
		}
	})

	t.Run("surfaces lookup errors", func(t *testing.T) {
		boom := errors.New("no responders")
		js := &fakeJetStream{streamErr: boom}
		if _, err := NewStream(js, cfg, tu.DiscardLogger()).EnsureStream(context.Background()); !errors.Is(err, boom) {
			t.Fatalf("expected lookup error, got %v", err)
		}
	})
}

func TestStream_ConsumerConfig(t *testing.T) {
	cfg := shared.DefaultConfig().Queue
	got := NewStream(&fakeJetStream{}, cfg, nil).ConsumerConfig()

	if got.Durable != "acura" || got.AckPolicy != jetstream.AckExplicitPolicy {
		t.Errorf("unexpected consumer config %+v", got)
	}
	if got.MaxDeliver != cfg.MaxDeliveries || got.MaxAckPending != cfg.Concurrency {
		t.Errorf("expected delivery cap %d and %d pending, got %d and %d",
			cfg.MaxDeliveries, cfg.Concurrency, got.MaxDeliver, got.MaxAckPending)
	}
	if got.AckWait != cfg.AckWait.Duration {
		t.Errorf("expected ack wait %v, got %v", cfg.AckWait.Duration, got.AckWait)
	}
}

func TestStream_Publish(t *testing.T) {
	js := &fakeJetStream{duplicate: true}
	s := NewStream(js, shared.DefaultConfig().Queue, tu.DiscardLogger())

	if err := s.Publish(context.Background(), "lic-1", shared.GenerateID()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if js.subject != "acura.curate" {
		t.Errorf("expected subject acura.curate, got %q", js.subject)
	}

	var req Request
	if err := json.Unmarshal(js.published, &req); err != nil {
		t.Fatalf("published body is not JSON: %v", err)
	}
	if req.License != "lic-1" {
		t.Errorf("expected license lic-1, got %q", req.License)
	}
}

func TestRefillMsgID(t *testing.T) {
	base := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	if RefillMsgID("a", base) != RefillMsgID("a", base.Add(time.Minute)) {
		t.Error("expected requests inside one window to share an id")
	}
	if RefillMsgID("a", base) == RefillMsgID("a", base.Add(DedupeWindow)) {
		t.Error("expected the next window to get a new id")
	}
	if RefillMsgID("a", base) == RefillMsgID("b", base) {
		t.Error("expected ids to differ per license")
	}
}
