package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestPublisher(t *testing.T) (*Publisher, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(rdb, time.Hour), mr, rdb
}

func TestPublish_StoresLastEvent(t *testing.T) {
	p, _, _ := newTestPublisher(t)
	ctx := context.Background()

	ev := Event{Username: "alice", Outcome: OutcomeSuccess, Source: SourceDirectory, Groups: 2}
	if err := p.Publish(ctx, ev); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	got, err := p.Last(ctx, "alice")
	if err != nil {
		t.Fatalf("Last() error = %v", err)
	}
	if got.Outcome != OutcomeSuccess || got.Source != SourceDirectory || got.Groups != 2 {
		t.Errorf("Last() = %+v, want success/directory/2", got)
	}
	if got.Timestamp.IsZero() {
		t.Error("Publish() did not stamp the event")
	}
}

func TestPublish_LastEventOverwritten(t *testing.T) {
	p, _, _ := newTestPublisher(t)
	ctx := context.Background()

	_ = p.Publish(ctx, Event{Username: "alice", Outcome: OutcomeSuccess, Source: SourceDirectory})
	_ = p.Publish(ctx, Event{Username: "alice", Outcome: OutcomeFailure, Source: SourceDirectory})

	got, err := p.Last(ctx, "alice")
	if err != nil {
		t.Fatalf("Last() error = %v", err)
	}
	if got.Outcome != OutcomeFailure {
		t.Errorf("Last().Outcome = %q, want %q", got.Outcome, OutcomeFailure)
	}
}

func TestPublish_LastEventExpires(t *testing.T) {
	p, mr, _ := newTestPublisher(t)
	ctx := context.Background()

	_ = p.Publish(ctx, Event{Username: "alice", Outcome: OutcomeSuccess})
	mr.FastForward(2 * time.Hour)

	if _, err := p.Last(ctx, "alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Last() after TTL = %v, want ErrNotFound", err)
	}
}

func TestPublish_DeliveredOnChannel(t *testing.T) {
	p, _, rdb := newTestPublisher(t)
	ctx := context.Background()

	sub := rdb.Subscribe(ctx, Channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := p.Publish(ctx, Event{Username: "bob", Outcome: OutcomeEmpty, Source: SourceDirectory}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case msg := <-sub.Channel():
		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			t.Fatalf("unmarshal payload: %v", err)
		}
		if ev.Username != "bob" || ev.Outcome != OutcomeEmpty {
			t.Errorf("received %+v, want bob/empty", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message received on channel")
	}
}

func TestLast_Unknown(t *testing.T) {
	p, _, _ := newTestPublisher(t)
	if _, err := p.Last(context.Background(), "nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Last() = %v, want ErrNotFound", err)
	}
}

func TestNilPublisher_IsNoop(t *testing.T) {
	var p *Publisher
	ctx := context.Background()
	if err := p.Publish(ctx, Event{Username: "alice"}); err != nil {
		t.Errorf("nil Publish() = %v", err)
	}
	if _, err := p.Last(ctx, "alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("nil Last() = %v, want ErrNotFound", err)
	}
	if err := p.Ping(ctx); err != nil {
		t.Errorf("nil Ping() = %v", err)
	}
}
