package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/stash/internal/identity"
)

func drain(ch chan []byte) []string {
	time.Sleep(50 * time.Millisecond)
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe("u1")
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishOnlyReachesOwner(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	mine := b.Subscribe("u1")
	defer b.Unsubscribe(mine)
	theirs := b.Subscribe("u2")
	defer b.Unsubscribe(theirs)

	b.Publish(Event{UserID: "u1", Type: ResourceCreated, Data: map[string]string{"id": "r1"}})

	select {
	case msg := <-mine:
		s := string(msg)
		if !strings.Contains(s, "event: resource.created") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"id":"r1"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
	if got := drain(theirs); len(got) != 0 {
		t.Errorf("other user received %v", got)
	}
}

func TestPublishChange_StatsThrottlePerUser(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	u1 := b.Subscribe("u1")
	defer b.Unsubscribe(u1)
	u2 := b.Subscribe("u2")
	defer b.Unsubscribe(u2)

	// The first change per user triggers stats.updated; the second is throttled.
	b.PublishChange("u1", ResourceCreated, map[string]string{"id": "a"})
	b.PublishChange("u1", ResourceUpdated, map[string]string{"id": "a"})
	b.PublishChange("u2", FolderCreated, map[string]string{"id": "f"})

	count := func(msgs []string) (changes, stats int) {
		for _, m := range msgs {
			if strings.Contains(m, StatsUpdated) {
				stats++
			} else {
				changes++
			}
		}
		return changes, stats
	}

	if c, s := count(drain(u1)); c != 2 || s != 1 {
		t.Errorf("u1 changes = %d, stats = %d; want 2, 1", c, s)
	}
	if c, s := count(drain(u2)); c != 1 || s != 1 {
		t.Errorf("u2 changes = %d, stats = %d; want 1, 1", c, s)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(identity.WithUserID(context.Background(), "u1"))
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.Publish(Event{UserID: "u1", Type: FolderUpdated, Data: map[string]string{"id": "f1"}})
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: folder.updated") {
		t.Errorf("handler output missing event: %q", body)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestSSEHandlerRequiresUser(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	w := httptest.NewRecorder()
	b.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe("u1")
	defer b.Unsubscribe(ch)

	// Capacity is 64; the extra events must be dropped, not block.
	for range 70 {
		b.Publish(Event{UserID: "u1", Type: "test", Data: map[string]string{"i": "x"}})
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe("u1")
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	b.Publish(Event{UserID: "u1", Type: FolderUpdated})
	b.PublishChange("u1", ResourceDeleted, nil)
}
