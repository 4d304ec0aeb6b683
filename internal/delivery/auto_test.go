package delivery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sealbox/client-go/internal/gateway"
)

func TestAutoEngineStaysOnPushWhenHealthy(t *testing.T) {
	fake := &pollServer{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/events" {
			sseHandler(emailFrame("h", "m1"))(w, r)
			return
		}
		fake.handler()(w, r)
	}))
	defer srv.Close()

	events := make(chan *gateway.Event, 4)
	eng := NewAutoEngine(Config{
		Gateway:            testGateway(t, srv),
		PushConnectTimeout: 50 * time.Millisecond,
	})
	if err := eng.Start(context.Background(), []Inbox{{Hash: "h", Address: "box@sealbox.dev"}},
		func(_ context.Context, ev *gateway.Event) { events <- ev }); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer eng.Stop()

	if ev := recvEvent(t, events); ev.MessageID != "m1" {
		t.Fatalf("got %q, want m1", ev.MessageID)
	}
	time.Sleep(100 * time.Millisecond)
	if got := eng.Name(); got != "auto:push" {
		t.Fatalf("Name = %q, want auto:push", got)
	}
	if got := fake.listCallCount(); got != 0 {
		t.Fatalf("polling endpoints hit %d times while push is healthy", got)
	}
}

func TestAutoEngineFallsBackWhenPushExhausts(t *testing.T) {
	fake := &pollServer{}
	fake.setMessages("hash1", "m1")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/events" {
			http.Error(w, `{"error":"unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		fake.handler()(w, r)
	}))
	defer srv.Close()

	events := make(chan *gateway.Event, 4)
	eng := NewAutoEngine(Config{
		Gateway:            testGateway(t, srv),
		PushBaseDelay:      time.Millisecond,
		PushMaxAttempts:    2,
		PushConnectTimeout: time.Minute,
		PollInterval:       5 * time.Millisecond,
		PollJitter:         -1,
	})
	if err := eng.Start(context.Background(), []Inbox{{Hash: "h", Address: "box@sealbox.dev"}},
		func(_ context.Context, ev *gateway.Event) { events <- ev }); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer eng.Stop()

	// The reconnect budget is spent almost immediately, after which
	// polling must pick up the inbox and deliver its messages.
	if ev := recvEvent(t, events); ev.MessageID != "m1" {
		t.Fatalf("got %q, want m1", ev.MessageID)
	}
	if got := eng.Name(); got != "auto:polling" {
		t.Fatalf("Name = %q, want auto:polling", got)
	}
}

func TestAutoEngineFallsBackOnConnectTimeout(t *testing.T) {
	fake := &pollServer{}
	fake.setMessages("hash1", "m1")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/events" {
			// Never completes the handshake into a usable stream.
			<-r.Context().Done()
			return
		}
		fake.handler()(w, r)
	}))
	defer srv.Close()

	events := make(chan *gateway.Event, 4)
	eng := NewAutoEngine(Config{
		Gateway:            testGateway(t, srv),
		PushBaseDelay:      time.Millisecond,
		PushConnectTimeout: 20 * time.Millisecond,
		PollInterval:       5 * time.Millisecond,
		PollJitter:         -1,
	})
	if err := eng.Start(context.Background(), []Inbox{{Hash: "h", Address: "box@sealbox.dev"}},
		func(_ context.Context, ev *gateway.Event) { events <- ev }); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer eng.Stop()

	if ev := recvEvent(t, events); ev.MessageID != "m1" {
		t.Fatalf("got %q, want m1", ev.MessageID)
	}
	if got := eng.Name(); got != "auto:polling" {
		t.Fatalf("Name = %q, want auto:polling", got)
	}
}

func TestAutoEngineFallbackIsOneWay(t *testing.T) {
	fake := &pollServer{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/events" {
			// Healthy SSE, but it must be irrelevant once fallen back.
			sseHandler()(w, r)
			return
		}
		fake.handler()(w, r)
	}))
	defer srv.Close()

	eng := NewAutoEngine(Config{
		Gateway:            testGateway(t, srv),
		PushConnectTimeout: time.Minute,
		PollInterval:       5 * time.Millisecond,
		PollJitter:         -1,
	})
	if err := eng.Start(context.Background(), []Inbox{{Hash: "h", Address: "box@sealbox.dev"}}, nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer eng.Stop()

	eng.fallback()
	if got := eng.Name(); got != "auto:polling" {
		t.Fatalf("Name = %q, want auto:polling", got)
	}
	time.Sleep(50 * time.Millisecond)
	if got := eng.Name(); got != "auto:polling" {
		t.Fatalf("Name = %q after settling, want auto:polling", got)
	}

	// New inboxes land on the polling engine, not on push.
	if err := eng.AddInbox(Inbox{Hash: "h2", Address: "box@sealbox.dev"}); err != nil {
		t.Fatalf("AddInbox: %v", err)
	}
}
