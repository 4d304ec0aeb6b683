// Package delivery turns "a new email landed in this inbox" into a stream
// of events. Three interchangeable engines exist: push (a long-lived SSE
// connection), polling (interval listing with change detection), and auto
// (push with a permanent, one-way fallback to polling once the push
// channel exhausts its reconnect budget).
package delivery

import (
	"context"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sealbox/client-go/internal/gateway"
)

// Inbox identifies one monitored inbox. The hash keys the push channel;
// the address keys the polling endpoints.
type Inbox struct {
	Hash    string
	Address string
}

// Handler receives one event per newly observed email. Events for one
// inbox arrive in transport order.
type Handler func(ctx context.Context, ev *gateway.Event)

// Engine is a notification source over a set of inboxes.
//
// Lifecycle: Start once, AddInbox/RemoveInbox while running, Stop when
// done. Stop is idempotent. Implementations are safe for concurrent use.
type Engine interface {
	// Start begins delivering events for the given inboxes. It returns
	// immediately; delivery is asynchronous until Stop or ctx cancellation.
	Start(ctx context.Context, inboxes []Inbox, h Handler) error

	// Stop tears the engine down. No events are delivered after it returns.
	Stop() error

	// AddInbox begins monitoring another inbox.
	AddInbox(inbox Inbox) error

	// RemoveInbox stops monitoring an inbox.
	RemoveInbox(inboxHash string) error

	// Name identifies the engine ("push", "polling", "auto:push",
	// "auto:polling") for logging.
	Name() string

	// OnReconnect registers a callback invoked after each successful
	// (re)connection of a persistent channel. Polling never calls it.
	// Used by the client to resync emails that arrived while disconnected.
	OnReconnect(fn func(ctx context.Context))
}

// IntervalOverrider is implemented by engines that accept a one-shot
// tighter polling interval for a single inbox, interrupting the sleep in
// progress.
type IntervalOverrider interface {
	OverrideInterval(inboxHash string, interval time.Duration)
}

// Config carries the collaborators and tuning shared by all engines.
type Config struct {
	// Gateway is the transport client. Required.
	Gateway *gateway.Client

	// Log receives engine diagnostics. Nil means silent.
	Log *logrus.Logger

	// PollInterval is the polling interval while changes are arriving.
	PollInterval time.Duration
	// PollMaxBackoff caps the idle polling interval.
	PollMaxBackoff time.Duration
	// PollMultiplier grows the interval after each unchanged poll.
	PollMultiplier float64
	// PollJitter is the random fraction added to each sleep. Negative
	// disables jitter.
	PollJitter float64

	// PushBaseDelay is the base reconnect delay; attempt n waits
	// PushBaseDelay * 2^n, capped at maxPushReconnectDelay.
	PushBaseDelay time.Duration
	// PushMaxAttempts is the reconnect budget before the push channel is
	// declared exhausted.
	PushMaxAttempts int
	// PushConnectTimeout bounds the wait for the first connection when
	// the auto engine decides between push and polling.
	PushConnectTimeout time.Duration
}

// Defaults applied by the engines when a Config field is zero.
const (
	DefaultPollInterval       = 2 * time.Second
	DefaultPollMaxBackoff     = 30 * time.Second
	DefaultPollMultiplier     = 1.5
	DefaultPollJitter         = 0.3
	DefaultPushBaseDelay      = time.Second
	DefaultPushMaxAttempts    = 10
	DefaultPushConnectTimeout = 5 * time.Second
)

func (c Config) logger() *logrus.Logger {
	if c.Log != nil {
		return c.Log
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
