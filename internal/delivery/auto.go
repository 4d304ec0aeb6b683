package delivery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// AutoEngine prefers push and falls back to polling. The fallback is
// permanent and one-directional: it happens when push fails to connect
// within the connect timeout, or later, mid-subscription, when the push
// channel exhausts its reconnect budget. Consumers see an uninterrupted
// event stream either way.
//
// A fallback replays every message the polling engine has not seen, so
// the handler must deduplicate by message ID.
type AutoEngine struct {
	cfg Config
	log *logrus.Entry

	mu       sync.Mutex
	push     *PushEngine
	poll     *PollingEngine
	inboxes  map[string]Inbox
	handler  Handler
	ctx      context.Context
	fellBack bool
	started  bool

	reconnectFn []func(ctx context.Context)
}

// NewAutoEngine returns an unstarted auto engine.
func NewAutoEngine(cfg Config) *AutoEngine {
	if cfg.PushConnectTimeout <= 0 {
		cfg.PushConnectTimeout = DefaultPushConnectTimeout
	}
	return &AutoEngine{
		cfg:     cfg,
		log:     cfg.logger().WithField("engine", "auto"),
		inboxes: make(map[string]Inbox),
	}
}

func (a *AutoEngine) Name() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fellBack {
		return "auto:polling"
	}
	return "auto:push"
}

func (a *AutoEngine) OnReconnect(fn func(ctx context.Context)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reconnectFn = append(a.reconnectFn, fn)
	if a.push != nil {
		a.push.OnReconnect(fn)
	}
}

func (a *AutoEngine) Start(ctx context.Context, inboxes []Inbox, h Handler) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return errors.New("delivery: auto engine already started")
	}
	a.started = true
	a.ctx = ctx
	a.handler = h
	for _, in := range inboxes {
		a.inboxes[in.Hash] = in
	}

	a.push = NewPushEngine(a.cfg)
	for _, fn := range a.reconnectFn {
		a.push.OnReconnect(fn)
	}
	a.push.OnExhausted(func(err error) {
		a.log.Warnf("push channel exhausted, falling back to polling: %v", err)
		a.fallback()
	})

	connected := make(chan struct{})
	var once sync.Once
	a.push.OnReconnect(func(context.Context) {
		once.Do(func() { close(connected) })
	})

	if err := a.push.Start(ctx, inboxes, h); err != nil {
		return err
	}

	// Give push one connect window. If it is still not streaming, start
	// polling without waiting for the full reconnect budget.
	go func() {
		t := time.NewTimer(a.cfg.PushConnectTimeout)
		defer t.Stop()
		select {
		case <-ctx.Done():
		case <-connected:
		case <-t.C:
			a.log.Warnf("push did not connect within %s, falling back to polling", a.cfg.PushConnectTimeout)
			a.fallback()
		}
	}()
	return nil
}

// fallback switches to polling exactly once. Safe to call from multiple
// triggers; later calls are no-ops.
func (a *AutoEngine) fallback() {
	a.mu.Lock()
	if a.fellBack || !a.started || a.ctx == nil || a.ctx.Err() != nil {
		a.mu.Unlock()
		return
	}
	a.fellBack = true
	ctx := a.ctx
	h := a.handler
	push := a.push
	inboxes := make([]Inbox, 0, len(a.inboxes))
	for _, in := range a.inboxes {
		inboxes = append(inboxes, in)
	}
	poll := NewPollingEngine(a.cfg)
	a.poll = poll
	a.mu.Unlock()

	if push != nil {
		push.Stop()
	}
	if err := poll.Start(ctx, inboxes, h); err != nil {
		a.log.Warnf("polling fallback failed to start: %v", err)
	}
}

func (a *AutoEngine) Stop() error {
	a.mu.Lock()
	push := a.push
	poll := a.poll
	a.started = false
	a.mu.Unlock()
	if push != nil {
		push.Stop()
	}
	if poll != nil {
		poll.Stop()
	}
	return nil
}

func (a *AutoEngine) AddInbox(inbox Inbox) error {
	a.mu.Lock()
	a.inboxes[inbox.Hash] = inbox
	engine := a.active()
	a.mu.Unlock()
	if engine == nil {
		return errors.New("delivery: auto engine not running")
	}
	return engine.AddInbox(inbox)
}

func (a *AutoEngine) RemoveInbox(inboxHash string) error {
	a.mu.Lock()
	delete(a.inboxes, inboxHash)
	engine := a.active()
	a.mu.Unlock()
	if engine == nil {
		return nil
	}
	return engine.RemoveInbox(inboxHash)
}

// OverrideInterval forwards to the polling engine when it is active.
func (a *AutoEngine) OverrideInterval(inboxHash string, interval time.Duration) {
	a.mu.Lock()
	poll := a.poll
	a.mu.Unlock()
	if poll != nil {
		poll.OverrideInterval(inboxHash, interval)
	}
}

// active returns the engine currently delivering events. Callers hold a.mu.
func (a *AutoEngine) active() Engine {
	if a.fellBack {
		if a.poll == nil {
			return nil
		}
		return a.poll
	}
	if a.push == nil {
		return nil
	}
	return a.push
}
