package delivery

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sealbox/client-go/internal/gateway"
)

// State is the push channel's connection state.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateReconnecting
	StateExhausted
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateReconnecting:
		return "reconnecting"
	case StateExhausted:
		return "exhausted"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ExhaustedError reports that the push channel gave up reconnecting.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("push channel exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// PushEngine delivers events over a long-lived SSE connection. Dropped
// connections are retried with exponential backoff; once the reconnect
// budget is spent the engine goes terminal and reports through the
// OnExhausted callback.
type PushEngine struct {
	cfg   Config
	log   *logrus.Entry
	state atomic.Int32

	mu          sync.Mutex
	inboxes     map[string]Inbox
	handler     Handler
	reconnectFn []func(ctx context.Context)
	exhaustedFn func(err error)
	cancel      context.CancelFunc
	connCancel  context.CancelFunc
	resubscribe bool
	started     bool

	wg sync.WaitGroup
}

// NewPushEngine returns an unstarted push engine.
func NewPushEngine(cfg Config) *PushEngine {
	if cfg.PushBaseDelay <= 0 {
		cfg.PushBaseDelay = DefaultPushBaseDelay
	}
	if cfg.PushMaxAttempts <= 0 {
		cfg.PushMaxAttempts = DefaultPushMaxAttempts
	}
	return &PushEngine{
		cfg:     cfg,
		log:     cfg.logger().WithField("engine", "push"),
		inboxes: make(map[string]Inbox),
	}
}

func (p *PushEngine) Name() string { return "push" }

// CurrentState reports the connection state.
func (p *PushEngine) CurrentState() State {
	return State(p.state.Load())
}

// OnReconnect registers fn to run after every successful (re)connection,
// including the first. Must be called before Start.
func (p *PushEngine) OnReconnect(fn func(ctx context.Context)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reconnectFn = append(p.reconnectFn, fn)
}

// OnExhausted registers fn to run once if the reconnect budget is spent.
// Must be called before Start.
func (p *PushEngine) OnExhausted(fn func(err error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exhaustedFn = fn
}

func (p *PushEngine) Start(ctx context.Context, inboxes []Inbox, h Handler) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return errors.New("delivery: push engine already started")
	}
	p.started = true
	p.handler = h
	for _, in := range inboxes {
		p.inboxes[in.Hash] = in
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.state.Store(int32(StateConnecting))

	p.wg.Add(1)
	go p.run(runCtx)
	return nil
}

func (p *PushEngine) Stop() error {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
	st := p.CurrentState()
	if st != StateExhausted {
		p.state.Store(int32(StateStopped))
	}
	return nil
}

func (p *PushEngine) AddInbox(inbox Inbox) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.inboxes[inbox.Hash]; ok {
		return nil
	}
	p.inboxes[inbox.Hash] = inbox
	p.requestResubscribeLocked()
	return nil
}

func (p *PushEngine) RemoveInbox(inboxHash string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.inboxes[inboxHash]; !ok {
		return nil
	}
	delete(p.inboxes, inboxHash)
	p.requestResubscribeLocked()
	return nil
}

// requestResubscribeLocked drops the current connection so the run loop
// reopens it with the updated inbox set. Deliberate drops do not count
// against the reconnect budget.
func (p *PushEngine) requestResubscribeLocked() {
	if p.connCancel != nil {
		p.resubscribe = true
		p.connCancel()
	}
}

func (p *PushEngine) run(ctx context.Context) {
	defer p.wg.Done()

	attempt := 0
	var lastErr error
	for {
		if ctx.Err() != nil {
			return
		}

		hashes := p.snapshotHashes()
		if len(hashes) == 0 {
			// Nothing to subscribe to yet. Wait for AddInbox.
			if !sleepCtx(ctx, p.cfg.PushBaseDelay) {
				return
			}
			continue
		}

		connCtx, connCancel := context.WithCancel(ctx)
		p.mu.Lock()
		p.connCancel = connCancel
		p.mu.Unlock()

		resp, err := p.cfg.Gateway.OpenEventStream(connCtx, hashes)
		if err == nil {
			p.state.Store(int32(StateStreaming))
			attempt = 0
			p.fireReconnect(ctx)
			err = p.readStream(connCtx, resp)
		}
		connCancel()

		p.mu.Lock()
		p.connCancel = nil
		deliberate := p.resubscribe
		p.resubscribe = false
		p.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		if deliberate {
			// Membership changed; reconnect immediately with the new set.
			continue
		}

		lastErr = err
		attempt++
		if attempt >= p.cfg.PushMaxAttempts {
			p.exhaust(&ExhaustedError{Attempts: attempt, Err: lastErr})
			return
		}

		delay := reconnectDelay(p.cfg.PushBaseDelay, attempt)
		p.state.Store(int32(StateReconnecting))
		p.log.WithFields(logrus.Fields{
			"attempt": attempt,
			"delay":   delay,
		}).WithError(err).Warn("push channel dropped, reconnecting")
		if !sleepCtx(ctx, delay) {
			return
		}
	}
}

func (p *PushEngine) exhaust(err error) {
	p.state.Store(int32(StateExhausted))
	p.log.WithError(err).Error("push channel exhausted")
	p.mu.Lock()
	fn := p.exhaustedFn
	p.mu.Unlock()
	if fn != nil {
		go fn(err)
	}
}

func (p *PushEngine) fireReconnect(ctx context.Context) {
	p.mu.Lock()
	fns := make([]func(ctx context.Context), len(p.reconnectFn))
	copy(fns, p.reconnectFn)
	p.mu.Unlock()
	for _, fn := range fns {
		go fn(ctx)
	}
}

// readStream consumes SSE frames until the connection fails or ctx is
// cancelled. It always returns a non-nil error.
func (p *PushEngine) readStream(ctx context.Context, resp *http.Response) error {
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	eventName := ""
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			p.dispatch(ctx, eventName, data.String())
			eventName = ""
			data.Reset()
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		case strings.HasPrefix(line, ":"):
			// Comment line, used as a keepalive.
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return errors.New("delivery: event stream closed by server")
}

func (p *PushEngine) dispatch(ctx context.Context, eventName, data string) {
	if eventName != "email" || data == "" {
		return
	}
	var ev gateway.Event
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		p.log.WithError(err).Warn("dropping malformed push event")
		return
	}
	p.mu.Lock()
	h := p.handler
	_, subscribed := p.inboxes[ev.InboxHash]
	p.mu.Unlock()
	if h == nil || !subscribed {
		return
	}
	h(ctx, &ev)
}

func (p *PushEngine) snapshotHashes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	hashes := make([]string, 0, len(p.inboxes))
	for h := range p.inboxes {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)
	return hashes
}

// maxPushReconnectDelay caps the exponential reconnect backoff. Large
// attempt budgets would otherwise overflow the shift into negative
// delays that fire immediately.
const maxPushReconnectDelay = time.Minute

// reconnectDelay returns the backoff before reconnect attempt n,
// doubling the base delay per attempt up to the cap.
func reconnectDelay(base time.Duration, attempt int) time.Duration {
	for shift := 1; shift < attempt; shift++ {
		base <<= 1
		if base <= 0 || base >= maxPushReconnectDelay {
			return maxPushReconnectDelay
		}
	}
	if base > maxPushReconnectDelay {
		return maxPushReconnectDelay
	}
	return base
}

// sleepCtx sleeps for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
