package delivery

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sealbox/client-go/internal/gateway"
)

// PollingEngine delivers events by listing each inbox on an interval. A
// cheap status probe gates the full listing: the list endpoint is only hit
// when the server-reported emails hash changes. Idle inboxes back off
// multiplicatively up to a cap; any change snaps the interval back to base.
type PollingEngine struct {
	cfg Config
	log *logrus.Entry

	mu      sync.Mutex
	pollers map[string]*inboxPoller
	handler Handler
	ctx     context.Context
	cancel  context.CancelFunc
	started bool

	wg sync.WaitGroup
}

// inboxPoller is the per-inbox polling state. Each inbox runs its own
// loop so one slow inbox cannot starve the others.
type inboxPoller struct {
	inbox    Inbox
	seen     map[string]struct{}
	lastHash string
	interval time.Duration

	// override, when set, replaces the next sleep once.
	override time.Duration

	wake   chan struct{}
	cancel context.CancelFunc
}

// NewPollingEngine returns an unstarted polling engine.
func NewPollingEngine(cfg Config) *PollingEngine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.PollMaxBackoff <= 0 {
		cfg.PollMaxBackoff = DefaultPollMaxBackoff
	}
	if cfg.PollMultiplier <= 1 {
		cfg.PollMultiplier = DefaultPollMultiplier
	}
	if cfg.PollJitter == 0 {
		cfg.PollJitter = DefaultPollJitter
	} else if cfg.PollJitter < 0 {
		cfg.PollJitter = 0
	}
	return &PollingEngine{
		cfg:     cfg,
		log:     cfg.logger().WithField("engine", "polling"),
		pollers: make(map[string]*inboxPoller),
	}
}

func (p *PollingEngine) Name() string { return "polling" }

// OnReconnect is a no-op: polling has no persistent channel to lose.
func (p *PollingEngine) OnReconnect(fn func(ctx context.Context)) {}

func (p *PollingEngine) Start(ctx context.Context, inboxes []Inbox, h Handler) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return errors.New("delivery: polling engine already started")
	}
	p.started = true
	p.handler = h
	p.ctx, p.cancel = context.WithCancel(ctx)
	for _, in := range inboxes {
		p.spawnLocked(in)
	}
	return nil
}

func (p *PollingEngine) Stop() error {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
	return nil
}

func (p *PollingEngine) AddInbox(inbox Inbox) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started || p.ctx == nil || p.ctx.Err() != nil {
		return errors.New("delivery: polling engine not running")
	}
	if _, ok := p.pollers[inbox.Hash]; ok {
		return nil
	}
	p.spawnLocked(inbox)
	return nil
}

func (p *PollingEngine) RemoveInbox(inboxHash string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	ip, ok := p.pollers[inboxHash]
	if !ok {
		return nil
	}
	delete(p.pollers, inboxHash)
	ip.cancel()
	return nil
}

// OverrideInterval makes the named inbox's next sleep use the given
// interval instead of its adaptive one, waking it if it is mid-sleep.
// Waits use this to tighten the first poll without disturbing the
// steady-state cadence.
func (p *PollingEngine) OverrideInterval(inboxHash string, interval time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ip, ok := p.pollers[inboxHash]
	if !ok || interval <= 0 {
		return
	}
	ip.override = interval
	select {
	case ip.wake <- struct{}{}:
	default:
	}
}

func (p *PollingEngine) spawnLocked(inbox Inbox) {
	ctx, cancel := context.WithCancel(p.ctx)
	ip := &inboxPoller{
		inbox:    inbox,
		seen:     make(map[string]struct{}),
		interval: p.cfg.PollInterval,
		wake:     make(chan struct{}, 1),
		cancel:   cancel,
	}
	p.pollers[inbox.Hash] = ip
	p.wg.Add(1)
	go p.loop(ctx, ip)
}

func (p *PollingEngine) loop(ctx context.Context, ip *inboxPoller) {
	defer p.wg.Done()
	for {
		p.pollOnce(ctx, ip)
		if !p.sleep(ctx, ip) {
			return
		}
	}
}

// pollOnce probes the inbox status and, on change, lists and dispatches
// the messages not yet seen in this engine's lifetime.
func (p *PollingEngine) pollOnce(ctx context.Context, ip *inboxPoller) {
	if ctx.Err() != nil {
		return
	}
	status, err := p.cfg.Gateway.GetInboxStatus(ctx, ip.inbox.Address)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.log.WithField("inbox", ip.inbox.Address).WithError(err).Warn("status poll failed")
		ip.backoff(p.cfg)
		return
	}
	if status.EmailsHash == ip.lastHash {
		ip.backoff(p.cfg)
		return
	}

	msgs, err := p.cfg.Gateway.ListMessages(ctx, ip.inbox.Address)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.log.WithField("inbox", ip.inbox.Address).WithError(err).Warn("message list failed")
		ip.backoff(p.cfg)
		return
	}
	ip.lastHash = status.EmailsHash
	ip.interval = p.cfg.PollInterval

	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()
	for i := range msgs {
		m := &msgs[i]
		if _, ok := ip.seen[m.ID]; ok {
			continue
		}
		ip.seen[m.ID] = struct{}{}
		if h != nil {
			h(ctx, &gateway.Event{
				InboxHash:  ip.inbox.Hash,
				MessageID:  m.ID,
				SealedMeta: m.SealedMeta,
			})
		}
	}
}

// sleep waits for the poller's next interval with jitter. A wake signal
// or ctx cancellation cuts it short; it reports whether the loop should
// keep running.
func (p *PollingEngine) sleep(ctx context.Context, ip *inboxPoller) bool {
	d := ip.interval
	p.mu.Lock()
	if ip.override > 0 {
		d = ip.override
		ip.override = 0
	}
	p.mu.Unlock()
	if p.cfg.PollJitter > 0 {
		d += time.Duration(rand.Float64() * p.cfg.PollJitter * float64(d))
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-ip.wake:
		return true
	case <-t.C:
		return true
	}
}

func (ip *inboxPoller) backoff(cfg Config) {
	next := time.Duration(float64(ip.interval) * cfg.PollMultiplier)
	if next > cfg.PollMaxBackoff {
		next = cfg.PollMaxBackoff
	}
	ip.interval = next
}
