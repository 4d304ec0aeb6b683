package sealbox

import (
	"sync"

	"github.com/google/uuid"
)

// Subscription is a handle for one registered callback.
type Subscription interface {
	// Unsubscribe removes the callback. Safe to call more than once.
	Unsubscribe()
}

// EmailCallback receives each newly delivered email.
type EmailCallback func(inbox *Inbox, email *Email)

// InboxMonitor fans decrypted emails from a fixed set of inboxes out to
// registered callbacks. Delivery rides the client's configured engine,
// so with push the callbacks fire as emails arrive.
type InboxMonitor struct {
	client  *Client
	inboxes []*Inbox

	mu            sync.RWMutex
	callbacks     map[string]EmailCallback // callback id -> callback
	unsubscribers []func()
	started       bool
}

type monitorSubscription struct {
	remove func()
}

func (s *monitorSubscription) Unsubscribe() { s.remove() }

func newInboxMonitor(client *Client, inboxes []*Inbox) *InboxMonitor {
	return &InboxMonitor{
		client:    client,
		inboxes:   inboxes,
		callbacks: make(map[string]EmailCallback),
	}
}

// OnEmail registers callback for every monitored inbox, starting the
// monitor on first use. The returned handle removes only this callback;
// the monitor keeps running for the others.
func (m *InboxMonitor) OnEmail(callback EmailCallback) Subscription {
	id := uuid.NewString()

	m.mu.Lock()
	m.callbacks[id] = callback
	m.mu.Unlock()

	m.start()

	return &monitorSubscription{remove: func() {
		m.mu.Lock()
		delete(m.callbacks, id)
		m.mu.Unlock()
	}}
}

// Unsubscribe tears the whole monitor down: every callback is removed
// and the per-inbox hooks are released. A later OnEmail starts it again.
func (m *InboxMonitor) Unsubscribe() {
	m.mu.Lock()
	unsubs := m.unsubscribers
	m.unsubscribers = nil
	m.callbacks = make(map[string]EmailCallback)
	m.started = false
	m.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}

// start hooks the monitor into the client's delivery stream, once.
func (m *InboxMonitor) start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	for _, inbox := range m.inboxes {
		unsub := m.client.registerEmailCallback(inbox.inboxHash, m.emit)
		m.mu.Lock()
		m.unsubscribers = append(m.unsubscribers, unsub)
		m.mu.Unlock()
	}
}

// emit fans one email out to the current callbacks. Callbacks run on
// their own goroutines so a slow consumer cannot stall delivery.
func (m *InboxMonitor) emit(inbox *Inbox, email *Email) {
	m.mu.RLock()
	callbacks := make([]EmailCallback, 0, len(m.callbacks))
	for _, cb := range m.callbacks {
		callbacks = append(callbacks, cb)
	}
	m.mu.RUnlock()

	for _, cb := range callbacks {
		go cb(inbox, email)
	}
}
