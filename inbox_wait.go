package sealbox

import (
	"context"
	"errors"
	"fmt"
)

// Watch returns a channel that receives emails as they arrive.
// The channel is not closed when the context is cancelled; use a select
// on ctx.Done() to detect cancellation.
//
// Example:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
//	defer cancel()
//
//	ch := inbox.Watch(ctx)
//	for {
//	    select {
//	    case <-ctx.Done():
//	        return
//	    case email := <-ch:
//	        fmt.Printf("New email: %s\n", email.Subject)
//	    }
//	}
func (i *Inbox) Watch(ctx context.Context) <-chan *Email {
	ch := make(chan *Email, 16)

	// Subscribe with handler that sends to channel. Watch only carries
	// fully decrypted emails; failures are visible to waits, not here.
	unsubscribe := i.client.subs.subscribe(i.inboxHash, func(email *Email, err error) {
		if err != nil || email == nil {
			return
		}
		select {
		case ch <- email:
		default:
			// Buffer full, drop
		}
	})

	// Cleanup goroutine: unsubscribe when context is cancelled.
	// We intentionally do not close(ch) to avoid a race where an
	// in-flight handler tries to send after close.
	go func() {
		<-ctx.Done()
		unsubscribe()
	}()

	return ch
}

// WatchFunc calls fn for each email as they arrive until the context is cancelled.
// This is a convenience wrapper around Watch for simpler use cases.
//
// Example:
//
//	inbox.WatchFunc(ctx, func(email *sealbox.Email) {
//	    fmt.Printf("New email: %s\n", email.Subject)
//	})
func (i *Inbox) WatchFunc(ctx context.Context, fn func(*Email)) {
	emails := i.Watch(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case email := <-emails:
			if email != nil {
				fn(email)
			}
		}
	}
}

// watchEvent pairs a delivered email with a processing error. See
// emailHandler for the combinations.
type watchEvent struct {
	email *Email
	err   error
}

// subscribeEvents registers a wait-style subscription that also surfaces
// processing errors. Delivery is guaranteed: sends that would block are
// spawned so the event source is never held up.
func (i *Inbox) subscribeEvents(ctx context.Context, ch chan watchEvent) func() {
	return i.client.subs.subscribe(i.inboxHash, func(email *Email, err error) {
		ev := watchEvent{email: email, err: err}
		select {
		case ch <- ev:
		default:
			go func() {
				select {
				case ch <- ev:
				case <-ctx.Done():
				}
			}()
		}
	})
}

// WaitForEmail waits for an email matching the given criteria. With push
// delivery the match is instant; with polling it lands on the next poll.
//
// On expiry of the wait timeout it returns a *WaitTimeoutError. If the
// caller's context ends first, that context error is returned instead.
//
// A signature or server-key failure on any email in the inbox aborts the
// wait immediately, whether or not that email matches. An email that
// fails to decrypt for other reasons aborts the wait only if its
// decrypted metadata matches the criteria; otherwise it is skipped.
func (i *Inbox) WaitForEmail(ctx context.Context, opts ...WaitOption) (*Email, error) {
	cfg := &waitConfig{
		timeout: defaultWaitTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	// 1. Subscribe FIRST so an email arriving between the snapshot and
	// the watch loop is not lost.
	events := make(chan watchEvent, 16)
	unsubscribe := i.subscribeEvents(ctx, events)
	defer unsubscribe()

	if cfg.pollInterval > 0 {
		i.client.overridePollInterval(i.inboxHash, cfg.pollInterval)
	}

	// 2. Check existing emails (handles already-arrived case)
	existing, err := i.GetEmails(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range existing {
		if cfg.Matches(e) {
			return e, nil
		}
	}

	// 3. Watch for new emails
	for {
		select {
		case <-ctx.Done():
			if parent.Err() != nil {
				return nil, parent.Err()
			}
			return nil, &WaitTimeoutError{Timeout: cfg.timeout}
		case ev := <-events:
			email, err := i.screenEvent(ev, cfg)
			if err != nil {
				return nil, err
			}
			if email != nil {
				return email, nil
			}
		}
	}
}

// screenEvent applies the wait error policy to one event. It returns the
// email when it matches, an error when the wait must abort, and neither
// when the event is skipped.
func (i *Inbox) screenEvent(ev watchEvent, cfg *waitConfig) (*Email, error) {
	if ev.err != nil {
		if isSecurityError(ev.err) || errors.Is(ev.err, ErrPushChannel) {
			return nil, ev.err
		}
		// A decrypt failure only matters if its metadata says the email
		// is the one being waited for.
		if ev.email != nil && cfg.Matches(ev.email) {
			return nil, ev.err
		}
		i.client.log.WithError(ev.err).Debug("skipping undecryptable email during wait")
		return nil, nil
	}
	if ev.email != nil && cfg.Matches(ev.email) {
		return ev.email, nil
	}
	return nil, nil
}

// WaitForEmailCount waits until at least count matching emails are found
// and returns the first count of them.
func (i *Inbox) WaitForEmailCount(ctx context.Context, count int, opts ...WaitOption) ([]*Email, error) {
	if count < 0 {
		return nil, fmt.Errorf("count must be non-negative, got %d", count)
	}
	if count == 0 {
		return []*Email{}, nil
	}

	cfg := &waitConfig{
		timeout: defaultWaitTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	// Track seen email IDs to avoid counting an email twice when it is
	// delivered both by the snapshot and by an event.
	seen := make(map[string]struct{})
	var results []*Email

	addIfNew := func(e *Email) {
		if _, ok := seen[e.ID]; ok {
			return
		}
		if cfg.Matches(e) {
			seen[e.ID] = struct{}{}
			results = append(results, e)
		}
	}

	// 1. Subscribe FIRST so an email arriving between the snapshot and
	// the watch loop is not lost.
	events := make(chan watchEvent, 16)
	unsubscribe := i.subscribeEvents(ctx, events)
	defer unsubscribe()

	if cfg.pollInterval > 0 {
		i.client.overridePollInterval(i.inboxHash, cfg.pollInterval)
	}

	// 2. Check existing emails (handles already-arrived case)
	existing, err := i.GetEmails(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range existing {
		addIfNew(e)
		if len(results) >= count {
			return results[:count], nil
		}
	}

	// 3. Watch for new emails
	for {
		select {
		case <-ctx.Done():
			if parent.Err() != nil {
				return nil, parent.Err()
			}
			return nil, &WaitTimeoutError{Timeout: cfg.timeout}
		case ev := <-events:
			email, err := i.screenEvent(ev, cfg)
			if err != nil {
				return nil, err
			}
			if email != nil {
				addIfNew(email)
				if len(results) >= count {
					return results[:count], nil
				}
			}
		}
	}
}
