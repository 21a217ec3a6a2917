package cdp

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const (
	defaultPollInterval = 100 * time.Millisecond
	defaultIdleWindow   = 500 * time.Millisecond
	defaultIdleTimeout  = 30 * time.Second
)

// WaitForEvent blocks until the next occurrence of the named event or the
// timeout, whichever comes first. The one-shot subscription is removed on
// every exit path, so a later emission never reaches a stale handler.
func (c *Client) WaitForEvent(ctx context.Context, name string, timeout time.Duration) (Event, error) {
	got := make(chan Event, 1)
	sub := c.On(name, func(ev Event) {
		select {
		case got <- ev:
		default:
		}
	})
	defer c.Off(sub)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev := <-got:
		return ev, nil
	case <-timer.C:
		return Event{}, fmt.Errorf("waiting for %s: %w", name, ErrWaitTimeout)
	case <-c.done:
		return Event{}, ErrConnectionClosed
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// Condition is an asynchronous predicate, typically a remote query. A nil
// error with ok true settles the wait with value; anything else means "not
// yet" and the poll continues.
type Condition func(ctx context.Context) (value any, ok bool, err error)

// WaitForCondition evaluates cond immediately and then on every interval
// tick until it holds or the timeout elapses. Predicate failures are
// expected (querying state that does not exist yet) and never abort the
// wait; only the deadline does, with ErrWaitTimeout.
func (c *Client) WaitForCondition(ctx context.Context, cond Condition, timeout, interval time.Duration) (any, error) {
	if interval <= 0 {
		interval = defaultPollInterval
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if value, ok, err := cond(ctx); err == nil && ok {
			return value, nil
		}

		select {
		case <-ticker.C:
		case <-deadline.C:
			return nil, fmt.Errorf("condition: %w", ErrWaitTimeout)
		case <-c.done:
			return nil, ErrConnectionClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// IdleOptions configures WaitForIdle. Start names the event that begins a
// unit of work; any event in Finish completes one. Zero durations pick the
// package defaults.
type IdleOptions struct {
	Start      string
	Finish     []string
	IdleWindow time.Duration
	Timeout    time.Duration
}

// WaitForIdle succeeds once no tracked work has been in flight for a full
// IdleWindow, and fails with ErrWaitTimeout if that never happens within
// Timeout. The in-flight counter floors at zero so finish events for work
// started before tracking began are tolerated rather than miscounted. All
// subscriptions and timers are torn down together on whichever outcome
// occurs first.
func (c *Client) WaitForIdle(ctx context.Context, opts IdleOptions) error {
	if opts.IdleWindow <= 0 {
		opts.IdleWindow = defaultIdleWindow
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultIdleTimeout
	}

	var (
		mu    sync.Mutex
		count int
	)
	kick := make(chan struct{}, 1)
	notify := func() {
		select {
		case kick <- struct{}{}:
		default:
		}
	}

	subs := []*Subscription{
		c.On(opts.Start, func(Event) {
			mu.Lock()
			count++
			mu.Unlock()
			notify()
		}),
	}
	for _, name := range opts.Finish {
		subs = append(subs, c.On(name, func(Event) {
			mu.Lock()
			if count > 0 {
				count--
			}
			mu.Unlock()
			notify()
		}))
	}
	defer func() {
		for _, s := range subs {
			c.Off(s)
		}
	}()

	// Nothing is in flight yet, so the quiet window is armed from the start.
	idle := time.NewTimer(opts.IdleWindow)
	defer idle.Stop()
	deadline := time.NewTimer(opts.Timeout)
	defer deadline.Stop()
	armed := true

	stopIdle := func() {
		if !idle.Stop() {
			select {
			case <-idle.C:
			default:
			}
		}
		armed = false
	}

	for {
		select {
		case <-kick:
			mu.Lock()
			n := count
			mu.Unlock()
			if n > 0 {
				if armed {
					stopIdle()
				}
				continue
			}
			// Back to zero: restart the quiet window. Restarting on every
			// zero-count kick (not just transitions) keeps a coalesced
			// start+finish burst from leaving a stale window running.
			stopIdle()
			idle.Reset(opts.IdleWindow)
			armed = true
		case <-idle.C:
			return nil
		case <-deadline.C:
			return fmt.Errorf("idle: %w", ErrWaitTimeout)
		case <-c.done:
			return ErrConnectionClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Network lifecycle event names used by WaitForNetworkIdle. These are the
// only event names this package knows about, and only as a convenience.
const (
	eventRequestWillBeSent = "Network.requestWillBeSent"
	eventLoadingFinished   = "Network.loadingFinished"
	eventLoadingFailed     = "Network.loadingFailed"
)

// WaitForNetworkIdle waits until no network request has been in flight for
// idleWindow, bounded by timeout.
func (c *Client) WaitForNetworkIdle(ctx context.Context, idleWindow, timeout time.Duration) error {
	return c.WaitForIdle(ctx, IdleOptions{
		Start:      eventRequestWillBeSent,
		Finish:     []string{eventLoadingFinished, eventLoadingFailed},
		IdleWindow: idleWindow,
		Timeout:    timeout,
	})
}
