package cdp

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
)

// Client correlates commands with responses and fans events out to
// subscribers over one Conn. All frames are routed by a single dispatch
// goroutine in the order the transport delivered them; the pending table
// and subscriber registry are owned here and mutated only under the client
// mutex.
type Client struct {
	conn   *Conn
	nextID atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]*pendingCall
	subs    map[string][]*Subscription
	session string
	down    bool

	done chan struct{} // closed once teardown has settled everything
}

type pendingCall struct {
	ch chan callResult // buffered; settled at most once
}

type callResult struct {
	result json.RawMessage
	err    error
}

// Subscription is the handle returned by On. Go functions are not
// comparable, so the handle stands in for callback identity when
// unsubscribing.
type Subscription struct {
	name    string
	handler func(Event)
}

// Connect dials the target and returns a running client.
func Connect(ctx context.Context, url string, opts ConnOptions) (*Client, error) {
	conn, err := Dial(ctx, url, opts)
	if err != nil {
		return nil, err
	}
	return NewClient(conn), nil
}

// NewClient wraps an established Conn and starts the dispatch loop.
func NewClient(conn *Conn) *Client {
	c := &Client{
		conn:    conn,
		pending: make(map[uint64]*pendingCall),
		subs:    make(map[string][]*Subscription),
		done:    make(chan struct{}),
	}
	go c.dispatchLoop()
	return c
}

// dispatchLoop is the single consumer of incoming frames. A frame with an
// id settles a pending command; a frame with a method is an event. When the
// frames channel closes (socket gone), every outstanding command and wait
// is force-failed.
func (c *Client) dispatchLoop() {
	for f := range c.conn.frames {
		if f.ID != 0 {
			c.settle(f)
			continue
		}
		c.deliver(Event{Method: f.Method, Params: f.Params, SessionID: f.SessionID})
	}
	c.teardown()
}

func (c *Client) settle(f frame) {
	c.mu.Lock()
	call, ok := c.pending[f.ID]
	if ok {
		delete(c.pending, f.ID)
	}
	c.mu.Unlock()

	if !ok {
		// Unknown or already-settled id: protocol violation, drop it.
		log.Printf("cdp: dropping response for unknown id %d", f.ID)
		return
	}
	if f.Error != nil {
		call.ch <- callResult{err: &RemoteError{Code: f.Error.Code, Message: f.Error.Message}}
		return
	}
	call.ch <- callResult{result: f.Result}
}

// deliver fans an event out to every subscriber for its method name, in
// registration order. A panicking handler is isolated so the rest of the
// fan-out still runs.
func (c *Client) deliver(ev Event) {
	c.mu.Lock()
	subs := append([]*Subscription(nil), c.subs[ev.Method]...)
	c.mu.Unlock()

	for _, s := range subs {
		c.invoke(s, ev)
	}
}

func (c *Client) invoke(s *Subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("cdp: %s handler panicked: %v", s.name, r)
		}
	}()
	s.handler(ev)
}

func (c *Client) teardown() {
	c.mu.Lock()
	c.down = true
	pending := c.pending
	c.pending = make(map[uint64]*pendingCall)
	c.subs = make(map[string][]*Subscription)
	c.mu.Unlock()

	for _, call := range pending {
		call.ch <- callResult{err: ErrConnectionClosed}
	}
	if n := len(pending); n > 0 {
		log.Printf("cdp: connection closed with %d commands in flight", n)
	}
	close(c.done)
}

// Call sends a command stamped with the ambient session (if any) and blocks
// until the matching response frame arrives. The result payload is returned
// verbatim. Errors distinguish the peer rejecting this command
// (*RemoteError), the connection dying (ErrConnectionClosed), and the
// caller's context expiring.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	return c.call(ctx, c.Session(), method, params)
}

// CallOn is Call with an explicit session id overriding the ambient one for
// this single command. An empty id sends the command unscoped.
func (c *Client) CallOn(ctx context.Context, sessionID, method string, params any) (json.RawMessage, error) {
	return c.call(ctx, sessionID, method, params)
}

func (c *Client) call(ctx context.Context, sessionID, method string, params any) (json.RawMessage, error) {
	id := c.nextID.Add(1)
	call := &pendingCall{ch: make(chan callResult, 1)}

	c.mu.Lock()
	if c.down {
		c.mu.Unlock()
		return nil, ErrConnectionClosed
	}
	c.pending[id] = call
	c.mu.Unlock()

	req := request{ID: id, Method: method, Params: params, SessionID: sessionID}
	if err := c.conn.send(req); err != nil {
		c.forget(id)
		return nil, err
	}

	select {
	case res := <-call.ch:
		return res.result, res.err
	case <-c.done:
		return nil, ErrConnectionClosed
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	}
}

func (c *Client) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// On registers handler for the named event. Each call registers an
// independent subscriber; handlers for one name run in registration order.
func (c *Client) On(name string, handler func(Event)) *Subscription {
	s := &Subscription{name: name, handler: handler}
	c.mu.Lock()
	c.subs[name] = append(c.subs[name], s)
	c.mu.Unlock()
	return s
}

// Off removes exactly the given subscription. Removing one that is nil,
// already removed, or never registered is a no-op.
func (c *Client) Off(sub *Subscription) {
	if sub == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.subs[sub.name]
	for i, s := range list {
		if s == sub {
			c.subs[sub.name] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(c.subs[sub.name]) == 0 {
		delete(c.subs, sub.name)
	}
}

// UseSession sets the ambient session id stamped on future Calls.
func (c *Client) UseSession(id string) {
	c.mu.Lock()
	c.session = id
	c.mu.Unlock()
}

// ClearSession drops the ambient session id.
func (c *Client) ClearSession() {
	c.mu.Lock()
	c.session = ""
	c.mu.Unlock()
}

// Session returns the current ambient session id, or "" when unset.
func (c *Client) Session() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Done is closed once the connection is gone and all outstanding work has
// been settled.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns the transport error that ended the connection, or nil for a
// locally initiated close.
func (c *Client) Err() error { return c.conn.Err() }

// Close tears down the connection and blocks until every outstanding
// command and wait has settled with ErrConnectionClosed.
func (c *Client) Close() error {
	c.conn.Close()
	<-c.done
	return nil
}
