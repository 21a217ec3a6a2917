package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultDialTimeout  = 10 * time.Second
	defaultWriteTimeout = 10 * time.Second
	defaultPongTimeout  = 60 * time.Second
	defaultPingInterval = 30 * time.Second
)

// ConnOptions tunes the transport. Zero values pick the defaults above.
type ConnOptions struct {
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	PongTimeout  time.Duration
	PingInterval time.Duration
}

func (o ConnOptions) withDefaults() ConnOptions {
	if o.DialTimeout <= 0 {
		o.DialTimeout = defaultDialTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = defaultPongTimeout
	}
	if o.PingInterval <= 0 {
		o.PingInterval = defaultPingInterval
	}
	return o
}

// Conn owns one persistent websocket and its raw frame I/O. A single reader
// goroutine decodes incoming frames onto the frames channel; writes are
// serialized by a mutex. Close is safe from any state and any number of
// times, and always releases the socket.
type Conn struct {
	ws   *websocket.Conn
	opts ConnOptions

	writeMu sync.Mutex // serialises all conn writes (frames, pings, close)

	frames chan frame
	closed chan struct{}

	closeOnce sync.Once

	errMu   sync.Mutex
	readErr error
}

// Dial opens a websocket to the given target and starts the reader and
// keepalive goroutines. The returned Conn is ready for sends immediately.
func Dial(ctx context.Context, url string, opts ConnOptions) (*Conn, error) {
	opts = opts.withDefaults()

	dialer := websocket.Dialer{HandshakeTimeout: opts.DialTimeout}
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrConnectFailed, url, err)
	}

	c := &Conn{
		ws:     ws,
		opts:   opts,
		frames: make(chan frame, 16),
		closed: make(chan struct{}),
	}

	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(opts.PongTimeout))
	})
	ws.SetReadDeadline(time.Now().Add(opts.PongTimeout))

	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

// readLoop decodes incoming messages until the socket fails or closes.
// Frames that do not parse as the expected envelope are dropped with a
// diagnostic; they never tear down the connection. The frames channel is
// closed when the loop exits, which is how consumers observe disconnect.
func (c *Conn) readLoop() {
	defer close(c.frames)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.setReadErr(err)
			c.Close()
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			log.Printf("cdp: dropping malformed frame: %v", err)
			continue
		}
		if f.ID == 0 && f.Method == "" {
			log.Printf("cdp: dropping frame with neither id nor method")
			continue
		}
		c.frames <- f
	}
}

// pingLoop keeps the connection alive; the pong handler pushes the read
// deadline forward. Exits when the conn closes or a write fails.
func (c *Conn) pingLoop() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			err := c.ws.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// send marshals v and writes it as one text message. Fails fast with
// ErrClosed once the conn has been closed.
func (c *Conn) send(v any) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Close shuts the socket down. Idempotent; subsequent sends fail with
// ErrClosed. The reader observes the closed socket and closes the frames
// channel shortly after.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)

		c.writeMu.Lock()
		c.ws.SetWriteDeadline(time.Now().Add(time.Second))
		c.ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()

		c.ws.Close()
	})
	return nil
}

// Err returns the read error that ended the connection, or nil when the
// close was locally initiated.
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.readErr
}

func (c *Conn) setReadErr(err error) {
	select {
	case <-c.closed:
		// Local close; the read error is just the socket being torn down.
		return
	default:
	}
	c.errMu.Lock()
	if c.readErr == nil {
		c.readErr = err
	}
	c.errMu.Unlock()
}
