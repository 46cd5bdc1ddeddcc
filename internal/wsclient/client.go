// Package wsclient manages one bidirectional websocket connection to the
// detection service: credential handshake, JSON framing, and automatic
// reconnection after unexpected drops.
package wsclient

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"warescan/internal/logger"
	"warescan/internal/protocol"
)

// State is the lifecycle state of a connection.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// ConnectionError indicates the transport rejected the handshake or timed out.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s failed: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Callbacks are invoked from the read loop, one at a time.
type Callbacks struct {
	// OnMessage receives each inbound message, already decoded. Malformed
	// payloads are logged and discarded before reaching it.
	OnMessage func(protocol.Envelope)
	// OnReconnect fires after an automatic reconnect succeeds.
	OnReconnect func()
	// OnFailure fires once when the retry budget is exhausted. Terminal.
	OnFailure func(error)
}

// Options tune the reconnection policy. Zero values take the defaults
// (5 retries, 2 s apart, 10 s handshake budget).
type Options struct {
	MaxRetries       int
	RetryDelay       time.Duration
	HandshakeTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxRetries == 0 {
		o.MaxRetries = 5
	}
	if o.RetryDelay == 0 {
		o.RetryDelay = 2 * time.Second
	}
	if o.HandshakeTimeout == 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	return o
}

// Client is one logical session to the detection service. It is owned by a
// single scanning session; Close suppresses any further reconnection.
type Client struct {
	url   string
	token string
	opts  Options
	log   *logger.Logger
	cb    Callbacks

	mu       sync.Mutex
	conn     *websocket.Conn
	state    State
	closed   bool // local side requested closure
	attempts int  // reconnect attempts since the last successful open

	writeMu sync.Mutex
}

// Dial establishes the transport with the credential embedded in the
// handshake and starts the read loop. It returns only once the transport
// reports ready.
func Dial(rawURL, token string, opts Options, log *logger.Logger, cb Callbacks) (*Client, error) {
	c := &Client{
		url:   rawURL,
		token: token,
		opts:  opts.withDefaults(),
		log:   log,
		cb:    cb,
	}

	if err := c.connect(); err != nil {
		c.setState(StateClosed)
		return nil, &ConnectionError{URL: rawURL, Err: err}
	}

	go c.readLoop()
	return c, nil
}

// connect dials the endpoint and swaps in the new transport.
func (c *Client) connect() error {
	c.setState(StateConnecting)

	dialer := websocket.Dialer{HandshakeTimeout: c.opts.HandshakeTimeout}
	conn, resp, err := dialer.Dial(c.url+"?token="+url.QueryEscape(c.token), nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("%w (status %s)", err, resp.Status)
		}
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.state = StateOpen
	c.attempts = 0
	c.mu.Unlock()
	return nil
}

// Send serializes the message and transmits it. If the connection is not
// open the message is dropped with a warning: frames are perishable, and a
// dropped frame beats a buffered stale one.
func (c *Client) Send(v interface{}) error {
	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()

	if state != StateOpen || conn == nil {
		c.log.Warning("Send dropped: connection is %s", state)
		return nil
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteJSON(v); err != nil {
		// The read loop observes the broken transport and drives recovery.
		c.log.Warning("Write failed: %v", err)
		return err
	}
	return nil
}

// Close initiates a clean shutdown. No reconnection follows a local close.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		conn.Close()
	}
	c.setState(StateClosed)
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// readLoop delivers inbound messages in transport order and drives the
// reconnection policy when the transport drops unexpectedly.
func (c *Client) readLoop() {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		_, raw, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			if c.isClosed() {
				// Clean, locally-requested close.
				c.setState(StateClosed)
				return
			}

			c.log.Warning("Connection dropped: %v", err)
			if !c.reconnect() {
				c.setState(StateClosed)
				c.log.Error("Reconnection exhausted after %d attempts", c.opts.MaxRetries)
				if c.cb.OnFailure != nil {
					c.cb.OnFailure(err)
				}
				return
			}
			if c.cb.OnReconnect != nil {
				c.cb.OnReconnect()
			}
			continue
		}

		env, err := protocol.Decode(raw)
		if err != nil {
			c.log.Warning("Discarding malformed message: %v", err)
			continue
		}
		if c.cb.OnMessage != nil {
			c.cb.OnMessage(env)
		}
	}
}

// reconnect retries the same endpoint and credential up to the budget,
// with a fixed delay between attempts.
func (c *Client) reconnect() bool {
	for attempt := 1; attempt <= c.opts.MaxRetries; attempt++ {
		time.Sleep(c.opts.RetryDelay)
		if c.isClosed() {
			return false
		}

		c.mu.Lock()
		c.attempts = attempt
		c.mu.Unlock()

		c.log.Info("Reconnecting (%d/%d)...", attempt, c.opts.MaxRetries)
		if err := c.connect(); err != nil {
			c.log.Warning("Reconnect attempt %d/%d failed: %v", attempt, c.opts.MaxRetries, err)
			continue
		}

		if c.isClosed() {
			// Close raced the redial; honor it.
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()
			if conn != nil {
				conn.Close()
			}
			return false
		}

		c.log.Info("Reconnected")
		return true
	}
	return false
}
