// Package scanner drives the real-time scanning workflows: one session owns
// one camera capture and one websocket connection to the detection service,
// streams frames at the workflow cadence, and interprets inbound protocol
// messages to mutate workflow state.
package scanner

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"warescan/internal/camera"
	"warescan/internal/config"
	"warescan/internal/logger"
	"warescan/internal/protocol"
	"warescan/internal/wsclient"
)

// SessionState tracks one run of a scanning workflow.
type SessionState int

const (
	StateIdle SessionState = iota
	StateStarting
	StateActive
	StateStopping
	StateFailed
	StateSubmitted
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateStopping:
		return "stopping"
	case StateFailed:
		return "failed"
	case StateSubmitted:
		return "submitted"
	}
	return "unknown"
}

// connection is the slice of the websocket client a session uses.
type connection interface {
	Send(v interface{}) error
	Close()
}

// frameSource is the slice of the camera capture a session uses.
type frameSource interface {
	Frame() (string, bool)
	Close()
}

// variant supplies the workflow-specific pieces: endpoint, init message,
// frame cadence, and inbound message handling. Handlers run with the
// session mutex held.
type variant interface {
	endpoint() string
	initMessage() interface{}
	frameInterval() time.Duration
	handle(kind string, raw json.RawMessage)
	reset()
}

// Session is the workflow-independent core shared by the catalog, cart
// builder and fulfillment sessions. Message arrival and frame ticks are
// serialized on one mutex, so within a session nothing runs concurrently
// with anything else.
type Session struct {
	id      string
	cfg     *config.Config
	log     *logger.Logger
	variant variant

	dial    func(url string, cb wsclient.Callbacks) (connection, error)
	acquire func() (frameSource, error)

	mu     sync.Mutex
	state  SessionState
	conn   connection
	source frameSource
	// active is the shared liveness cell consulted by every frame tick.
	// Stop clears it before releasing anything, so a tick scheduled
	// before the stop can never fire against a released device.
	active  atomic.Bool
	notice  string
	failure error
}

func newSession(cfg *config.Config, log *logger.Logger, v variant) *Session {
	s := &Session{
		id:      uuid.NewString(),
		cfg:     cfg,
		log:     log,
		variant: v,
	}
	s.dial = s.defaultDial
	s.acquire = s.defaultAcquire
	return s
}

func (s *Session) defaultDial(url string, cb wsclient.Callbacks) (connection, error) {
	opts := wsclient.Options{
		MaxRetries:       s.cfg.ReconnectAttempts,
		RetryDelay:       time.Duration(s.cfg.ReconnectDelay) * time.Millisecond,
		HandshakeTimeout: time.Duration(s.cfg.HandshakeTimeout) * time.Millisecond,
	}
	c, err := wsclient.Dial(url, s.cfg.Token, opts, s.log, cb)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Session) defaultAcquire() (frameSource, error) {
	c, err := camera.Acquire(s.cfg.CameraDevice, s.cfg.FrameWidth, s.cfg.FrameHeight, s.cfg.JPEGQuality)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Start acquires the camera, opens the connection, sends the workflow init
// message and begins the frame loop. Only an idle session may start; a
// session still stopping is rejected rather than interleaved.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("cannot start: session is %s", state)
	}
	s.state = StateStarting
	s.mu.Unlock()

	source, err := s.acquire()
	if err != nil {
		s.abortStart(nil, nil, err)
		return err
	}

	conn, err := s.dial(s.variant.endpoint(), wsclient.Callbacks{
		OnMessage:   s.handleMessage,
		OnReconnect: s.handleReconnect,
		OnFailure:   s.connectionFailed,
	})
	if err != nil {
		s.abortStart(source, nil, err)
		return err
	}

	s.mu.Lock()
	if s.state == StateStopping {
		// Stop arrived while the start was in flight; unwind.
		s.mu.Unlock()
		conn.Close()
		source.Close()
		s.mu.Lock()
		s.state = StateIdle
		s.mu.Unlock()
		s.log.Info("Session %s: start aborted by stop", s.id)
		return nil
	}

	s.conn = conn
	s.source = source
	conn.Send(s.variant.initMessage())
	s.state = StateActive
	s.active.Store(true)
	interval := s.variant.frameInterval()
	s.mu.Unlock()

	go s.frameLoop(interval)
	s.log.Info("Session %s active", s.id)
	return nil
}

// abortStart releases whatever was partially acquired and records the failure.
func (s *Session) abortStart(source frameSource, conn connection, err error) {
	if conn != nil {
		conn.Close()
	}
	if source != nil {
		source.Close()
	}
	s.mu.Lock()
	if s.state == StateStopping {
		s.state = StateIdle
	} else {
		s.state = StateFailed
		s.failure = err
	}
	s.mu.Unlock()
	s.log.Error("Session %s failed to start: %v", s.id, err)
}

// Stop cancels the frame loop, closes the connection cleanly, releases the
// camera and clears transient detection state. Calling it twice, or in any
// state with nothing to release, is a no-op.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateStarting:
		// The in-flight start observes this and unwinds on resolution.
		s.state = StateStopping
	case StateActive:
		s.state = StateStopping
		s.active.Store(false)
		s.conn.Close()
		s.conn = nil
		s.source.Close()
		s.source = nil
		s.variant.reset()
		s.notice = ""
		s.state = StateIdle
		s.log.Info("Session %s stopped", s.id)
	}
}

// frameLoop forwards a frame per tick while the session stays active. The
// liveness flag is re-read on every tick, never captured at scheduling time.
func (s *Session) frameLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		if !s.active.Load() {
			return
		}
		s.tick()
	}
}

func (s *Session) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return
	}
	frame, ok := s.source.Frame()
	if !ok {
		return
	}
	s.conn.Send(protocol.NewFrame(frame))
}

// handleMessage dispatches one inbound message. Unknown kinds are ignored;
// an error-kind message becomes a transient notice and the session stays
// active.
func (s *Session) handleMessage(env protocol.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive && s.state != StateStarting {
		return
	}

	switch env.Type {
	case protocol.KindError:
		var p protocol.ErrorPayload
		if err := json.Unmarshal(env.Raw, &p); err != nil {
			s.log.Warning("Session %s: discarding error payload: %v", s.id, err)
			return
		}
		s.notice = p.Message
		s.log.Warning("Session %s: service error: %s", s.id, p.Message)
	default:
		s.variant.handle(env.Type, env.Raw)
	}
}

// handleReconnect re-announces the workflow after an automatic reconnect.
// All cart/item state is whatever the server supplies next; nothing is
// assumed to survive the drop.
func (s *Session) handleReconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return
	}
	s.conn.Send(s.variant.initMessage())
	s.log.Info("Session %s resumed after reconnect", s.id)
}

// connectionFailed is the terminal notification after the reconnect budget
// is exhausted.
func (s *Session) connectionFailed(err error) {
	s.mu.Lock()
	if s.state != StateActive && s.state != StateStarting {
		s.mu.Unlock()
		return
	}
	s.active.Store(false)
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	if s.source != nil {
		s.source.Close()
		s.source = nil
	}
	s.variant.reset()
	s.failure = err
	s.state = StateFailed
	s.mu.Unlock()

	s.log.Error("Session %s: connection failed permanently: %v", s.id, err)
}

// finishLocked moves an active session to its Submitted terminal state,
// releasing both resources. Caller holds the mutex.
func (s *Session) finishLocked() {
	s.active.Store(false)
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	if s.source != nil {
		s.source.Close()
		s.source = nil
	}
	s.state = StateSubmitted
}

// sendLocked transmits a command if the connection exists. Caller holds
// the mutex.
func (s *Session) sendLocked(v interface{}) {
	if s.conn == nil {
		return
	}
	s.conn.Send(v)
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Notice returns the last non-fatal service error, if any.
func (s *Session) Notice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notice
}

// Err returns the terminal failure once the session is Failed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}
