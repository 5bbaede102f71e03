// Package okx implements the streaming L2 orderbook client for the OKX v5
// public websocket feed. The connection lifecycle is an explicit state
// machine so reconnection policy is testable without a live socket.
package okx

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/costsim/internal/domain"
)

const (
	// DefaultPingInterval is how often the keep-alive ping is sent.
	DefaultPingInterval = 15 * time.Second

	// DefaultReconnectDelay is the fixed delay between reconnect attempts.
	DefaultReconnectDelay = 3 * time.Second

	// DefaultMaxReconnectAttempts bounds consecutive failed reconnects
	// before the feed gives up permanently.
	DefaultMaxReconnectAttempts = 10

	opSubscribe = "subscribe"
	opPing      = "ping"
	eventPong   = "pong"

	exchangeName = "OKX"
)

// State is the connection lifecycle state of a Feed.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is emitted on every state transition. Err is set only when the feed
// has entered the terminal failed state; transient disconnects surface as
// Connected=false while retries remain.
type Status struct {
	State     State
	Connected bool
	Err       string
}

// Subscription identifies one channel+instrument pair on the public feed.
type Subscription struct {
	Channel    string
	Instrument string
}

// Handlers are the Feed's output callbacks. Both are invoked from the feed's
// internal goroutines and must not block for long.
type Handlers struct {
	OnSnapshot func(domain.OrderbookSnapshot)
	OnStatus   func(Status)
}

// Options tune the connection policy. Zero values fall back to the package
// defaults; tests inject a fake Dialer and short intervals.
type Options struct {
	Dialer               Dialer
	PingInterval         time.Duration
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
}

// session is one established transport. Each successful dial produces a new
// session so callbacks from a dead connection can be recognized and dropped.
type session struct {
	transport Transport
	done      chan struct{}
	stop      sync.Once
}

func (s *session) close() {
	s.stop.Do(func() {
		close(s.done)
		_ = s.transport.Close()
	})
}

// Feed maintains one logical subscription to the OKX public websocket. It
// normalizes book payloads into domain snapshots, sends keep-alive pings,
// and self-heals with a fixed-delay, bounded-attempt reconnect policy.
type Feed struct {
	url      string
	sub      Subscription
	handlers Handlers
	logger   *slog.Logger

	dialer         Dialer
	pingInterval   time.Duration
	reconnectDelay time.Duration
	maxAttempts    int

	mu             sync.Mutex
	state          State
	attempts       int
	// gen tags the current Connect lifecycle. Connect and Disconnect both
	// advance it, so a dial completing after either belongs to a dead
	// generation and its transport is discarded.
	gen            uint64
	session        *session
	reconnectTimer *time.Timer
	closed         bool
}

// NewFeed creates a feed for the given endpoint and subscription. The feed is
// idle until Connect is called.
func NewFeed(url string, sub Subscription, handlers Handlers, opts Options, logger *slog.Logger) *Feed {
	dialer := opts.Dialer
	if dialer == nil {
		dialer = NewDialer()
	}
	pingInterval := opts.PingInterval
	if pingInterval <= 0 {
		pingInterval = DefaultPingInterval
	}
	reconnectDelay := opts.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = DefaultReconnectDelay
	}
	maxAttempts := opts.MaxReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxReconnectAttempts
	}

	return &Feed{
		url:            url,
		sub:            sub,
		handlers:       handlers,
		logger:         logger.With(slog.String("component", "okx_feed")),
		dialer:         dialer,
		pingInterval:   pingInterval,
		reconnectDelay: reconnectDelay,
		maxAttempts:    maxAttempts,
		state:          StateIdle,
	}
}

// State returns the current lifecycle state.
func (f *Feed) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Connect begins the connection lifecycle. It never returns an error
// synchronously; failures surface through the status callback. Calling
// Connect in any state other than idle is a no-op.
func (f *Feed) Connect() {
	f.mu.Lock()
	if f.state != StateIdle {
		f.mu.Unlock()
		return
	}
	f.closed = false
	f.attempts = 0
	f.gen++
	gen := f.gen
	st := f.setState(StateConnecting, "")
	f.mu.Unlock()

	f.emit(st)
	go f.dial(gen)
}

// Disconnect tears down the connection, cancels any pending reconnect, and
// moves the feed to idle. It is idempotent, and no callback originating
// before teardown can mutate state afterward.
func (f *Feed) Disconnect() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.gen++
	if f.reconnectTimer != nil {
		f.reconnectTimer.Stop()
		f.reconnectTimer = nil
	}
	s := f.session
	f.session = nil
	st := f.setState(StateIdle, "")
	f.mu.Unlock()

	if s != nil {
		s.close()
	}
	f.emit(st)
}

// dial attempts one handshake and, on success, opens a fresh session. A dial
// outliving its lifecycle (Disconnect, or Disconnect then Connect, while the
// handshake was in flight) must not touch the current session.
func (f *Feed) dial(gen uint64) {
	transport, err := f.dialer.Dial(context.Background(), f.url)

	f.mu.Lock()
	if f.closed || f.gen != gen {
		f.mu.Unlock()
		if err == nil {
			_ = transport.Close()
		}
		return
	}
	if err != nil {
		f.logger.Warn("connect failed",
			slog.String("url", f.url),
			slog.String("error", err.Error()),
		)
		st := f.scheduleReconnectLocked()
		f.mu.Unlock()
		f.emit(st)
		return
	}

	s := &session{transport: transport, done: make(chan struct{})}
	f.session = s
	f.attempts = 0
	st := f.setState(StateOpen, "")
	f.mu.Unlock()

	f.logger.Info("connected",
		slog.String("channel", f.sub.Channel),
		slog.String("instrument", f.sub.Instrument),
	)
	f.emit(st)

	subReq := request{
		Op:   opSubscribe,
		Args: []subscribeArg{{Channel: f.sub.Channel, InstID: f.sub.Instrument}},
	}
	if err := transport.WriteJSON(subReq); err != nil {
		f.logger.Warn("subscribe failed", slog.String("error", err.Error()))
		f.sessionClosed(s)
		return
	}

	go f.readLoop(s)
	go f.pingLoop(s)
}

// readLoop consumes inbound messages until the session dies.
func (f *Feed) readLoop(s *session) {
	for {
		data, err := s.transport.ReadMessage()
		if err != nil {
			f.sessionClosed(s)
			return
		}
		f.handleMessage(s, data)
	}
}

// pingLoop sends the application-level keep-alive at a fixed interval.
func (f *Feed) pingLoop(s *session) {
	ticker := time.NewTicker(f.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.transport.WriteJSON(request{Op: opPing}); err != nil {
				f.sessionClosed(s)
				return
			}
		}
	}
}

// handleMessage normalizes one inbound payload. Keep-alive acks and
// subscription acks are discarded; parse failures are logged and dropped
// without affecting connection state.
func (f *Feed) handleMessage(s *session, raw []byte) {
	var msg envelope
	if err := json.Unmarshal(raw, &msg); err != nil {
		f.logger.Debug("dropping malformed payload",
			slog.Int("payload_len", len(raw)),
			slog.String("error", err.Error()),
		)
		return
	}
	if msg.Event == eventPong {
		return
	}
	if len(msg.Data) == 0 {
		return
	}

	snap := domain.OrderbookSnapshot{
		Timestamp: time.Now(),
		Exchange:  exchangeName,
		Symbol:    f.sub.Instrument,
		Asks:      levelsFromPairs(msg.Data[0].Asks),
		Bids:      levelsFromPairs(msg.Data[0].Bids),
	}

	// A message read just before teardown or from a superseded session must
	// not reach the consumer.
	f.mu.Lock()
	stale := f.closed || f.session != s
	f.mu.Unlock()
	if stale {
		return
	}

	if f.handlers.OnSnapshot != nil {
		f.handlers.OnSnapshot(snap)
	}
}

// sessionClosed handles any disconnect of the given session: error, remote
// close, or a failed write. Only the first caller for the current session
// advances the state machine.
func (f *Feed) sessionClosed(s *session) {
	s.close()

	f.mu.Lock()
	if f.closed || f.session != s {
		f.mu.Unlock()
		return
	}
	f.session = nil
	st := f.scheduleReconnectLocked()
	f.mu.Unlock()

	f.logger.Warn("disconnected",
		slog.String("state", st.State.String()),
		slog.Int("attempts", f.attemptCount()),
	)
	f.emit(st)
}

// scheduleReconnectLocked either arms the reconnect timer or, once attempts
// are exhausted, moves the feed to the terminal failed state. Caller holds mu.
func (f *Feed) scheduleReconnectLocked() Status {
	if f.attempts >= f.maxAttempts {
		return f.setState(StateFailed,
			fmt.Sprintf("connection failed after %d reconnect attempts: %v",
				f.maxAttempts, domain.ErrReconnectExhausted))
	}
	f.attempts++
	f.reconnectTimer = time.AfterFunc(f.reconnectDelay, f.retry)
	return f.setState(StateReconnecting, "")
}

// retry fires from the reconnect timer.
func (f *Feed) retry() {
	f.mu.Lock()
	if f.closed || f.state != StateReconnecting {
		f.mu.Unlock()
		return
	}
	gen := f.gen
	st := f.setState(StateConnecting, "")
	f.mu.Unlock()

	f.emit(st)
	f.dial(gen)
}

// setState records the new state and builds the status to emit. Caller holds mu.
func (f *Feed) setState(state State, errMsg string) Status {
	f.state = state
	return Status{
		State:     state,
		Connected: state == StateOpen,
		Err:       errMsg,
	}
}

func (f *Feed) emit(st Status) {
	if f.handlers.OnStatus != nil {
		f.handlers.OnStatus(st)
	}
}

func (f *Feed) attemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}
