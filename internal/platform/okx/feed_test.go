package okx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/costsim/internal/domain"
)

// fakeTransport feeds scripted inbound messages to the read loop and records
// every outbound write.
type fakeTransport struct {
	mu     sync.Mutex
	writes []string
	inbox  chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbox:  make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (t *fakeTransport) ReadMessage() ([]byte, error) {
	select {
	case msg := <-t.inbox:
		return msg, nil
	case <-t.closed:
		return nil, io.EOF
	}
}

func (t *fakeTransport) WriteJSON(v any) error {
	select {
	case <-t.closed:
		return errors.New("transport closed")
	default:
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.writes = append(t.writes, string(data))
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) Close() error {
	t.once.Do(func() { close(t.closed) })
	return nil
}

func (t *fakeTransport) isClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

func (t *fakeTransport) push(msg string) {
	t.inbox <- []byte(msg)
}

func (t *fakeTransport) written() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.writes))
	copy(out, t.writes)
	return out
}

// fakeDialer hands out scripted dial results in order. A nil transport in the
// script means that dial attempt fails.
type fakeDialer struct {
	mu     sync.Mutex
	script []*fakeTransport
	dials  int
}

func (d *fakeDialer) Dial(_ context.Context, _ string) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.script) == 0 {
		return nil, errors.New("dial: no transport scripted")
	}
	next := d.script[0]
	d.script = d.script[1:]
	if next == nil {
		return nil, errors.New("dial: connection refused")
	}
	return next, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// statusRecorder collects every emitted status for later inspection.
type statusRecorder struct {
	mu       sync.Mutex
	statuses []Status
}

func (r *statusRecorder) record(st Status) {
	r.mu.Lock()
	r.statuses = append(r.statuses, st)
	r.mu.Unlock()
}

func (r *statusRecorder) all() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Status, len(r.statuses))
	copy(out, r.statuses)
	return out
}

func (r *statusRecorder) last() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statuses) == 0 {
		return Status{}
	}
	return r.statuses[len(r.statuses)-1]
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestFeed(dialer Dialer, handlers Handlers, maxAttempts int) *Feed {
	return NewFeed("wss://test.invalid/ws", Subscription{
		Channel:    "books5",
		Instrument: "BTC-USDT",
	}, handlers, Options{
		Dialer:               dialer,
		PingInterval:         10 * time.Millisecond,
		ReconnectDelay:       5 * time.Millisecond,
		MaxReconnectAttempts: maxAttempts,
	}, testLogger())
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal(msg)
}

const bookMsg = `{"arg":{"channel":"books5","instId":"BTC-USDT"},` +
	`"data":[{"asks":[["101","1"],["102","5"]],"bids":[["100","2"]],"ts":"1717243200000"}]}`

func TestFeedSubscribesOnConnect(t *testing.T) {
	transport := newFakeTransport()
	dialer := &fakeDialer{script: []*fakeTransport{transport}}
	feed := newTestFeed(dialer, Handlers{}, 3)
	defer feed.Disconnect()

	feed.Connect()
	waitFor(t, func() bool { return len(transport.written()) >= 1 }, "subscribe never sent")

	want := `{"op":"subscribe","args":[{"channel":"books5","instId":"BTC-USDT"}]}`
	if got := transport.written()[0]; got != want {
		t.Errorf("first write = %s, want %s", got, want)
	}
	if feed.State() != StateOpen {
		t.Errorf("State() = %v, want %v", feed.State(), StateOpen)
	}
}

func TestFeedSendsPings(t *testing.T) {
	transport := newFakeTransport()
	dialer := &fakeDialer{script: []*fakeTransport{transport}}
	feed := newTestFeed(dialer, Handlers{}, 3)
	defer feed.Disconnect()

	feed.Connect()
	waitFor(t, func() bool {
		for _, w := range transport.written() {
			if w == `{"op":"ping"}` {
				return true
			}
		}
		return false
	}, "ping never sent")
}

func TestFeedEmitsSnapshots(t *testing.T) {
	transport := newFakeTransport()
	dialer := &fakeDialer{script: []*fakeTransport{transport}}

	var mu sync.Mutex
	var snaps []domain.OrderbookSnapshot
	feed := newTestFeed(dialer, Handlers{
		OnSnapshot: func(s domain.OrderbookSnapshot) {
			mu.Lock()
			snaps = append(snaps, s)
			mu.Unlock()
		},
	}, 3)
	defer feed.Disconnect()

	feed.Connect()
	waitFor(t, func() bool { return feed.State() == StateOpen }, "feed never opened")
	transport.push(bookMsg)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(snaps) == 1
	}, "snapshot never delivered")

	mu.Lock()
	snap := snaps[0]
	mu.Unlock()
	if snap.Exchange != "OKX" || snap.Symbol != "BTC-USDT" {
		t.Errorf("snapshot identity = %s/%s", snap.Exchange, snap.Symbol)
	}
	if len(snap.Asks) != 2 || snap.Asks[0].Price != 101 || snap.Asks[0].Size != 1 {
		t.Errorf("asks = %+v", snap.Asks)
	}
	if len(snap.Bids) != 1 || snap.Bids[0].Price != 100 {
		t.Errorf("bids = %+v", snap.Bids)
	}
	if snap.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}

func TestFeedDropsNonBookMessages(t *testing.T) {
	transport := newFakeTransport()
	dialer := &fakeDialer{script: []*fakeTransport{transport}}

	var mu sync.Mutex
	var snaps int
	feed := newTestFeed(dialer, Handlers{
		OnSnapshot: func(domain.OrderbookSnapshot) {
			mu.Lock()
			snaps++
			mu.Unlock()
		},
	}, 3)
	defer feed.Disconnect()

	feed.Connect()
	waitFor(t, func() bool { return feed.State() == StateOpen }, "feed never opened")

	transport.push(`{"event":"pong"}`)
	transport.push(`{"event":"subscribe","arg":{"channel":"books5","instId":"BTC-USDT"}}`)
	transport.push(`not json at all`)
	transport.push(bookMsg)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return snaps == 1
	}, "book message after noise never delivered")

	// Noise must not have disturbed the connection.
	if feed.State() != StateOpen {
		t.Errorf("State() = %v, want %v", feed.State(), StateOpen)
	}
}

func TestFeedReconnectsAfterDrop(t *testing.T) {
	first := newFakeTransport()
	second := newFakeTransport()
	dialer := &fakeDialer{script: []*fakeTransport{first, second}}

	rec := &statusRecorder{}
	feed := newTestFeed(dialer, Handlers{OnStatus: rec.record}, 3)
	defer feed.Disconnect()

	feed.Connect()
	waitFor(t, func() bool { return feed.State() == StateOpen }, "feed never opened")

	first.Close()
	waitFor(t, func() bool { return dialer.dialCount() == 2 && feed.State() == StateOpen },
		"feed never reconnected")

	var sawReconnecting bool
	for _, st := range rec.all() {
		if st.State == StateReconnecting {
			sawReconnecting = true
			if st.Connected {
				t.Error("reconnecting status reported connected")
			}
			if st.Err != "" {
				t.Errorf("transient disconnect carried error %q", st.Err)
			}
		}
	}
	if !sawReconnecting {
		t.Error("no reconnecting status emitted")
	}

	// The successful reopen reset the attempt counter.
	if got := feed.attemptCount(); got != 0 {
		t.Errorf("attempts after reopen = %d, want 0", got)
	}
}

func TestFeedFailsAfterMaxAttempts(t *testing.T) {
	// Every dial fails: the initial attempt plus maxAttempts retries.
	dialer := &fakeDialer{}
	rec := &statusRecorder{}
	feed := newTestFeed(dialer, Handlers{OnStatus: rec.record}, 3)
	defer feed.Disconnect()

	feed.Connect()
	waitFor(t, func() bool { return feed.State() == StateFailed }, "feed never failed")

	last := rec.last()
	if last.State != StateFailed || last.Connected {
		t.Errorf("terminal status = %+v", last)
	}
	if !strings.Contains(last.Err, "3 reconnect attempts") {
		t.Errorf("terminal error = %q", last.Err)
	}

	dials := dialer.dialCount()
	time.Sleep(50 * time.Millisecond)
	if got := dialer.dialCount(); got != dials {
		t.Errorf("dials continued after terminal failure: %d -> %d", dials, got)
	}
}

func TestFeedDisconnectCancelsPendingReconnect(t *testing.T) {
	dialer := &fakeDialer{}
	feed := NewFeed("wss://test.invalid/ws", Subscription{
		Channel:    "books5",
		Instrument: "BTC-USDT",
	}, Handlers{}, Options{
		Dialer:               dialer,
		PingInterval:         10 * time.Millisecond,
		ReconnectDelay:       time.Hour,
		MaxReconnectAttempts: 5,
	}, testLogger())

	feed.Connect()
	waitFor(t, func() bool { return feed.State() == StateReconnecting }, "feed never scheduled reconnect")

	feed.Disconnect()
	if feed.State() != StateIdle {
		t.Errorf("State() = %v, want %v", feed.State(), StateIdle)
	}
	dials := dialer.dialCount()
	time.Sleep(20 * time.Millisecond)
	if got := dialer.dialCount(); got != dials {
		t.Errorf("reconnect fired after Disconnect: %d -> %d", dials, got)
	}
}

func TestFeedDisconnectIdempotent(t *testing.T) {
	transport := newFakeTransport()
	dialer := &fakeDialer{script: []*fakeTransport{transport}}
	feed := newTestFeed(dialer, Handlers{}, 3)

	feed.Connect()
	waitFor(t, func() bool { return feed.State() == StateOpen }, "feed never opened")

	feed.Disconnect()
	feed.Disconnect()
	if feed.State() != StateIdle {
		t.Errorf("State() = %v, want %v", feed.State(), StateIdle)
	}
}

func TestFeedNoSnapshotAfterDisconnect(t *testing.T) {
	transport := newFakeTransport()
	dialer := &fakeDialer{script: []*fakeTransport{transport}}

	var mu sync.Mutex
	var snaps int
	feed := newTestFeed(dialer, Handlers{
		OnSnapshot: func(domain.OrderbookSnapshot) {
			mu.Lock()
			snaps++
			mu.Unlock()
		},
	}, 3)

	feed.Connect()
	waitFor(t, func() bool { return feed.State() == StateOpen }, "feed never opened")

	feed.Disconnect()
	select {
	case transport.inbox <- []byte(bookMsg):
	default:
	}

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if snaps != 0 {
		t.Errorf("snapshots after disconnect = %d, want 0", snaps)
	}
}

func TestFeedConnectIgnoredWhileActive(t *testing.T) {
	transport := newFakeTransport()
	dialer := &fakeDialer{script: []*fakeTransport{transport}}
	feed := newTestFeed(dialer, Handlers{}, 3)
	defer feed.Disconnect()

	feed.Connect()
	waitFor(t, func() bool { return feed.State() == StateOpen }, "feed never opened")

	feed.Connect()
	time.Sleep(10 * time.Millisecond)
	if got := dialer.dialCount(); got != 1 {
		t.Errorf("dials = %d, want 1", got)
	}
}

// parkingDialer hands out transports in call order, signals each dial on
// started, and parks the first dial until release is closed.
type parkingDialer struct {
	mu         sync.Mutex
	dials      int
	transports []*fakeTransport
	started    chan struct{}
	release    chan struct{}
}

func (d *parkingDialer) Dial(_ context.Context, _ string) (Transport, error) {
	d.mu.Lock()
	n := d.dials
	d.dials++
	next := d.transports[n]
	d.mu.Unlock()

	d.started <- struct{}{}
	if n == 0 {
		<-d.release
	}
	return next, nil
}

func TestFeedDisconnectWithDialInFlight(t *testing.T) {
	first := newFakeTransport()
	second := newFakeTransport()
	dialer := &parkingDialer{
		transports: []*fakeTransport{first, second},
		started:    make(chan struct{}, 2),
		release:    make(chan struct{}),
	}
	feed := newTestFeed(dialer, Handlers{}, 3)

	// The first dial is parked mid-handshake while the feed is torn down and
	// brought back up.
	feed.Connect()
	<-dialer.started
	feed.Disconnect()
	feed.Connect()
	<-dialer.started
	waitFor(t, func() bool { return feed.State() == StateOpen }, "second connect never opened")

	// The stale dial completes now. Its transport must be closed, and the
	// live session must survive untouched.
	close(dialer.release)
	waitFor(t, first.isClosed, "stale transport never closed")
	if feed.State() != StateOpen {
		t.Errorf("State() = %v, want %v", feed.State(), StateOpen)
	}
	if second.isClosed() {
		t.Error("live transport closed by stale dial")
	}

	feed.Disconnect()
	waitFor(t, second.isClosed, "live transport not closed on Disconnect")
}

func TestFeedReconnectsAfterFullCycle(t *testing.T) {
	first := newFakeTransport()
	second := newFakeTransport()
	dialer := &fakeDialer{script: []*fakeTransport{first, second}}
	feed := newTestFeed(dialer, Handlers{}, 3)
	defer feed.Disconnect()

	feed.Connect()
	waitFor(t, func() bool { return feed.State() == StateOpen }, "first connect never opened")
	feed.Disconnect()
	waitFor(t, func() bool { return feed.State() == StateIdle }, "feed never idled")

	feed.Connect()
	waitFor(t, func() bool { return feed.State() == StateOpen }, "second connect never opened")
	if got := dialer.dialCount(); got != 2 {
		t.Errorf("dials = %d, want 2", got)
	}
}

func TestLevelsFromPairs(t *testing.T) {
	pairs := [][]string{
		{"101.5", "2"},
		{"bad", "1"},
		{"102", "oops"},
		{"103"},
		{"-1", "1"},
		{"104", "0"},
	}
	levels := levelsFromPairs(pairs)
	if len(levels) != 2 {
		t.Fatalf("len(levels) = %d, want 2", len(levels))
	}
	if levels[0].Price != 101.5 || levels[0].Size != 2 {
		t.Errorf("levels[0] = %+v", levels[0])
	}
	if levels[1].Price != 104 || levels[1].Size != 0 {
		t.Errorf("levels[1] = %+v", levels[1])
	}

	if got := levelsFromPairs(nil); got == nil || len(got) != 0 {
		t.Errorf("levelsFromPairs(nil) = %#v, want empty non-nil", got)
	}
}
