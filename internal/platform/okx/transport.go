package okx

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// handshakeTimeout bounds the websocket dial.
	handshakeTimeout = 15 * time.Second
)

// Transport is a single established websocket session. The Feed state machine
// talks only to this interface so tests can drive it with a fake transport.
type Transport interface {
	// ReadMessage blocks until the next inbound message or a read error.
	ReadMessage() ([]byte, error)

	// WriteJSON marshals v and writes it as a text frame.
	WriteJSON(v any) error

	// Close tears down the session. Safe to call more than once.
	Close() error
}

// Dialer establishes Transports. The production implementation wraps
// gorilla/websocket; tests inject a fake.
type Dialer interface {
	Dial(ctx context.Context, url string) (Transport, error)
}

// NewDialer returns the production websocket Dialer.
func NewDialer() Dialer {
	return &wsDialer{}
}

type wsDialer struct{}

func (d *wsDialer) Dial(ctx context.Context, url string) (Transport, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("okx: dial %s: %w", url, err)
	}
	return &wsTransport{conn: conn}, nil
}

// wsTransport adapts *websocket.Conn to Transport. Writes are serialized
// because the subscribe request and the keep-alive ticker share the session.
type wsTransport struct {
	conn *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *wsTransport) WriteJSON(v any) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteJSON(v)
}

func (t *wsTransport) Close() error {
	t.closeOnce.Do(func() {
		t.writeMu.Lock()
		t.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = t.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		t.writeMu.Unlock()
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}
