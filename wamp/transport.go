package wamp

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// FrameKind identifies the transport-level type of one data frame. It is
// what selects the decode format: frames are self-identifying by opcode,
// independent of the session's negotiated serialization.
type FrameKind int

const (
	// FrameText carries a UTF-8 structured document.
	FrameText FrameKind = iota + 1
	// FrameBinary carries a compact binary document.
	FrameBinary
)

// Frame is one discrete unit of application data on the transport.
type Frame struct {
	Kind    FrameKind
	Payload []byte
}

// ErrPeerClosed reports that the peer closed the connection in an orderly
// way. The transport has already attempted the close reply by the time
// ReadFrame returns it.
var ErrPeerClosed = errors.New("peer closed connection")

// Transport is one established message-oriented connection. The read side
// belongs to a single goroutine; the write methods may be called from any
// goroutine and are serialized internally, so concurrent frames never
// interleave on the wire.
type Transport interface {
	// ReadFrame blocks until the next data frame arrives. Control traffic
	// never surfaces: pings are answered with pongs carrying the identical
	// payload, pongs are dropped, and a peer close is answered best effort
	// before ReadFrame returns ErrPeerClosed.
	ReadFrame() (*Frame, error)

	// WriteFrame writes one data frame.
	WriteFrame(frame *Frame) error

	// WriteClose sends a close frame, best effort.
	WriteClose() error

	// Close tears down both halves of the connection.
	Close() error
}

// controlWriteWait bounds control-frame writes so a dead peer cannot hang
// the read goroutine inside a ping or close reply.
const controlWriteWait = 10 * time.Second

// wsTransport adapts a WebSocket connection to Transport. The control
// handlers installed here run on the goroutine calling ReadFrame, inside
// the read call itself, so their replies share the write lock with
// ordinary frames.
type wsTransport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	t := &wsTransport{conn: conn}

	conn.SetPingHandler(func(payload string) error {
		return t.writeControl(websocket.PongMessage, []byte(payload))
	})
	conn.SetPongHandler(func(string) error {
		return nil
	})
	conn.SetCloseHandler(func(code int, _ string) error {
		_ = t.writeControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""))
		return nil
	})

	return t
}

func (t *wsTransport) ReadFrame() (*Frame, error) {
	for {
		messageType, payload, err := t.conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return nil, ErrPeerClosed
			}
			return nil, err
		}

		switch messageType {
		case websocket.TextMessage:
			return &Frame{Kind: FrameText, Payload: payload}, nil
		case websocket.BinaryMessage:
			return &Frame{Kind: FrameBinary, Payload: payload}, nil
		default:
			continue
		}
	}
}

func (t *wsTransport) WriteFrame(frame *Frame) error {
	messageType := websocket.TextMessage
	if frame.Kind == FrameBinary {
		messageType = websocket.BinaryMessage
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	return t.conn.WriteMessage(messageType, frame.Payload)
}

func (t *wsTransport) WriteClose() error {
	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	return t.writeControl(websocket.CloseMessage, message)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

func (t *wsTransport) writeControl(messageType int, payload []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	return t.conn.WriteControl(messageType, payload, time.Now().Add(controlWriteWait))
}
