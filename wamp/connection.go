package wamp

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Connection dials a router and performs the session handshake. Configure
// it with the Set methods, then call Connect. Each successful Connect
// produces an independent session; a Connection carries no per-session
// state of its own, so it can be reused after a failure.
type Connection struct {
	address   string
	realm     URI
	dialer    *websocket.Dialer
	tlsConfig *tls.Config
	logger    *zap.Logger
}

// NewConnection prepares a connection to the router at address, joining
// realm after the transport is up. The address scheme must be ws or wss.
func NewConnection(address string, realm URI) *Connection {
	return &Connection{
		address: address,
		realm:   realm,
		logger:  zap.NewNop(),
	}
}

// SetLogger routes this connection's and its sessions' logging to logger.
// The default discards everything.
func (c *Connection) SetLogger(logger *zap.Logger) *Connection {
	c.logger = logger
	return c
}

// SetDialer overrides the WebSocket dialer used by Connect. The dialer's
// subprotocol list is replaced with this client's own preference order.
func (c *Connection) SetDialer(dialer *websocket.Dialer) *Connection {
	c.dialer = dialer
	return c
}

// SetTLSConfig sets the TLS configuration used when dialing a wss
// address.
func (c *Connection) SetTLSConfig(tlsConfig *tls.Config) *Connection {
	c.tlsConfig = tlsConfig
	return c
}

// Connect opens the transport, negotiates a serialization, and joins the
// realm. It blocks until the router answers the HELLO, then starts the
// session's dispatch goroutine and returns the Client bound to it.
//
// The serialization offer prefers msgpack over JSON. A router that
// answers without naming a subprotocol gets JSON, with a warning, rather
// than a failed handshake.
func (c *Connection) Connect() (*Client, error) {
	parsed, err := url.Parse(c.address)
	if err != nil {
		return nil, NewError(AddressError, err)
	}
	switch parsed.Scheme {
	case "ws", "wss":
	default:
		return nil, NewError(AddressError, fmt.Sprintf("unsupported scheme %q", parsed.Scheme))
	}

	logger := c.logger.Named("wamp")

	base := websocket.DefaultDialer
	if c.dialer != nil {
		base = c.dialer
	}
	dialer := *base
	dialer.Subprotocols = []string{string(SerializationMsgPack), string(SerializationJSON)}
	if c.tlsConfig != nil {
		dialer.TLSClientConfig = c.tlsConfig
	}

	conn, _, err := dialer.Dial(parsed.String(), nil)
	if err != nil {
		return nil, NewError(TransportError, err)
	}

	serialization := Serialization(conn.Subprotocol())
	if serialization == "" {
		logger.Warn("router did not select a subprotocol, defaulting to JSON serialization")
		serialization = SerializationJSON
	}

	transport := newWSTransport(conn)
	session := newSessionState(transport, serialization, logger)

	logger.Info("sending hello",
		zap.String("realm", string(c.realm)),
		zap.String("serialization", string(serialization)))
	if err := session.send(Hello{Realm: c.realm, Details: defaultHelloDetails()}); err != nil {
		_ = transport.Close()
		return nil, err
	}

	sessionID, err := awaitWelcome(transport, logger)
	if err != nil {
		_ = transport.Close()
		return nil, err
	}
	logger.Info("session established", zap.Uint64("session_id", uint64(sessionID)))

	go session.runDispatchLoop()

	return newClient(session, sessionID), nil
}

// awaitWelcome blocks on the transport until the router's first
// application message and extracts the assigned session identifier. Pings
// arriving before it are answered inside ReadFrame and never surface.
func awaitWelcome(transport Transport, logger *zap.Logger) (ID, error) {
	frame, err := transport.ReadFrame()
	if err != nil {
		if errors.Is(err, ErrPeerClosed) {
			return 0, NewError(ConnectionLostError, "connection closed during handshake")
		}
		return 0, NewError(TransportError, err)
	}

	msg, err := DecodeFrame(frame)
	if err != nil {
		return 0, err
	}

	switch m := msg.(type) {
	case Welcome:
		return m.Session, nil
	case Abort:
		logger.Error("router aborted the session", zap.String("reason", string(m.Reason)))
		return 0, NewError(ConnectionLostError, fmt.Sprintf("router aborted the session: %s", m.Reason))
	default:
		return 0, NewError(UnexpectedMessageError, fmt.Sprintf("expected WELCOME, got %s", msg.Kind()))
	}
}
