package main

import (
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wampkit/wamp-client-go/wamp"
)

// ---------------------------------------------------------------------------
// router — realm-scoped pub/sub broker over WebSocket.
//
// Architecture, per connection:
//   - READER goroutine (the HTTP handler): reads frames, decodes messages,
//     answers subscribe/unsubscribe/publish, and fans publications out.
//   - WRITER goroutine (sessionWriter.run): drains the session's outbound
//     channel so a slow consumer never blocks anyone else's reader.
//
// Identifier scopes follow the protocol: session, subscription, and
// publication identifiers are router-global counters.
// ---------------------------------------------------------------------------

type routerConfig struct {
	realms   map[wamp.URI]bool // nil accepts any realm
	trace    bool
	logConn  bool
	outDepth int
}

type router struct {
	cfg      routerConfig
	started  time.Time
	upgrader websocket.Upgrader

	connectionsAccepted atomic.Uint64
	connectionsCurrent  atomic.Int64
	sessionsEstablished atomic.Uint64
	publishesRouted     atomic.Uint64
	eventsDelivered     atomic.Uint64

	nextSessionID      atomic.Uint64
	nextSubscriptionID atomic.Uint64
	nextPublicationID  atomic.Uint64

	sessionsMu sync.RWMutex
	sessions   map[wamp.ID]*routerSession

	subsMu   sync.RWMutex
	subsByID map[wamp.ID]*routerSub
	topics   map[topicKey]map[wamp.ID]*routerSub
}

type topicKey struct {
	realm wamp.URI
	topic wamp.URI
}

type routerSub struct {
	id      wamp.ID
	topic   wamp.URI
	session *routerSession
}

type routerSession struct {
	id            wamp.ID
	realm         wamp.URI
	serialization wamp.Serialization
	remoteAddr    string
	conn          *websocket.Conn
	writer        *sessionWriter
}

func newRouter(cfg routerConfig) *router {
	if cfg.outDepth <= 0 {
		cfg.outDepth = 4096
	}
	return &router{
		cfg:     cfg,
		started: time.Now(),
		upgrader: websocket.Upgrader{
			Subprotocols: []string{string(wamp.SerializationMsgPack), string(wamp.SerializationJSON)},
		},
		sessions: make(map[wamp.ID]*routerSession),
		subsByID: make(map[wamp.ID]*routerSub),
		topics:   make(map[topicKey]map[wamp.ID]*routerSub),
	}
}

// ServeHTTP upgrades the request and runs the connection's session until it
// ends. The handler goroutine doubles as the session's reader.
func (r *router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Printf("fakerouter: upgrade from %s failed: %v", req.RemoteAddr, err)
		return
	}
	r.connectionsAccepted.Add(1)
	r.connectionsCurrent.Add(1)
	r.serveConn(conn)
}

func (r *router) serveConn(conn *websocket.Conn) {
	remoteAddr := conn.RemoteAddr().String()
	if r.cfg.logConn {
		log.Printf("fakerouter: connected  %s  (total=%d active=%d)",
			remoteAddr, r.connectionsAccepted.Load(), r.connectionsCurrent.Load())
	}
	defer func() {
		_ = conn.Close()
		r.connectionsCurrent.Add(-1)
		if r.cfg.logConn {
			log.Printf("fakerouter: disconnected  %s", remoteAddr)
		}
	}()

	serialization := wamp.Serialization(conn.Subprotocol())
	if serialization == "" {
		serialization = wamp.SerializationJSON
	}

	session, ok := r.establishSession(conn, serialization, remoteAddr)
	if !ok {
		return
	}
	defer r.teardownSession(session)

	for {
		frame, err := readFrame(conn)
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("fakerouter: session %d read failed: %v", session.id, err)
			}
			return
		}
		msg, err := wamp.DecodeFrame(frame)
		if err != nil {
			log.Printf("fakerouter: session %d sent an undecodable frame: %v", session.id, err)
			continue
		}
		r.traceIn(session, msg)
		if !r.handleMessage(session, msg) {
			return
		}
	}
}

// establishSession consumes the HELLO, applies realm admission, and answers
// with WELCOME or ABORT. A nil realm allowlist admits everything.
func (r *router) establishSession(conn *websocket.Conn, serialization wamp.Serialization, remoteAddr string) (*routerSession, bool) {
	frame, err := readFrame(conn)
	if err != nil {
		log.Printf("fakerouter: %s closed before HELLO: %v", remoteAddr, err)
		return nil, false
	}
	msg, err := wamp.DecodeFrame(frame)
	if err != nil {
		log.Printf("fakerouter: %s sent an undecodable first frame: %v", remoteAddr, err)
		return nil, false
	}
	hello, ok := msg.(wamp.Hello)
	if !ok {
		log.Printf("fakerouter: %s opened with %s, want HELLO", remoteAddr, msg.Kind())
		return nil, false
	}

	session := &routerSession{
		id:            wamp.ID(r.nextSessionID.Add(1)),
		realm:         hello.Realm,
		serialization: serialization,
		remoteAddr:    remoteAddr,
		conn:          conn,
		writer:        newSessionWriter(conn, r.cfg.outDepth),
	}

	if r.cfg.realms != nil && !r.cfg.realms[hello.Realm] {
		log.Printf("fakerouter: %s asked for unknown realm %q, aborting", remoteAddr, hello.Realm)
		r.send(session, wamp.Abort{
			Details: wamp.Dict{"message": "no such realm"},
			Reason:  wamp.ReasonNoSuchRealm,
		})
		session.writer.close()
		return nil, false
	}

	r.sessionsMu.Lock()
	r.sessions[session.id] = session
	r.sessionsMu.Unlock()
	r.sessionsEstablished.Add(1)

	r.send(session, wamp.Welcome{
		Session: session.id,
		Details: wamp.Dict{"roles": wamp.Dict{"broker": wamp.Dict{}}},
	})
	return session, true
}

// teardownSession runs on the reader goroutine after the loop ends.
// Subscriptions go first so no fan-out can target the writer once it is
// closed.
func (r *router) teardownSession(session *routerSession) {
	r.dropSessionSubscriptions(session)

	r.sessionsMu.Lock()
	delete(r.sessions, session.id)
	r.sessionsMu.Unlock()

	session.writer.close()
	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = session.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(time.Second))
}

func (r *router) handleMessage(session *routerSession, msg wamp.Message) bool {
	switch m := msg.(type) {
	case wamp.Subscribe:
		subscriptionID := r.addSubscription(session, m.Topic)
		r.send(session, wamp.Subscribed{Request: m.Request, Subscription: subscriptionID})

	case wamp.Unsubscribe:
		if r.removeSubscription(session, m.Subscription) {
			r.send(session, wamp.Unsubscribed{Request: m.Request})
		} else {
			r.send(session, wamp.Error{
				RequestKind: wamp.KindUnsubscribe,
				Request:     m.Request,
				Details:     wamp.Dict{},
				Reason:      wamp.ReasonNoSuchSubscription,
			})
		}

	case wamp.Publish:
		r.handlePublish(session, m.Request, m.Topic, m.Options,
			func(subscription, publication wamp.ID) wamp.Message {
				return wamp.Event{Subscription: subscription, Publication: publication, Details: wamp.Dict{}}
			})

	case wamp.PublishArgs:
		r.handlePublish(session, m.Request, m.Topic, m.Options,
			func(subscription, publication wamp.ID) wamp.Message {
				return wamp.EventArgs{Subscription: subscription, Publication: publication, Details: wamp.Dict{}, Args: m.Args}
			})

	case wamp.PublishKwArgs:
		r.handlePublish(session, m.Request, m.Topic, m.Options,
			func(subscription, publication wamp.ID) wamp.Message {
				return wamp.EventKwArgs{Subscription: subscription, Publication: publication, Details: wamp.Dict{}, Args: m.Args, KwArgs: m.KwArgs}
			})

	case wamp.Goodbye:
		r.send(session, wamp.Goodbye{Details: wamp.Dict{}, Reason: wamp.ReasonGoodbyeAndOut})
		return false

	case wamp.Hello:
		log.Printf("fakerouter: session %d sent HELLO inside an established session", session.id)
		return false

	default:
		log.Printf("fakerouter: session %d sent unsupported %s, ignoring", session.id, msg.Kind())
	}
	return true
}

// handlePublish allocates the publication identifier, fans the event out to
// every matching subscription in the publisher's realm, and acknowledges the
// publish when asked to. The publisher never receives its own publication.
func (r *router) handlePublish(session *routerSession, request wamp.ID, topic wamp.URI, options wamp.PublishOptions, build func(subscription, publication wamp.ID) wamp.Message) {
	publicationID := wamp.ID(r.nextPublicationID.Add(1))

	delivered := 0
	r.subsMu.RLock()
	for _, sub := range r.topics[topicKey{realm: session.realm, topic: topic}] {
		if sub.session == session {
			continue
		}
		r.send(sub.session, build(sub.id, publicationID))
		delivered++
	}
	r.subsMu.RUnlock()

	r.publishesRouted.Add(1)
	r.eventsDelivered.Add(uint64(delivered))

	if options.Acknowledge {
		r.send(session, wamp.Published{Request: request, Publication: publicationID})
	}
}

// send encodes msg in the session's serialization and enqueues it on the
// session's writer. Each session may be on a different serialization, so
// fan-out encodes per subscriber.
func (r *router) send(session *routerSession, msg wamp.Message) {
	r.traceOut(session, msg)
	frame, err := wamp.EncodeMessage(msg, session.serialization)
	if err != nil {
		log.Printf("fakerouter: session %d encode %s failed: %v", session.id, msg.Kind(), err)
		return
	}
	session.writer.send(frame)
}

// ---------------------------------------------------------------------------
// Subscription registry
// ---------------------------------------------------------------------------

func (r *router) addSubscription(session *routerSession, topic wamp.URI) wamp.ID {
	sub := &routerSub{
		id:      wamp.ID(r.nextSubscriptionID.Add(1)),
		topic:   topic,
		session: session,
	}

	r.subsMu.Lock()
	defer r.subsMu.Unlock()

	key := topicKey{realm: session.realm, topic: topic}
	if r.topics[key] == nil {
		r.topics[key] = make(map[wamp.ID]*routerSub)
	}
	r.topics[key][sub.id] = sub
	r.subsByID[sub.id] = sub
	return sub.id
}

// removeSubscription drops subscriptionID if it exists and belongs to
// session. A session cannot unsubscribe someone else's registration.
func (r *router) removeSubscription(session *routerSession, subscriptionID wamp.ID) bool {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()

	sub, ok := r.subsByID[subscriptionID]
	if !ok || sub.session != session {
		return false
	}
	delete(r.subsByID, subscriptionID)
	key := topicKey{realm: session.realm, topic: sub.topic}
	delete(r.topics[key], subscriptionID)
	if len(r.topics[key]) == 0 {
		delete(r.topics, key)
	}
	return true
}

func (r *router) dropSessionSubscriptions(session *routerSession) int {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()

	removed := 0
	for id, sub := range r.subsByID {
		if sub.session != session {
			continue
		}
		delete(r.subsByID, id)
		key := topicKey{realm: session.realm, topic: sub.topic}
		delete(r.topics[key], id)
		if len(r.topics[key]) == 0 {
			delete(r.topics, key)
		}
		removed++
	}
	return removed
}

func (r *router) subscriptionCount(realm, topic wamp.URI) int {
	r.subsMu.RLock()
	defer r.subsMu.RUnlock()

	return len(r.topics[topicKey{realm: realm, topic: topic}])
}

// ---------------------------------------------------------------------------
// Frame plumbing
// ---------------------------------------------------------------------------

// readFrame returns the next data frame. Control traffic stays inside
// ReadMessage: the default handlers answer pings and echo closes.
func readFrame(conn *websocket.Conn) (*wamp.Frame, error) {
	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		switch messageType {
		case websocket.TextMessage:
			return &wamp.Frame{Kind: wamp.FrameText, Payload: payload}, nil
		case websocket.BinaryMessage:
			return &wamp.Frame{Kind: wamp.FrameBinary, Payload: payload}, nil
		}
	}
}

// sessionWriter is the dedicated write goroutine for one session. It drains
// an outbound channel so fan-out from other sessions' readers never blocks;
// when the channel is full the frame is dropped rather than stalling the
// sender.
type sessionWriter struct {
	ch   chan *wamp.Frame
	done chan struct{}
}

func newSessionWriter(conn *websocket.Conn, depth int) *sessionWriter {
	w := &sessionWriter{
		ch:   make(chan *wamp.Frame, depth),
		done: make(chan struct{}),
	}
	go w.run(conn)
	return w
}

func (w *sessionWriter) run(conn *websocket.Conn) {
	defer close(w.done)
	for frame := range w.ch {
		messageType := websocket.TextMessage
		if frame.Kind == wamp.FrameBinary {
			messageType = websocket.BinaryMessage
		}
		_ = conn.WriteMessage(messageType, frame.Payload)
	}
}

func (w *sessionWriter) send(frame *wamp.Frame) {
	select {
	case w.ch <- frame:
	default:
		// Channel full — slow consumer.
	}
}

// close flushes the remaining frames and waits for the goroutine to exit.
// No send may race this; teardown removes the session from every registry
// first.
func (w *sessionWriter) close() {
	close(w.ch)
	<-w.done
}
