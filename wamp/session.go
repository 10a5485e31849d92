package wamp

import (
	"sync"

	"go.uber.org/zap"
)

// ConnectionState is the lifecycle state of one session. Transitions only
// move forward; ConnectionStateDisconnected is terminal.
type ConnectionState int

const (
	ConnectionStateConnected ConnectionState = iota + 1
	ConnectionStateShuttingDown
	ConnectionStateDisconnected
)

func (s ConnectionState) String() string {
	switch s {
	case ConnectionStateConnected:
		return "Connected"
	case ConnectionStateShuttingDown:
		return "ShuttingDown"
	case ConnectionStateDisconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// subscriber pairs a registered event callback with the topic it was
// registered for. A subscriber lives in exactly one correlation table at a
// time: pending until the router acknowledges, active afterwards.
type subscriber struct {
	topic   URI
	handler EventHandler
}

// publishResult is what an acknowledged publish waits for.
type publishResult struct {
	publicationID ID
	err           error
}

// sessionState is the record one connection's goroutines share. Each field
// group below has its own guard. The only lock nesting anywhere is
// lifecycle state taken before a frame write (shutdown and the goodbye
// reply); the write path never takes any other lock, so no ordering cycle
// can form. The two subscription tables are never held together: the
// subscribed correlation step releases pending before touching active.
type sessionState struct {
	serialization Serialization
	transport     Transport
	logger        *zap.Logger

	stateMu sync.Mutex
	state   ConnectionState

	pendingMu sync.Mutex
	pending   map[ID]*subscriber

	activeMu sync.Mutex
	active   map[ID]*subscriber

	unsubscribesMu sync.Mutex
	unsubscribes   map[ID]ID

	publishesMu sync.Mutex
	publishes   map[ID]chan publishResult
}

func newSessionState(transport Transport, serialization Serialization, logger *zap.Logger) *sessionState {
	return &sessionState{
		serialization: serialization,
		transport:     transport,
		logger:        logger,
		state:         ConnectionStateConnected,
		pending:       make(map[ID]*subscriber),
		active:        make(map[ID]*subscriber),
		unsubscribes:  make(map[ID]ID),
		publishes:     make(map[ID]chan publishResult),
	}
}

// send encodes msg in the negotiated serialization and writes it as one
// frame. The transport serializes concurrent writers, so the frame can
// never interleave with another. A write failure leaves the session
// unusable: the error is logged, a close frame is attempted, and the
// failure goes back to this caller alone. The dispatch loop discovers the
// broken transport on its own next read and converges to Disconnected.
func (s *sessionState) send(msg Message) error {
	frame, err := EncodeMessage(msg, s.serialization)
	if err != nil {
		return err
	}

	if err := s.transport.WriteFrame(frame); err != nil {
		s.logger.Error("could not send message",
			zap.String("message_type", string(msg.Kind())),
			zap.Error(err))
		_ = s.transport.WriteClose()
		return NewError(SendError, err)
	}
	return nil
}

// shutdown starts the goodbye exchange. The lifecycle check and the
// goodbye send share one critical section so concurrent callers cannot
// double-send; the state only advances once the frame is out.
func (s *sessionState) shutdown() error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if s.state != ConnectionStateConnected {
		return nil
	}
	if err := s.send(Goodbye{Details: Dict{}, Reason: ReasonSystemShutdown}); err != nil {
		return err
	}
	s.state = ConnectionStateShuttingDown
	s.logger.Info("goodbye sent, shutting down")
	return nil
}

func (s *sessionState) currentState() ConnectionState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	return s.state
}

func (s *sessionState) setDisconnected() {
	s.stateMu.Lock()
	s.state = ConnectionStateDisconnected
	s.stateMu.Unlock()
}

func (s *sessionState) addPending(requestID ID, sub *subscriber) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	s.pending[requestID] = sub
}

func (s *sessionState) takePending(requestID ID) (*subscriber, bool) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	sub, ok := s.pending[requestID]
	if ok {
		delete(s.pending, requestID)
	}
	return sub, ok
}

func (s *sessionState) addActive(subscriptionID ID, sub *subscriber) {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()

	s.active[subscriptionID] = sub
}

func (s *sessionState) lookupActive(subscriptionID ID) (*subscriber, bool) {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()

	sub, ok := s.active[subscriptionID]
	return sub, ok
}

func (s *sessionState) takeActive(subscriptionID ID) (*subscriber, bool) {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()

	sub, ok := s.active[subscriptionID]
	if ok {
		delete(s.active, subscriptionID)
	}
	return sub, ok
}

// findActiveByTopic returns the identifier of an acknowledged subscription
// to topic. With duplicate subscriptions to one topic the pick among them
// is arbitrary.
func (s *sessionState) findActiveByTopic(topic URI) (ID, bool) {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()

	for subscriptionID, sub := range s.active {
		if sub.topic == topic {
			return subscriptionID, true
		}
	}
	return 0, false
}

func (s *sessionState) addUnsubscribe(requestID, subscriptionID ID) {
	s.unsubscribesMu.Lock()
	defer s.unsubscribesMu.Unlock()

	s.unsubscribes[requestID] = subscriptionID
}

func (s *sessionState) takeUnsubscribe(requestID ID) (ID, bool) {
	s.unsubscribesMu.Lock()
	defer s.unsubscribesMu.Unlock()

	subscriptionID, ok := s.unsubscribes[requestID]
	if ok {
		delete(s.unsubscribes, requestID)
	}
	return subscriptionID, ok
}

// addPublishWaiter registers a waiter for an acknowledged publish. The
// channel is buffered so the dispatch loop never blocks delivering to a
// waiter that is already gone.
func (s *sessionState) addPublishWaiter(requestID ID) chan publishResult {
	ch := make(chan publishResult, 1)

	s.publishesMu.Lock()
	defer s.publishesMu.Unlock()

	s.publishes[requestID] = ch
	return ch
}

func (s *sessionState) takePublishWaiter(requestID ID) (chan publishResult, bool) {
	s.publishesMu.Lock()
	defer s.publishesMu.Unlock()

	ch, ok := s.publishes[requestID]
	if ok {
		delete(s.publishes, requestID)
	}
	return ch, ok
}
