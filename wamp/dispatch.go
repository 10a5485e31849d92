package wamp

import (
	"errors"

	"go.uber.org/zap"
)

// runDispatchLoop owns the inbound half of the transport. It decodes
// arriving frames and routes them until the transport fails, the peer
// closes, or a goodbye exchange completes. Whatever the exit reason, it
// tears the transport down and marks the session Disconnected.
func (s *sessionState) runDispatchLoop() {
	for {
		frame, err := s.transport.ReadFrame()
		if err != nil {
			if errors.Is(err, ErrPeerClosed) {
				s.logger.Info("received close frame, shutting down")
			} else {
				s.logger.Error("transport read failed, shutting down", zap.Error(err))
				_ = s.transport.WriteClose()
			}
			break
		}

		msg, err := DecodeFrame(frame)
		if err != nil {
			// A frame this side cannot parse is dropped; it must never
			// take down a healthy connection.
			s.logger.Error("could not decode incoming frame", zap.Error(err))
			continue
		}

		if !s.handleMessage(msg) {
			break
		}
	}

	_ = s.transport.Close()
	s.setDisconnected()
	s.failPublishWaiters()
	s.logger.Info("disconnected")
}

// failPublishWaiters releases every caller still blocked on an
// acknowledged publish once the session is gone; their acks can no longer
// arrive.
func (s *sessionState) failPublishWaiters() {
	s.publishesMu.Lock()
	waiters := s.publishes
	s.publishes = make(map[ID]chan publishResult)
	s.publishesMu.Unlock()

	for _, ch := range waiters {
		ch <- publishResult{err: NewError(ConnectionLostError, "connection lost before the publish was acknowledged")}
	}
}

// handleMessage applies protocol handling for one decoded message and
// reports whether the loop should keep running. Goodbye handling is the
// only path that stops it.
func (s *sessionState) handleMessage(msg Message) bool {
	switch m := msg.(type) {
	case Subscribed:
		s.handleSubscribed(m)
	case Event:
		s.dispatchEvent(m.Subscription, nil, nil)
	case EventArgs:
		s.dispatchEvent(m.Subscription, m.Args, nil)
	case EventKwArgs:
		s.dispatchEvent(m.Subscription, m.Args, m.KwArgs)
	case Unsubscribed:
		s.handleUnsubscribed(m)
	case Published:
		s.handlePublished(m)
	case Error:
		s.handleError(m)
	case Goodbye:
		return s.handleGoodbye(m)
	default:
		// Everything else is legal to receive and irrelevant to the
		// publisher and subscriber roles.
	}
	return true
}

// handleSubscribed moves the subscriber for an acknowledged request from
// the pending table to the active table. The two locks are taken one
// after the other, never together; nothing can observe the subscriber in
// between because this goroutine is the only path that touches it.
func (s *sessionState) handleSubscribed(msg Subscribed) {
	sub, ok := s.takePending(msg.Request)
	if !ok {
		s.logger.Warn("subscription ack for an unknown request",
			zap.Uint64("request_id", uint64(msg.Request)))
		return
	}

	s.addActive(msg.Subscription, sub)
	s.logger.Debug("subscription acknowledged",
		zap.String("topic", string(sub.topic)),
		zap.Uint64("subscription_id", uint64(msg.Subscription)))
}

// dispatchEvent invokes the registered callback for one delivered event.
// The callback runs on this goroutine with the active lock released, so a
// handler may call back into the client API.
func (s *sessionState) dispatchEvent(subscriptionID ID, args List, kwargs Dict) {
	sub, ok := s.lookupActive(subscriptionID)
	if !ok {
		s.logger.Warn("event for an unknown subscription",
			zap.Uint64("subscription_id", uint64(subscriptionID)))
		return
	}

	if args == nil {
		args = List{}
	}
	if kwargs == nil {
		kwargs = Dict{}
	}
	sub.handler.HandleEvent(args, kwargs)
}

func (s *sessionState) handleUnsubscribed(msg Unsubscribed) {
	subscriptionID, ok := s.takeUnsubscribe(msg.Request)
	if !ok {
		s.logger.Warn("unsubscribe ack for an unknown request",
			zap.Uint64("request_id", uint64(msg.Request)))
		return
	}

	if _, ok := s.takeActive(subscriptionID); !ok {
		s.logger.Warn("unsubscribed a subscription that was not active",
			zap.Uint64("subscription_id", uint64(subscriptionID)))
		return
	}

	s.logger.Debug("subscription removed",
		zap.Uint64("subscription_id", uint64(subscriptionID)))
}

func (s *sessionState) handlePublished(msg Published) {
	// Acks for unacknowledged or abandoned publishes are dropped.
	if ch, ok := s.takePublishWaiter(msg.Request); ok {
		ch <- publishResult{publicationID: msg.Publication}
	}
}

// handleError routes a router-side failure to whatever is waiting on the
// failed request. Errors nothing is waiting for are logged and dropped.
func (s *sessionState) handleError(msg Error) {
	switch msg.RequestKind {
	case KindPublish, KindPublishArgs, KindPublishKwArgs:
		if ch, ok := s.takePublishWaiter(msg.Request); ok {
			ch <- publishResult{err: errorReasonToError(msg.Reason)}
			return
		}
	case KindSubscribe:
		if sub, ok := s.takePending(msg.Request); ok {
			s.logger.Warn("subscribe rejected",
				zap.String("topic", string(sub.topic)),
				zap.String("reason", string(msg.Reason)))
			return
		}
	case KindUnsubscribe:
		if subscriptionID, ok := s.takeUnsubscribe(msg.Request); ok {
			s.logger.Warn("unsubscribe rejected",
				zap.Uint64("subscription_id", uint64(subscriptionID)),
				zap.String("reason", string(msg.Reason)))
			return
		}
	}

	s.logger.Warn("router error for an unknown request",
		zap.String("request_type", string(msg.RequestKind)),
		zap.Uint64("request_id", uint64(msg.Request)),
		zap.String("reason", string(msg.Reason)))
}

// handleGoodbye runs the receiving half of the goodbye exchange under the
// lifecycle lock. A goodbye the peer initiated gets the reciprocal
// GoodbyeAndOut reply; a goodbye answering our own shutdown does not.
func (s *sessionState) handleGoodbye(msg Goodbye) bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	switch s.state {
	case ConnectionStateConnected:
		s.logger.Info("received goodbye", zap.String("reason", string(msg.Reason)))
		_ = s.send(Goodbye{Details: Dict{}, Reason: ReasonGoodbyeAndOut})
	case ConnectionStateShuttingDown:
		s.logger.Info("goodbye exchange complete", zap.String("reason", string(msg.Reason)))
	default:
	}
	return false
}
