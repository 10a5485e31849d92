package wamp

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"
)

// startDispatch runs the session's dispatch loop and returns it ready for
// frame injection through the fake transport.
func startDispatch(session *sessionState) {
	go session.runDispatchLoop()
}

func waitForDisconnect(t *testing.T, session *sessionState) {
	t.Helper()
	waitUntil(t, func() bool {
		return session.currentState() == ConnectionStateDisconnected
	}, "session to disconnect")
}

func TestSubscribeAckEventScenario(t *testing.T) {
	defer goleak.VerifyNone(t)

	session, client, transport := newTestSession(SerializationJSON)
	startDispatch(session)

	handler := &recordingHandler{}
	if err := client.Subscribe("com.example.topic", handler); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	subscribe, ok := transport.lastWritten(t).(Subscribe)
	if !ok {
		t.Fatalf("expected a SUBSCRIBE frame, got %+v", transport.lastWritten(t))
	}
	if subscribe.Request != 1 || subscribe.Topic != "com.example.topic" {
		t.Fatalf("unexpected subscribe frame: %+v", subscribe)
	}

	transport.pushMessage(t, Subscribed{Request: 1, Subscription: 42}, SerializationJSON)
	transport.pushMessage(t, EventKwArgs{
		Subscription: 42,
		Publication:  7,
		Details:      Dict{},
		Args:         List{float64(1), float64(2), float64(3)},
		KwArgs:       Dict{"k": "v"},
	}, SerializationJSON)

	waitUntil(t, func() bool { return handler.callCount() == 1 }, "the event callback")

	call := handler.call(0)
	if !reflect.DeepEqual(call.args, List{float64(1), float64(2), float64(3)}) {
		t.Fatalf("callback args: got %+v want [1 2 3]", call.args)
	}
	if !reflect.DeepEqual(call.kwargs, Dict{"k": "v"}) {
		t.Fatalf("callback kwargs: got %+v want map[k:v]", call.kwargs)
	}
	if session.pendingCount() != 0 {
		t.Fatalf("pending table should be empty after the ack, has %d entries", session.pendingCount())
	}
	if _, ok := session.lookupActive(42); !ok {
		t.Fatalf("active table should hold subscription 42")
	}

	transport.pushReadError(ErrPeerClosed)
	waitForDisconnect(t, session)

	if handler.callCount() != 1 {
		t.Fatalf("callback fired %d times, want exactly once", handler.callCount())
	}
}

func TestEventsDeliveredInArrivalOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	session, client, transport := newTestSession(SerializationMsgPack)
	startDispatch(session)

	handler := &recordingHandler{}
	if err := client.Subscribe("com.example.ordered", handler); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	transport.pushMessage(t, Subscribed{Request: 1, Subscription: 9}, SerializationMsgPack)
	for i := 1; i <= 5; i++ {
		transport.pushMessage(t, EventArgs{
			Subscription: 9,
			Publication:  ID(i),
			Details:      Dict{},
			Args:         List{float64(i)},
		}, SerializationMsgPack)
	}

	waitUntil(t, func() bool { return handler.callCount() == 5 }, "all five events")
	for i := 0; i < 5; i++ {
		want := List{float64(i + 1)}
		if !reflect.DeepEqual(handler.call(i).args, want) {
			t.Fatalf("event %d out of order: got %+v want %+v", i, handler.call(i).args, want)
		}
	}

	transport.pushReadError(ErrPeerClosed)
	waitForDisconnect(t, session)
}

func TestEventForUnknownSubscriptionIgnored(t *testing.T) {
	defer goleak.VerifyNone(t)

	session, client, transport := newTestSession(SerializationJSON)
	startDispatch(session)

	handler := &recordingHandler{}
	if err := client.Subscribe("com.example.topic", handler); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	// An event for a subscription nobody holds must be dropped without
	// touching either table; the following ack proves the loop survived.
	transport.pushMessage(t, EventArgs{Subscription: 999, Publication: 1, Details: Dict{}, Args: List{"stray"}}, SerializationJSON)
	transport.pushMessage(t, Subscribed{Request: 1, Subscription: 42}, SerializationJSON)

	waitUntil(t, func() bool { return session.activeCount() == 1 }, "the subscription ack")
	if handler.callCount() != 0 {
		t.Fatalf("stray event invoked the callback %d times", handler.callCount())
	}
	if session.pendingCount() != 0 {
		t.Fatalf("pending table should be empty, has %d entries", session.pendingCount())
	}

	transport.pushReadError(ErrPeerClosed)
	waitForDisconnect(t, session)
}

func TestSubscribedForUnknownRequestIgnored(t *testing.T) {
	defer goleak.VerifyNone(t)

	session, _, transport := newTestSession(SerializationJSON)
	startDispatch(session)

	transport.pushMessage(t, Subscribed{Request: 77, Subscription: 5}, SerializationJSON)
	transport.pushMessage(t, Subscribed{Request: 78, Subscription: 6}, SerializationJSON)
	// Frames are processed in order, so once the close lands both acks
	// have been through dispatch.
	transport.pushReadError(ErrPeerClosed)
	waitForDisconnect(t, session)

	if session.activeCount() != 0 {
		t.Fatalf("unknown acks populated the active table: %d entries", session.activeCount())
	}
	if frames := transport.writtenFrames(); len(frames) != 0 {
		t.Fatalf("unknown acks provoked %d outbound frames, want 0", len(frames))
	}
}

func TestUndecodableFrameDoesNotStopLoop(t *testing.T) {
	defer goleak.VerifyNone(t)

	session, client, transport := newTestSession(SerializationJSON)
	startDispatch(session)

	handler := &recordingHandler{}
	if err := client.Subscribe("com.example.topic", handler); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	transport.pushFrame(&Frame{Kind: FrameText, Payload: []byte("garbage")})
	transport.pushFrame(&Frame{Kind: FrameBinary, Payload: []byte{0xc1}})
	transport.pushMessage(t, Subscribed{Request: 1, Subscription: 42}, SerializationJSON)

	waitUntil(t, func() bool { return session.activeCount() == 1 }, "the ack behind the garbage")

	transport.pushReadError(ErrPeerClosed)
	waitForDisconnect(t, session)
}

func TestGoodbyeWhileConnectedReciprocatesAndStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	session, _, transport := newTestSession(SerializationJSON)
	startDispatch(session)

	transport.pushMessage(t, Goodbye{Details: Dict{}, Reason: ReasonSystemShutdown}, SerializationJSON)
	waitForDisconnect(t, session)

	goodbyes := goodbyeFrames(t, transport)
	if len(goodbyes) != 1 {
		t.Fatalf("expected one reciprocal goodbye, got %d", len(goodbyes))
	}
	if goodbyes[0].Reason != ReasonGoodbyeAndOut {
		t.Fatalf("reciprocal goodbye reason: got %q want %q", goodbyes[0].Reason, ReasonGoodbyeAndOut)
	}
}

func TestGoodbyeWhileShuttingDownSendsNothing(t *testing.T) {
	defer goleak.VerifyNone(t)

	session, client, transport := newTestSession(SerializationJSON)
	startDispatch(session)

	if err := client.Shutdown(); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	transport.pushMessage(t, Goodbye{Details: Dict{}, Reason: ReasonGoodbyeAndOut}, SerializationJSON)
	waitForDisconnect(t, session)

	if goodbyes := goodbyeFrames(t, transport); len(goodbyes) != 1 {
		t.Fatalf("peer's reciprocal goodbye must not be answered: %d goodbye frames", len(goodbyes))
	}
}

func TestReadErrorClosesTransportAndDisconnects(t *testing.T) {
	defer goleak.VerifyNone(t)

	session, _, transport := newTestSession(SerializationJSON)
	startDispatch(session)

	transport.pushReadError(errors.New("connection reset"))
	waitForDisconnect(t, session)

	if transport.closeWriteCount() != 1 {
		t.Fatalf("expected one best-effort close frame, got %d", transport.closeWriteCount())
	}
}

func TestPeerCloseSkipsCloseReplyFromLoop(t *testing.T) {
	defer goleak.VerifyNone(t)

	session, _, transport := newTestSession(SerializationJSON)
	startDispatch(session)

	// The transport answers a peer close itself; the loop only tears down.
	transport.pushReadError(ErrPeerClosed)
	waitForDisconnect(t, session)

	if transport.closeWriteCount() != 0 {
		t.Fatalf("loop wrote %d close frames after a peer close, want 0", transport.closeWriteCount())
	}
}

func TestUnsubscribedRemovesSubscription(t *testing.T) {
	defer goleak.VerifyNone(t)

	session, client, transport := newTestSession(SerializationJSON)
	startDispatch(session)

	handler := &recordingHandler{}
	if err := client.Subscribe("com.example.topic", handler); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	transport.pushMessage(t, Subscribed{Request: 1, Subscription: 42}, SerializationJSON)
	waitUntil(t, func() bool { return session.activeCount() == 1 }, "the subscription ack")

	if err := client.Unsubscribe("com.example.topic"); err != nil {
		t.Fatalf("unsubscribe failed: %v", err)
	}
	unsubscribe, ok := transport.lastWritten(t).(Unsubscribe)
	if !ok || unsubscribe.Subscription != 42 {
		t.Fatalf("expected UNSUBSCRIBE for subscription 42, got %+v", transport.lastWritten(t))
	}

	transport.pushMessage(t, Unsubscribed{Request: unsubscribe.Request}, SerializationJSON)
	waitUntil(t, func() bool { return session.activeCount() == 0 }, "the unsubscribe ack")

	// Whatever still arrives for the dead subscription is dropped.
	transport.pushMessage(t, EventArgs{Subscription: 42, Publication: 8, Details: Dict{}, Args: List{"late"}}, SerializationJSON)
	transport.pushMessage(t, Goodbye{Details: Dict{}, Reason: ReasonSystemShutdown}, SerializationJSON)
	waitForDisconnect(t, session)

	if handler.callCount() != 0 {
		t.Fatalf("event after unsubscribe invoked the callback %d times", handler.callCount())
	}
}

func TestHandlerMayCallBackIntoClient(t *testing.T) {
	defer goleak.VerifyNone(t)

	session, client, transport := newTestSession(SerializationJSON)
	startDispatch(session)

	unsubscribeErr := make(chan error, 1)
	handler := EventHandlerFunc(func(args List, kwargs Dict) {
		// Re-entering the client API from a callback must not deadlock on
		// any session lock.
		unsubscribeErr <- client.Unsubscribe("com.example.reentrant")
	})

	if err := client.Subscribe("com.example.reentrant", handler); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	transport.pushMessage(t, Subscribed{Request: 1, Subscription: 11}, SerializationJSON)
	transport.pushMessage(t, Event{Subscription: 11, Publication: 2, Details: Dict{}}, SerializationJSON)

	select {
	case err := <-unsubscribeErr:
		if err != nil {
			t.Fatalf("reentrant unsubscribe failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("callback deadlocked calling back into the client")
	}

	transport.pushReadError(ErrPeerClosed)
	waitForDisconnect(t, session)
}

func TestDisconnectFailsPendingAcknowledgedPublishes(t *testing.T) {
	defer goleak.VerifyNone(t)

	session, client, transport := newTestSession(SerializationJSON)
	startDispatch(session)

	result := make(chan error, 1)
	go func() {
		_, err := client.PublishAcknowledged(context.Background(), "com.example.topic", List{"x"}, nil)
		result <- err
	}()

	waitUntil(t, func() bool {
		session.publishesMu.Lock()
		defer session.publishesMu.Unlock()
		return len(session.publishes) == 1
	}, "the publish waiter registration")

	transport.pushReadError(errors.New("connection reset"))
	waitForDisconnect(t, session)

	err := <-result
	if err == nil || !strings.HasPrefix(err.Error(), "ConnectionLostError") {
		t.Fatalf("abandoned publish waiter got %v, want ConnectionLostError", err)
	}
}
