package wamp

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Client is a caller-facing handle to one established session. All methods
// are safe for concurrent use; each one writes at most a single frame, and
// frames from concurrent callers never interleave on the wire.
//
// A severed connection is not pushed to the Client: operations start
// failing and State reports ConnectionStateDisconnected once the dispatch
// loop has observed the loss.
type Client struct {
	session   *sessionState
	sessionID ID
	requestID atomic.Uint64
}

func newClient(session *sessionState, sessionID ID) *Client {
	return &Client{session: session, sessionID: sessionID}
}

// nextRequestID allocates the next client-generated request identifier.
// Identifiers start at 1 and are strictly increasing for the lifetime of
// the session, never reused.
func (c *Client) nextRequestID() ID {
	return ID(c.requestID.Add(1))
}

// SessionID returns the router-assigned session identifier.
func (c *Client) SessionID() ID {
	return c.sessionID
}

// State reports the session's lifecycle state. Failures detected by the
// background dispatch loop are observable only here and in the logs.
func (c *Client) State() ConnectionState {
	return c.session.currentState()
}

// Subscribe registers handler for events published to topic. The handler
// is recorded before the request frame is written, so the router's
// acknowledgment can never arrive ahead of the registration.
//
// Handlers run synchronously on the session's dispatch goroutine: a
// blocking handler stalls every other inbound message on this connection.
func (c *Client) Subscribe(topic URI, handler EventHandler) error {
	requestID := c.nextRequestID()
	c.session.addPending(requestID, &subscriber{topic: topic, handler: handler})

	return c.session.send(Subscribe{
		Request: requestID,
		Options: SubscribeOptions{},
		Topic:   topic,
	})
}

// Unsubscribe withdraws an acknowledged subscription to topic. The router
// confirms with an UNSUBSCRIBED message, at which point events for the
// subscription stop being delivered; until then stragglers still invoke
// the handler. Subscriptions still waiting for their SUBSCRIBED ack
// cannot be withdrawn.
func (c *Client) Unsubscribe(topic URI) error {
	subscriptionID, ok := c.session.findActiveByTopic(topic)
	if !ok {
		return NewError(ProtocolError, fmt.Sprintf("no active subscription for topic %q", topic))
	}

	requestID := c.nextRequestID()
	c.session.addUnsubscribe(requestID, subscriptionID)

	return c.session.send(Unsubscribe{
		Request:      requestID,
		Subscription: subscriptionID,
	})
}

// Publish sends args and kwargs to topic without asking the router for an
// acknowledgment. The request identifier is not retained; there is
// nothing to correlate a response to.
func (c *Client) Publish(topic URI, args List, kwargs Dict) error {
	if args == nil {
		args = List{}
	}
	if kwargs == nil {
		kwargs = Dict{}
	}

	return c.session.send(PublishKwArgs{
		Request: c.nextRequestID(),
		Options: PublishOptions{},
		Topic:   topic,
		Args:    args,
		KwArgs:  kwargs,
	})
}

// PublishAcknowledged publishes like Publish but asks the router to
// confirm receipt, blocking until the PUBLISHED confirmation, a router
// error for the request, or ctx cancellation. On success it returns the
// router-assigned publication identifier.
func (c *Client) PublishAcknowledged(ctx context.Context, topic URI, args List, kwargs Dict) (ID, error) {
	if args == nil {
		args = List{}
	}
	if kwargs == nil {
		kwargs = Dict{}
	}

	requestID := c.nextRequestID()
	ch := c.session.addPublishWaiter(requestID)

	err := c.session.send(PublishKwArgs{
		Request: requestID,
		Options: PublishOptions{Acknowledge: true},
		Topic:   topic,
		Args:    args,
		KwArgs:  kwargs,
	})
	if err != nil {
		c.session.takePublishWaiter(requestID)
		return 0, err
	}

	select {
	case result := <-ch:
		return result.publicationID, result.err
	case <-ctx.Done():
		if _, ok := c.session.takePublishWaiter(requestID); ok {
			return 0, NewError(TimedOutError, ctx.Err())
		}
		// The ack won the race against the cancellation; use it.
		result := <-ch
		return result.publicationID, result.err
	}
}

// Shutdown starts an orderly goodbye exchange. The first call on a
// Connected session sends one GOODBYE frame and moves the lifecycle to
// ShuttingDown; repeat calls and calls on a dead session are no-ops. The
// session reaches Disconnected when the dispatch loop sees the peer's
// reciprocal goodbye or the transport going away.
func (c *Client) Shutdown() error {
	return c.session.shutdown()
}
