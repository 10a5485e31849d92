package main

import (
	"fmt"
	"log"

	"github.com/fatih/color"

	"github.com/wampkit/wamp-client-go/wamp"
)

// ---------------------------------------------------------------------------
// Wire trace — one line per routed message when -trace is set. recv is what
// a client sent, send is what the router delivered or answered.
// ---------------------------------------------------------------------------

func (r *router) traceIn(session *routerSession, msg wamp.Message) {
	if !r.cfg.trace {
		return
	}
	log.Printf("fakerouter: %s session=%d %s", color.CyanString("recv"), session.id, describeMessage(msg))
}

func (r *router) traceOut(session *routerSession, msg wamp.Message) {
	if !r.cfg.trace {
		return
	}
	log.Printf("fakerouter: %s session=%d %s", color.GreenString("send"), session.id, describeMessage(msg))
}

func describeMessage(msg wamp.Message) string {
	kind := color.YellowString(string(msg.Kind()))
	switch m := msg.(type) {
	case wamp.Hello:
		return fmt.Sprintf("%s realm=%s", kind, m.Realm)
	case wamp.Welcome:
		return fmt.Sprintf("%s session=%d", kind, m.Session)
	case wamp.Abort:
		return fmt.Sprintf("%s reason=%s", kind, m.Reason)
	case wamp.Goodbye:
		return fmt.Sprintf("%s reason=%s", kind, m.Reason)
	case wamp.Error:
		return fmt.Sprintf("%s for=%s request=%d reason=%s", kind, m.RequestKind, m.Request, m.Reason)
	case wamp.Subscribe:
		return fmt.Sprintf("%s request=%d topic=%s", kind, m.Request, m.Topic)
	case wamp.Subscribed:
		return fmt.Sprintf("%s request=%d subscription=%d", kind, m.Request, m.Subscription)
	case wamp.Unsubscribe:
		return fmt.Sprintf("%s request=%d subscription=%d", kind, m.Request, m.Subscription)
	case wamp.Unsubscribed:
		return fmt.Sprintf("%s request=%d", kind, m.Request)
	case wamp.Publish:
		return fmt.Sprintf("%s request=%d topic=%s", kind, m.Request, m.Topic)
	case wamp.PublishArgs:
		return fmt.Sprintf("%s request=%d topic=%s args=%d", kind, m.Request, m.Topic, len(m.Args))
	case wamp.PublishKwArgs:
		return fmt.Sprintf("%s request=%d topic=%s args=%d kwargs=%d", kind, m.Request, m.Topic, len(m.Args), len(m.KwArgs))
	case wamp.Published:
		return fmt.Sprintf("%s request=%d publication=%d", kind, m.Request, m.Publication)
	case wamp.Event:
		return fmt.Sprintf("%s subscription=%d publication=%d", kind, m.Subscription, m.Publication)
	case wamp.EventArgs:
		return fmt.Sprintf("%s subscription=%d publication=%d args=%d", kind, m.Subscription, m.Publication, len(m.Args))
	case wamp.EventKwArgs:
		return fmt.Sprintf("%s subscription=%d publication=%d args=%d kwargs=%d", kind, m.Subscription, m.Publication, len(m.Args), len(m.KwArgs))
	default:
		return kind
	}
}
