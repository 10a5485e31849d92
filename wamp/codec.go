package wamp

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/vmihailenco/msgpack/v5"
)

// Serialization identifies one negotiated wire format. The values double
// as the WebSocket subprotocol names offered during the handshake.
type Serialization string

const (
	SerializationJSON    Serialization = "wamp.2.json"
	SerializationMsgPack Serialization = "wamp.2.msgpack"
)

// Both serializations render a message as the same self-describing
// field-name-keyed document: JSON text in a text frame, a msgpack map in a
// binary frame. The "type" field carries the MessageKind discriminant.
// This deliberately trades a few bytes per frame for self-description and
// symmetric decoders; routers expecting the positional-array layout of
// standard WAMP are not wire-compatible with it.

type helloWire struct {
	Type    MessageKind  `json:"type" msgpack:"type"`
	Realm   URI          `json:"realm" msgpack:"realm"`
	Details HelloDetails `json:"details" msgpack:"details"`
}

type welcomeWire struct {
	Type    MessageKind `json:"type" msgpack:"type"`
	Session ID          `json:"session" msgpack:"session"`
	Details Dict        `json:"details" msgpack:"details"`
}

type abortWire struct {
	Type    MessageKind `json:"type" msgpack:"type"`
	Details Dict        `json:"details" msgpack:"details"`
	Reason  URI         `json:"reason" msgpack:"reason"`
}

type goodbyeWire struct {
	Type    MessageKind `json:"type" msgpack:"type"`
	Details Dict        `json:"details" msgpack:"details"`
	Reason  URI         `json:"reason" msgpack:"reason"`
}

type errorWire struct {
	Type        MessageKind `json:"type" msgpack:"type"`
	RequestType MessageKind `json:"request_type" msgpack:"request_type"`
	Request     ID          `json:"request" msgpack:"request"`
	Details     Dict        `json:"details" msgpack:"details"`
	Error       URI         `json:"error" msgpack:"error"`
}

type subscribeWire struct {
	Type    MessageKind      `json:"type" msgpack:"type"`
	Request ID               `json:"request" msgpack:"request"`
	Options SubscribeOptions `json:"options" msgpack:"options"`
	Topic   URI              `json:"topic" msgpack:"topic"`
}

type subscribedWire struct {
	Type         MessageKind `json:"type" msgpack:"type"`
	Request      ID          `json:"request" msgpack:"request"`
	Subscription ID          `json:"subscription" msgpack:"subscription"`
}

type unsubscribeWire struct {
	Type         MessageKind `json:"type" msgpack:"type"`
	Request      ID          `json:"request" msgpack:"request"`
	Subscription ID          `json:"subscription" msgpack:"subscription"`
}

type unsubscribedWire struct {
	Type    MessageKind `json:"type" msgpack:"type"`
	Request ID          `json:"request" msgpack:"request"`
}

type publishWire struct {
	Type    MessageKind    `json:"type" msgpack:"type"`
	Request ID             `json:"request" msgpack:"request"`
	Options PublishOptions `json:"options" msgpack:"options"`
	Topic   URI            `json:"topic" msgpack:"topic"`
}

type publishArgsWire struct {
	Type    MessageKind    `json:"type" msgpack:"type"`
	Request ID             `json:"request" msgpack:"request"`
	Options PublishOptions `json:"options" msgpack:"options"`
	Topic   URI            `json:"topic" msgpack:"topic"`
	Args    List           `json:"args" msgpack:"args"`
}

type publishKwArgsWire struct {
	Type    MessageKind    `json:"type" msgpack:"type"`
	Request ID             `json:"request" msgpack:"request"`
	Options PublishOptions `json:"options" msgpack:"options"`
	Topic   URI            `json:"topic" msgpack:"topic"`
	Args    List           `json:"args" msgpack:"args"`
	KwArgs  Dict           `json:"kwargs" msgpack:"kwargs"`
}

type publishedWire struct {
	Type        MessageKind `json:"type" msgpack:"type"`
	Request     ID          `json:"request" msgpack:"request"`
	Publication ID          `json:"publication" msgpack:"publication"`
}

type eventWire struct {
	Type         MessageKind `json:"type" msgpack:"type"`
	Subscription ID          `json:"subscription" msgpack:"subscription"`
	Publication  ID          `json:"publication" msgpack:"publication"`
	Details      Dict        `json:"details" msgpack:"details"`
}

type eventArgsWire struct {
	Type         MessageKind `json:"type" msgpack:"type"`
	Subscription ID          `json:"subscription" msgpack:"subscription"`
	Publication  ID          `json:"publication" msgpack:"publication"`
	Details      Dict        `json:"details" msgpack:"details"`
	Args         List        `json:"args" msgpack:"args"`
}

type eventKwArgsWire struct {
	Type         MessageKind `json:"type" msgpack:"type"`
	Subscription ID          `json:"subscription" msgpack:"subscription"`
	Publication  ID          `json:"publication" msgpack:"publication"`
	Details      Dict        `json:"details" msgpack:"details"`
	Args         List        `json:"args" msgpack:"args"`
	KwArgs       Dict        `json:"kwargs" msgpack:"kwargs"`
}

// wireOf maps a Message to its wire document. One case per kind; the
// decode switch in messageOf must mirror every case here.
func wireOf(msg Message) (interface{}, error) {
	switch m := msg.(type) {
	case Hello:
		return helloWire{Type: KindHello, Realm: m.Realm, Details: m.Details}, nil
	case Welcome:
		return welcomeWire{Type: KindWelcome, Session: m.Session, Details: m.Details}, nil
	case Abort:
		return abortWire{Type: KindAbort, Details: m.Details, Reason: m.Reason}, nil
	case Goodbye:
		return goodbyeWire{Type: KindGoodbye, Details: m.Details, Reason: m.Reason}, nil
	case Error:
		return errorWire{Type: KindError, RequestType: m.RequestKind, Request: m.Request, Details: m.Details, Error: m.Reason}, nil
	case Subscribe:
		return subscribeWire{Type: KindSubscribe, Request: m.Request, Options: m.Options, Topic: m.Topic}, nil
	case Subscribed:
		return subscribedWire{Type: KindSubscribed, Request: m.Request, Subscription: m.Subscription}, nil
	case Unsubscribe:
		return unsubscribeWire{Type: KindUnsubscribe, Request: m.Request, Subscription: m.Subscription}, nil
	case Unsubscribed:
		return unsubscribedWire{Type: KindUnsubscribed, Request: m.Request}, nil
	case Publish:
		return publishWire{Type: KindPublish, Request: m.Request, Options: m.Options, Topic: m.Topic}, nil
	case PublishArgs:
		return publishArgsWire{Type: KindPublishArgs, Request: m.Request, Options: m.Options, Topic: m.Topic, Args: m.Args}, nil
	case PublishKwArgs:
		return publishKwArgsWire{Type: KindPublishKwArgs, Request: m.Request, Options: m.Options, Topic: m.Topic, Args: m.Args, KwArgs: m.KwArgs}, nil
	case Published:
		return publishedWire{Type: KindPublished, Request: m.Request, Publication: m.Publication}, nil
	case Event:
		return eventWire{Type: KindEvent, Subscription: m.Subscription, Publication: m.Publication, Details: m.Details}, nil
	case EventArgs:
		return eventArgsWire{Type: KindEventArgs, Subscription: m.Subscription, Publication: m.Publication, Details: m.Details, Args: m.Args}, nil
	case EventKwArgs:
		return eventKwArgsWire{Type: KindEventKwArgs, Subscription: m.Subscription, Publication: m.Publication, Details: m.Details, Args: m.Args, KwArgs: m.KwArgs}, nil
	default:
		return nil, fmt.Errorf("unencodable message type %T", msg)
	}
}

// messageOf decodes the document behind unmarshal into the Message for
// kind. One case per kind, mirroring wireOf.
func messageOf(kind MessageKind, unmarshal func(into interface{}) error) (Message, error) {
	switch kind {
	case KindHello:
		var w helloWire
		if err := unmarshal(&w); err != nil {
			return nil, err
		}
		return Hello{Realm: w.Realm, Details: w.Details}, nil
	case KindWelcome:
		var w welcomeWire
		if err := unmarshal(&w); err != nil {
			return nil, err
		}
		return Welcome{Session: w.Session, Details: w.Details}, nil
	case KindAbort:
		var w abortWire
		if err := unmarshal(&w); err != nil {
			return nil, err
		}
		return Abort{Details: w.Details, Reason: w.Reason}, nil
	case KindGoodbye:
		var w goodbyeWire
		if err := unmarshal(&w); err != nil {
			return nil, err
		}
		return Goodbye{Details: w.Details, Reason: w.Reason}, nil
	case KindError:
		var w errorWire
		if err := unmarshal(&w); err != nil {
			return nil, err
		}
		return Error{RequestKind: w.RequestType, Request: w.Request, Details: w.Details, Reason: w.Error}, nil
	case KindSubscribe:
		var w subscribeWire
		if err := unmarshal(&w); err != nil {
			return nil, err
		}
		return Subscribe{Request: w.Request, Options: w.Options, Topic: w.Topic}, nil
	case KindSubscribed:
		var w subscribedWire
		if err := unmarshal(&w); err != nil {
			return nil, err
		}
		return Subscribed{Request: w.Request, Subscription: w.Subscription}, nil
	case KindUnsubscribe:
		var w unsubscribeWire
		if err := unmarshal(&w); err != nil {
			return nil, err
		}
		return Unsubscribe{Request: w.Request, Subscription: w.Subscription}, nil
	case KindUnsubscribed:
		var w unsubscribedWire
		if err := unmarshal(&w); err != nil {
			return nil, err
		}
		return Unsubscribed{Request: w.Request}, nil
	case KindPublish:
		var w publishWire
		if err := unmarshal(&w); err != nil {
			return nil, err
		}
		return Publish{Request: w.Request, Options: w.Options, Topic: w.Topic}, nil
	case KindPublishArgs:
		var w publishArgsWire
		if err := unmarshal(&w); err != nil {
			return nil, err
		}
		return PublishArgs{Request: w.Request, Options: w.Options, Topic: w.Topic, Args: w.Args}, nil
	case KindPublishKwArgs:
		var w publishKwArgsWire
		if err := unmarshal(&w); err != nil {
			return nil, err
		}
		return PublishKwArgs{Request: w.Request, Options: w.Options, Topic: w.Topic, Args: w.Args, KwArgs: w.KwArgs}, nil
	case KindPublished:
		var w publishedWire
		if err := unmarshal(&w); err != nil {
			return nil, err
		}
		return Published{Request: w.Request, Publication: w.Publication}, nil
	case KindEvent:
		var w eventWire
		if err := unmarshal(&w); err != nil {
			return nil, err
		}
		return Event{Subscription: w.Subscription, Publication: w.Publication, Details: w.Details}, nil
	case KindEventArgs:
		var w eventArgsWire
		if err := unmarshal(&w); err != nil {
			return nil, err
		}
		return EventArgs{Subscription: w.Subscription, Publication: w.Publication, Details: w.Details, Args: w.Args}, nil
	case KindEventKwArgs:
		var w eventKwArgsWire
		if err := unmarshal(&w); err != nil {
			return nil, err
		}
		return EventKwArgs{Subscription: w.Subscription, Publication: w.Publication, Details: w.Details, Args: w.Args, KwArgs: w.KwArgs}, nil
	default:
		return nil, fmt.Errorf("unknown message type %q", kind)
	}
}

// EncodeMessage renders msg as one frame in the given serialization. The
// serialization is a pure function of the session's negotiated tag: the
// msgpack tag selects binary framing, anything else falls back to text.
func EncodeMessage(msg Message, serialization Serialization) (*Frame, error) {
	wire, err := wireOf(msg)
	if err != nil {
		return nil, NewError(ProtocolError, err)
	}

	if serialization == SerializationMsgPack {
		payload, err := msgpack.Marshal(wire)
		if err != nil {
			return nil, NewError(MsgPackError, err)
		}
		return &Frame{Kind: FrameBinary, Payload: payload}, nil
	}

	payload, err := json.Marshal(wire)
	if err != nil {
		return nil, NewError(JSONError, err)
	}
	return &Frame{Kind: FrameText, Payload: payload}, nil
}

// DecodeFrame parses one data frame into a Message. The frame's own kind
// selects the format, not the negotiated tag: either party's frames are
// self-identifying by opcode.
func DecodeFrame(frame *Frame) (Message, error) {
	switch frame.Kind {
	case FrameText:
		if !utf8.Valid(frame.Payload) {
			return nil, NewError(MalformedDataError, "text frame is not valid UTF-8")
		}
		return decodePayload(frame.Payload, json.Unmarshal, JSONError)
	case FrameBinary:
		return decodePayload(frame.Payload, msgpack.Unmarshal, MsgPackError)
	default:
		return nil, NewError(ProtocolError, fmt.Sprintf("unsupported frame kind %d", frame.Kind))
	}
}

func decodePayload(payload []byte, unmarshal func([]byte, interface{}) error, errorCode int) (Message, error) {
	var probe struct {
		Type MessageKind `json:"type" msgpack:"type"`
	}
	if err := unmarshal(payload, &probe); err != nil {
		return nil, NewError(errorCode, err)
	}

	msg, err := messageOf(probe.Type, func(into interface{}) error {
		return unmarshal(payload, into)
	})
	if err != nil {
		return nil, NewError(errorCode, err)
	}
	return msg, nil
}
