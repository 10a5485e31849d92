package wamp

// URI names a realm, a topic, or a protocol-defined reason. Equality is
// structural.
type URI string

// ID is an unsigned integer naming a session, a request, or a subscription.
// Request identifiers are client-generated and strictly increasing within a
// session; session and subscription identifiers are router-assigned and
// opaque.
type ID uint64

// List holds ordered, dynamically typed event or publish arguments.
type List []interface{}

// Dict holds keyword event or publish arguments keyed by string. Key order
// is not significant.
type Dict map[string]interface{}

// MessageKind is the discriminant of the message union. Its value is also
// the wire-level "type" field in both serializations.
type MessageKind string

const (
	KindHello         MessageKind = "HELLO"
	KindWelcome       MessageKind = "WELCOME"
	KindAbort         MessageKind = "ABORT"
	KindGoodbye       MessageKind = "GOODBYE"
	KindError         MessageKind = "ERROR"
	KindSubscribe     MessageKind = "SUBSCRIBE"
	KindSubscribed    MessageKind = "SUBSCRIBED"
	KindUnsubscribe   MessageKind = "UNSUBSCRIBE"
	KindUnsubscribed  MessageKind = "UNSUBSCRIBED"
	KindPublish       MessageKind = "PUBLISH"
	KindPublishArgs   MessageKind = "PUBLISH_ARGS"
	KindPublishKwArgs MessageKind = "PUBLISH_KWARGS"
	KindPublished     MessageKind = "PUBLISHED"
	KindEvent         MessageKind = "EVENT"
	KindEventArgs     MessageKind = "EVENT_ARGS"
	KindEventKwArgs   MessageKind = "EVENT_KWARGS"
)

// Message is one protocol message. The implementations below form the
// closed set of kinds the codec understands; adding a kind means extending
// the encode and decode switches in codec.go symmetrically.
type Message interface {
	Kind() MessageKind
}

// Hello opens a session on a realm and advertises the client's roles.
type Hello struct {
	Realm   URI
	Details HelloDetails
}

// Welcome accepts a Hello and assigns the session identifier.
type Welcome struct {
	Session ID
	Details Dict
}

// Abort rejects a session before it is established.
type Abort struct {
	Details Dict
	Reason  URI
}

// Goodbye closes an established session. Both sides send one: the
// initiator with its reason, the peer reciprocating with GoodbyeAndOut.
type Goodbye struct {
	Details Dict
	Reason  URI
}

// Error reports a failed request. RequestKind echoes the kind of the
// request that failed and Request its identifier.
type Error struct {
	RequestKind MessageKind
	Request     ID
	Details     Dict
	Reason      URI
}

// Subscribe asks the router to deliver events published to Topic.
type Subscribe struct {
	Request ID
	Options SubscribeOptions
	Topic   URI
}

// Subscribed acknowledges a Subscribe and assigns the subscription
// identifier used by subsequent events.
type Subscribed struct {
	Request      ID
	Subscription ID
}

// Unsubscribe withdraws an acknowledged subscription.
type Unsubscribe struct {
	Request      ID
	Subscription ID
}

// Unsubscribed acknowledges an Unsubscribe.
type Unsubscribed struct {
	Request ID
}

// Publish sends an event with no payload to Topic.
type Publish struct {
	Request ID
	Options PublishOptions
	Topic   URI
}

// PublishArgs sends an event with positional arguments to Topic.
type PublishArgs struct {
	Request ID
	Options PublishOptions
	Topic   URI
	Args    List
}

// PublishKwArgs sends an event with positional and keyword arguments to
// Topic.
type PublishKwArgs struct {
	Request ID
	Options PublishOptions
	Topic   URI
	Args    List
	KwArgs  Dict
}

// Published confirms receipt of a publish that asked for acknowledgment.
type Published struct {
	Request     ID
	Publication ID
}

// Event delivers a payload-free publication to a subscription.
type Event struct {
	Subscription ID
	Publication  ID
	Details      Dict
}

// EventArgs delivers a publication with positional arguments.
type EventArgs struct {
	Subscription ID
	Publication  ID
	Details      Dict
	Args         List
}

// EventKwArgs delivers a publication with positional and keyword
// arguments.
type EventKwArgs struct {
	Subscription ID
	Publication  ID
	Details      Dict
	Args         List
	KwArgs       Dict
}

func (Hello) Kind() MessageKind         { return KindHello }
func (Welcome) Kind() MessageKind       { return KindWelcome }
func (Abort) Kind() MessageKind         { return KindAbort }
func (Goodbye) Kind() MessageKind       { return KindGoodbye }
func (Error) Kind() MessageKind         { return KindError }
func (Subscribe) Kind() MessageKind     { return KindSubscribe }
func (Subscribed) Kind() MessageKind    { return KindSubscribed }
func (Unsubscribe) Kind() MessageKind   { return KindUnsubscribe }
func (Unsubscribed) Kind() MessageKind  { return KindUnsubscribed }
func (Publish) Kind() MessageKind       { return KindPublish }
func (PublishArgs) Kind() MessageKind   { return KindPublishArgs }
func (PublishKwArgs) Kind() MessageKind { return KindPublishKwArgs }
func (Published) Kind() MessageKind     { return KindPublished }
func (Event) Kind() MessageKind         { return KindEvent }
func (EventArgs) Kind() MessageKind     { return KindEventArgs }
func (EventKwArgs) Kind() MessageKind   { return KindEventKwArgs }
