package wamp

// Reason URIs used in GOODBYE, ABORT, and ERROR messages.
const (
	// ReasonSystemShutdown is sent by the side initiating an orderly
	// shutdown.
	ReasonSystemShutdown URI = "wamp.close.system_shutdown"

	// ReasonGoodbyeAndOut reciprocates a peer's goodbye.
	ReasonGoodbyeAndOut URI = "wamp.close.goodbye_and_out"

	// ReasonNoSuchRealm aborts a handshake naming an unknown realm.
	ReasonNoSuchRealm URI = "wamp.error.no_such_realm"

	ReasonNotAuthorized      URI = "wamp.error.not_authorized"
	ReasonInvalidURI         URI = "wamp.error.invalid_uri"
	ReasonNoSuchSubscription URI = "wamp.error.no_such_subscription"
)

// HelloDetails advertises the client's capabilities at handshake time.
type HelloDetails struct {
	Roles ClientRoles `json:"roles" msgpack:"roles"`
}

// ClientRoles names the protocol roles this client implements. Only the
// publisher and subscriber roles are supported; the RPC roles are out of
// scope.
type ClientRoles struct {
	Publisher  Role `json:"publisher" msgpack:"publisher"`
	Subscriber Role `json:"subscriber" msgpack:"subscriber"`
}

// Role carries per-role feature flags. No features are advertised today.
type Role struct{}

// defaultHelloDetails is what every Connect sends.
func defaultHelloDetails() HelloDetails {
	return HelloDetails{Roles: ClientRoles{}}
}

// SubscribeOptions qualifies a subscribe request. No options are defined
// today; the record is kept on the wire for forward compatibility.
type SubscribeOptions struct{}

// PublishOptions qualifies a publish request.
type PublishOptions struct {
	// Acknowledge asks the router to confirm receipt with a PUBLISHED
	// message correlated by request identifier.
	Acknowledge bool `json:"acknowledge" msgpack:"acknowledge"`
}
