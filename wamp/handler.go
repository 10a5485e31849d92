package wamp

// EventHandler receives the events delivered for one subscription. Args
// and kwargs are never nil; an event without a payload produces an empty
// List and Dict.
type EventHandler interface {
	HandleEvent(args List, kwargs Dict)
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(args List, kwargs Dict)

func (f EventHandlerFunc) HandleEvent(args List, kwargs Dict) { f(args, kwargs) }
