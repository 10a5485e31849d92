package wamp

import "fmt"

const (
	AddressError = iota

	TransportError

	ConnectionLostError

	UnexpectedMessageError

	JSONError

	MsgPackError

	MalformedDataError

	SendError

	ProtocolError

	NotAuthorizedError

	InvalidURIError

	NoSuchSubscriptionError

	TimedOutError

	UnknownError
)

func errorReasonToError(reason URI) error {
	err := UnknownError

	switch reason {
	case ReasonNotAuthorized:
		err = NotAuthorizedError
	case ReasonInvalidURI:
		err = InvalidURIError
	case ReasonNoSuchSubscription:
		err = NoSuchSubscriptionError
	}

	return NewError(err, reason)
}

func NewError(errorCode int, message ...interface{}) error {
	var errorName string

	switch errorCode {
	case AddressError:
		errorName = "AddressError"
	case TransportError:
		errorName = "TransportError"
	case ConnectionLostError:
		errorName = "ConnectionLostError"
	case UnexpectedMessageError:
		errorName = "UnexpectedMessageError"
	case JSONError:
		errorName = "JSONError"
	case MsgPackError:
		errorName = "MsgPackError"
	case MalformedDataError:
		errorName = "MalformedDataError"
	case SendError:
		errorName = "SendError"
	case ProtocolError:
		errorName = "ProtocolError"
	case NotAuthorizedError:
		errorName = "NotAuthorizedError"
	case InvalidURIError:
		errorName = "InvalidURIError"
	case NoSuchSubscriptionError:
		errorName = "NoSuchSubscriptionError"
	case TimedOutError:
		errorName = "TimedOutError"
	default:
		errorName = "UnknownError"
	}

	if len(message) > 0 {
		return fmt.Errorf("%s: %s", errorName, message[0])
	}

	return fmt.Errorf("%s", errorName)
}
