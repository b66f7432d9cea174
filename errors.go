package cancelable

import "errors"

// InvalidStateError is returned from [*Proxy.Attach] and [*Proxy.Listen]
// when the proxy's downstream cannot accept another listener,
// i.e. a second attach on a proxy over a single-subscription producer.
type InvalidStateError struct {
	Reason string
}

func (e InvalidStateError) Error() string {
	return "invalid state: " + e.Reason
}

// IsInvalidState reports whether err is or wraps an [InvalidStateError].
func IsInvalidState(err error) bool {
	var ise InvalidStateError
	return errors.As(err, &ise)
}
