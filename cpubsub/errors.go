package cpubsub

import "errors"

// ErrAlreadySubscribed is returned when subscribing
// to a single-subscription producer more than once.
var ErrAlreadySubscribed = errors.New("producer already subscribed")
