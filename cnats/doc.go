// Package cnats contains a [cancelable.Producer] backed by a NATS subject.
//
// A [Subject] is a broadcast producer:
// each upstream subscription is an independent NATS subscription,
// and every message published on the subject while it is active
// is decoded and delivered.
//
// Wrapping a Subject in a [cancelable.Proxy] lets several local listeners
// share one NATS subscription, which is released on cancel.
package cnats
