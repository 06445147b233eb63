package command

import "github.com/laborio/questing-together/internal/story/event"

// Decision represents the pure outcome of handling a command.
type Decision struct {
	Events     []event.Event
	Rejections []Rejection
	// NoOp marks an idempotent duplicate that was accepted without
	// emitting events (duplicate action, vote, or continue ack).
	NoOp bool
}

// Rejection captures a domain-level reason a command was declined.
type Rejection struct {
	Code    string
	Message string
}

// Accept returns a decision that emits the provided events.
func Accept(events ...event.Event) Decision {
	return Decision{Events: append([]event.Event(nil), events...)}
}

// AcceptNoOp returns a decision for an idempotent duplicate intent.
func AcceptNoOp() Decision {
	return Decision{NoOp: true}
}

// Reject returns a decision that carries the provided rejections.
func Reject(rejections ...Rejection) Decision {
	return Decision{Rejections: append([]Rejection(nil), rejections...)}
}

// Rejected reports whether the decision declined the command.
func (d Decision) Rejected() bool {
	return len(d.Rejections) > 0
}
