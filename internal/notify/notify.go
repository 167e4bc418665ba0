// Package notify dispatches fire-and-forget change events after a commit.
// Dispatch failures are logged and never surfaced to the mutating call: the
// data change is already durable by the time an event is published.
package notify

import "context"

// Action is what happened to the entity.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

// Event describes one committed change.
type Event struct {
	Action    Action `json:"action"`
	Entity    string `json:"entity"`
	Type      string `json:"type,omitempty"`
	ContextID string `json:"contextId"`
	ID        string `json:"id"`
	Actor     string `json:"actor,omitempty"`
}

// Dispatcher fans committed changes out to interested parties.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Dispatch(context.Context, Event) {}
