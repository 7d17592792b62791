package queue

import "context"

// Job is one registered handler on the background queue. Workers route each
// message to the job whose Type matches.
type Job interface {
	// Name identifies the job in logs.
	Name() string

	// Type is the message type this job consumes.
	Type() string

	// Handle processes one message payload.
	Handle(ctx context.Context, payload interface{}) error
}
