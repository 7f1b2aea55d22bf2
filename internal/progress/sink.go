package progress

import (
	"context"

	"github.com/google/uuid"
)

// Sink consumes batches of progress events. Implementations must be safe for
// repeated calls, honor ctx deadlines, and may be invoked concurrently.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events.
type Emitter interface {
	Emit(evt Event)
}

type discard struct{}

func (discard) Emit(Event) {}

// Discard is an Emitter that drops every event.
var Discard Emitter = discard{}

type batchIDKey struct{}

// WithBatchID returns a context carrying the batch identifier used to stamp
// events emitted while serving it.
func WithBatchID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, batchIDKey{}, id)
}

// BatchIDFrom returns the batch identifier stored in ctx, or uuid.Nil.
func BatchIDFrom(ctx context.Context) uuid.UUID {
	id, ok := ctx.Value(batchIDKey{}).(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return id
}
