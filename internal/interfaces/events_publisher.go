package interfaces

import "context"

// EventPublisher delivers domain events. Implementations must be safe for concurrent use.
type EventPublisher interface {
	Publish(ctx context.Context, topic, key string, event any) error
}

// Locker serializes work on a key across callers.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}
