package port

import "context"

// Locker serializes work on a set of keys. It only reduces wasted work between
// callers sharing the lock backend; correctness never depends on it.
type Locker interface {
	// Lock acquires every key in lexicographic order and returns a function
	// releasing them in reverse order.
	Lock(ctx context.Context, keys ...string) (unlock func(), err error)
}
