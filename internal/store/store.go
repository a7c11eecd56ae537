package store

import "context"

// Watch is a live subscription to changes under a path, starting strictly
// after fromRev. Callers must call Close when done; Close is idempotent.
type Watch struct {
	Changes <-chan Change
	closeFn func() error
}

// Close unsubscribes the watch. Safe to call more than once.
func (w *Watch) Close() error {
	if w.closeFn == nil {
		return nil
	}
	return w.closeFn()
}

// Store is the capability set the job lifecycle engine requires of the
// document store: get/put/delete/head/post, change subscription, and
// idempotent container creation.
type Store interface {
	// Head reports whether a document exists at path.
	Head(ctx context.Context, path string) (bool, error)

	// Get reads a document and its current revision. Returns ErrNotFound
	// if nothing exists at path.
	Get(ctx context.Context, path string) (GetResult, error)

	// Put writes data at an exact path, creating it if absent and merging
	// into it if present (nested objects merge key by key). tree may be nil.
	Put(ctx context.Context, path string, data map[string]any, tree Tree) error

	// Post creates a new resource under path with a store-assigned id and
	// returns its location.
	Post(ctx context.Context, path string, data map[string]any) (PostResult, error)

	// Delete removes the document at path. Deleting an absent path is not
	// an error.
	Delete(ctx context.Context, path string) error

	// Watch subscribes to merge/delete events under path, starting after
	// fromRev (0 to receive only events from the moment of subscription).
	Watch(ctx context.Context, path string, fromRev int64) (*Watch, error)

	// Ensure idempotently materializes path and the intermediate
	// containers described by tree, without overwriting existing content.
	Ensure(ctx context.Context, path string, tree Tree) error
}
