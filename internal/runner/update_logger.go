package runner

import (
	"context"
	"sync"
	"time"

	"joblifecycle/internal/idgen"
	"joblifecycle/internal/store"
)

// updateLogger implements worker.UpdateLogger, posting one append to the
// job document's updates mapping per call. It holds a mutex because a
// worker may call its Context's Log from more than one goroutine; §5
// only guarantees per-Runner serialization of the underlying writes, not
// that a worker won't attempt concurrent calls.
type updateLogger struct {
	mu    sync.Mutex
	store store.Store
	path  string

	enableDebug bool
	enableTrace bool
}

func (l *updateLogger) Info(ctx context.Context, status string, meta any) error {
	return l.post(ctx, status, meta)
}

func (l *updateLogger) Error(ctx context.Context, status string, meta any) error {
	return l.post(ctx, status, meta)
}

func (l *updateLogger) Debug(ctx context.Context, status string, meta any) error {
	if !l.enableDebug {
		return nil
	}
	return l.post(ctx, status, meta)
}

func (l *updateLogger) Trace(ctx context.Context, status string, meta any) error {
	if !l.enableTrace {
		return nil
	}
	return l.post(ctx, status, meta)
}

func (l *updateLogger) post(ctx context.Context, status string, meta any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := idgen.NewUpdateKey()
	doc := map[string]any{
		"updates": map[string]any{
			key: map[string]any{
				"status": status,
				"time":   time.Now().UTC().Format(time.RFC3339Nano),
				"meta":   meta,
			},
		},
	}
	return l.store.Put(ctx, l.path, doc, nil)
}
