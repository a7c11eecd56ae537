package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store used by unit tests for the queue, runner,
// and report packages, so they never require a live Postgres or Redis.
// It satisfies the same Store interface as Postgres, the way
// store/memory satisfies the same composite interface as store/postgres
// in the rest of the pack.
type Memory struct {
	mu   sync.Mutex
	docs map[string]memDoc
	rev  int64
	subs map[string][]chan Change
}

type memDoc struct {
	data map[string]any
	rev  int64
}

// NewMemory builds an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		docs: make(map[string]memDoc),
		subs: make(map[string][]chan Change),
	}
}

func (m *Memory) Head(_ context.Context, path string) (bool, error) {
	path = normalize(path)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[path]; ok {
		return true, nil
	}
	prefix := path + "/"
	for p := range m.docs {
		if strings.HasPrefix(p, prefix) {
			return true, nil
		}
	}
	return false, nil
}

// Get returns the document at path shallow-merged with its immediate
// children keyed by their own last path segment, mirroring an OADA list
// GET: a container that was never itself Put still reads back as the
// aggregate of whatever was Put under it.
func (m *Memory) Get(_ context.Context, path string) (GetResult, error) {
	path = normalize(path)
	m.mu.Lock()
	defer m.mu.Unlock()

	data := map[string]any{}
	var rev int64
	found := false
	if d, ok := m.docs[path]; ok {
		found = true
		data = cloneMap(d.data)
		rev = d.rev
	}

	prefix := path + "/"
	for p, d := range m.docs {
		rest, ok := strings.CutPrefix(p, prefix)
		if !ok || strings.Contains(rest, "/") {
			continue
		}
		found = true
		data[rest] = cloneMap(d.data)
		if d.rev > rev {
			rev = d.rev
		}
	}

	if !found {
		return GetResult{}, ErrNotFound
	}
	return GetResult{Data: data, Rev: rev}, nil
}

func (m *Memory) Put(_ context.Context, path string, data map[string]any, _ Tree) error {
	path = normalize(path)
	m.mu.Lock()
	m.rev++
	rev := m.rev
	existing, ok := m.docs[path]
	merged := data
	if ok {
		merged = deepMerge(existing.data, data)
	}
	m.docs[path] = memDoc{data: merged, rev: rev}
	parent := parentOf(path)
	segment := lastSegment(path)
	body := cloneMap(merged)
	m.mu.Unlock()

	m.publish(parent, Change{Path: path, Type: ChangeMerge, Body: map[string]any{segment: body}, Rev: rev, Time: time.Now().UTC()})
	return nil
}

func (m *Memory) Post(ctx context.Context, path string, data map[string]any) (PostResult, error) {
	id := uuid.New().String()
	loc := normalize(path) + "/" + id
	if data == nil {
		data = map[string]any{}
	}
	data["_id"] = id
	if err := m.Put(ctx, loc, data, nil); err != nil {
		return PostResult{}, err
	}
	return PostResult{Location: loc}, nil
}

func (m *Memory) Delete(_ context.Context, path string) error {
	path = normalize(path)
	m.mu.Lock()
	if _, ok := m.docs[path]; !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.docs, path)
	m.rev++
	rev := m.rev
	parent := parentOf(path)
	segment := lastSegment(path)
	m.mu.Unlock()

	m.publish(parent, Change{Path: path, Type: ChangeDelete, Body: map[string]any{segment: nil}, Rev: rev, Time: time.Now().UTC()})
	return nil
}

func (m *Memory) Watch(ctx context.Context, path string, fromRev int64) (*Watch, error) {
	path = normalize(path)
	raw := make(chan Change, 256)
	m.mu.Lock()
	m.subs[path] = append(m.subs[path], raw)
	m.mu.Unlock()

	closeFn := func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		subs := m.subs[path]
		for i, c := range subs {
			if c == raw {
				m.subs[path] = append(subs[:i], subs[i+1:]...)
				close(raw)
				break
			}
		}
		return nil
	}

	if fromRev <= 0 {
		return &Watch{Changes: raw, closeFn: closeFn}, nil
	}

	filtered := make(chan Change, 256)
	go func() {
		defer close(filtered)
		for {
			select {
			case <-ctx.Done():
				return
			case ch, ok := <-raw:
				if !ok {
					return
				}
				if ch.Rev <= fromRev {
					continue
				}
				select {
				case filtered <- ch:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return &Watch{Changes: filtered, closeFn: closeFn}, nil
}

func (m *Memory) Ensure(_ context.Context, path string, tree Tree) error {
	path = normalize(path)
	var created []Change
	m.mu.Lock()
	err := m.ensureWalkLocked(path, tree, &created)
	m.mu.Unlock()
	for _, ch := range created {
		m.publish(parentOf(ch.Path), ch)
	}
	return err
}

func (m *Memory) ensureWalkLocked(path string, node Tree, created *[]Change) error {
	if node == nil {
		return nil
	}
	if _, ok := m.docs[path]; !ok {
		m.rev++
		m.docs[path] = memDoc{data: map[string]any{}, rev: m.rev}
		*created = append(*created, Change{Path: path, Type: ChangeMerge, Body: map[string]any{lastSegment(path): map[string]any{}}, Rev: m.rev, Time: time.Now().UTC()})
	}
	for key, child := range node {
		if key == "_type" || key == "*" {
			continue
		}
		childTree, ok := child.(Tree)
		if !ok {
			continue
		}
		if err := m.ensureWalkLocked(path+"/"+key, childTree, created); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) publish(parent string, ch Change) {
	m.mu.Lock()
	subs := append([]chan Change{}, m.subs[parent]...)
	m.mu.Unlock()
	for _, s := range subs {
		select {
		case s <- ch:
		default: // a full subscriber buffer must never block writers
		}
	}
}

func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if nested, ok := v.(map[string]any); ok {
			out[k] = cloneMap(nested)
		} else {
			out[k] = v
		}
	}
	return out
}
