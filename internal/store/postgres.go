package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is a Store backed by a single JSONB-keyed-by-path table, with
// change notification delegated to a Notifier (normally the Redis pub/sub
// implementation in redis_watch.go). It plays the same role the teacher's
// internal/store.Store plays for job rows, generalized from one fixed
// "jobs" table to an arbitrary hierarchical document tree.
type Postgres struct {
	pool     *pgxpool.Pool
	notifier Notifier
}

// Notifier publishes change events for watchers. Implemented by the Redis
// pub/sub backend; a no-op Notifier is valid for tests that don't watch.
type Notifier interface {
	Publish(ctx context.Context, parentPath string, ch Change) error
	Subscribe(ctx context.Context, parentPath string) (*Watch, error)
}

// NewPostgres connects to Postgres and wires the given notifier for change
// events. Call Migrate before first use.
func NewPostgres(ctx context.Context, dsn string, notifier Notifier) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Postgres{pool: pool, notifier: notifier}, nil
}

// Close releases the pool.
func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// Migrate creates the documents table and its revision sequence.
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, schemaSQL)
	if err != nil {
		return fmt.Errorf("migrate store schema: %w", err)
	}
	return nil
}

const schemaSQL = `
CREATE SEQUENCE IF NOT EXISTS documents_rev_seq;

CREATE TABLE IF NOT EXISTS documents (
	path TEXT PRIMARY KEY,
	data JSONB NOT NULL DEFAULT '{}'::jsonb,
	media_type TEXT,
	rev BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

func normalize(path string) string {
	return strings.Trim(path, "/")
}

func parentOf(path string) string {
	p := normalize(path)
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return ""
	}
	return p[:i]
}

func lastSegment(path string) string {
	p := normalize(path)
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return p
	}
	return p[i+1:]
}

// Head reports whether a document exists at path, or any document exists
// under it as an immediate or deeper child.
func (p *Postgres) Head(ctx context.Context, path string) (bool, error) {
	path = normalize(path)
	var exists bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM documents WHERE path = $1 OR path LIKE $1 || '/%')`, path,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("head %s: %w", path, err)
	}
	return exists, nil
}

// Get reads the document at path shallow-merged with its immediate
// children keyed by their own last path segment, mirroring an OADA list
// GET: a container path that was never itself Put still reads back as
// the aggregate of whatever was Put under it.
func (p *Postgres) Get(ctx context.Context, path string) (GetResult, error) {
	path = normalize(path)
	data := map[string]any{}
	var rev int64
	found := false

	var raw []byte
	err := p.pool.QueryRow(ctx, `SELECT data, rev FROM documents WHERE path = $1`, path).Scan(&raw, &rev)
	switch {
	case err == nil:
		found = true
		if err := json.Unmarshal(raw, &data); err != nil {
			return GetResult{}, fmt.Errorf("decode %s: %w", path, err)
		}
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return GetResult{}, fmt.Errorf("get %s: %w", path, err)
	}

	prefix := path + "/"
	rows, err := p.pool.Query(ctx, `SELECT path, data, rev FROM documents WHERE path LIKE $1 || '%'`, prefix)
	if err != nil {
		return GetResult{}, fmt.Errorf("get %s: list children: %w", path, err)
	}
	defer rows.Close()
	for rows.Next() {
		var childPath string
		var childRaw []byte
		var childRev int64
		if err := rows.Scan(&childPath, &childRaw, &childRev); err != nil {
			return GetResult{}, fmt.Errorf("get %s: scan child: %w", path, err)
		}
		rest := strings.TrimPrefix(childPath, prefix)
		if strings.Contains(rest, "/") {
			continue // only immediate children aggregate into this level
		}
		found = true
		var childData map[string]any
		if err := json.Unmarshal(childRaw, &childData); err != nil {
			return GetResult{}, fmt.Errorf("get %s: decode child %s: %w", path, childPath, err)
		}
		data[rest] = childData
		if childRev > rev {
			rev = childRev
		}
	}
	if err := rows.Err(); err != nil {
		return GetResult{}, fmt.Errorf("get %s: iterate children: %w", path, err)
	}

	if !found {
		return GetResult{}, ErrNotFound
	}
	return GetResult{Data: data, Rev: rev}, nil
}

// Put writes data at path, shallow-merging recursively into any existing
// document rather than overwriting unrelated sibling keys.
func (p *Postgres) Put(ctx context.Context, path string, data map[string]any, tree Tree) error {
	path = normalize(path)
	mediaType := ""
	if tree != nil {
		if mt, ok := tree["_type"].(string); ok {
			mediaType = mt
		}
	}

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("put %s: begin tx: %w", path, err)
	}
	defer tx.Rollback(ctx)

	var existing []byte
	err = tx.QueryRow(ctx, `SELECT data FROM documents WHERE path = $1 FOR UPDATE`, path).Scan(&existing)
	merged := data
	if err == nil {
		var current map[string]any
		if unmarshalErr := json.Unmarshal(existing, &current); unmarshalErr == nil {
			merged = deepMerge(current, data)
		}
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("put %s: read existing: %w", path, err)
	}

	encoded, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("put %s: encode: %w", path, err)
	}

	var rev int64
	err = tx.QueryRow(ctx, `
		INSERT INTO documents (path, data, media_type, rev, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), nextval('documents_rev_seq'), now())
		ON CONFLICT (path) DO UPDATE SET
			data = $2,
			media_type = COALESCE(NULLIF($3, ''), documents.media_type),
			rev = nextval('documents_rev_seq'),
			updated_at = now()
		RETURNING rev
	`, path, encoded, mediaType).Scan(&rev)
	if err != nil {
		return fmt.Errorf("put %s: upsert: %w", path, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("put %s: commit: %w", path, err)
	}

	return p.notify(ctx, path, merged, rev, ChangeMerge)
}

// Post creates a new resource under path with a store-assigned id.
func (p *Postgres) Post(ctx context.Context, path string, data map[string]any) (PostResult, error) {
	id := uuid.New().String()
	loc := normalize(path) + "/" + id
	if data == nil {
		data = map[string]any{}
	}
	data["_id"] = id
	if err := p.Put(ctx, loc, data, nil); err != nil {
		return PostResult{}, err
	}
	return PostResult{Location: loc}, nil
}

// Delete removes the document at path. Deleting an absent path is a no-op.
func (p *Postgres) Delete(ctx context.Context, path string) error {
	path = normalize(path)
	var rev int64
	err := p.pool.QueryRow(ctx, `DELETE FROM documents WHERE path = $1 RETURNING nextval('documents_rev_seq')`, path).Scan(&rev)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return p.notify(ctx, path, nil, rev, ChangeDelete)
}

// Watch subscribes to merge/delete events under path, filtering out
// anything already captured by a Get performed at fromRev.
func (p *Postgres) Watch(ctx context.Context, path string, fromRev int64) (*Watch, error) {
	if p.notifier == nil {
		return nil, fmt.Errorf("watch %s: no notifier configured", path)
	}
	raw, err := p.notifier.Subscribe(ctx, normalize(path))
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	if fromRev <= 0 {
		return raw, nil
	}
	filtered := make(chan Change, 64)
	go func() {
		defer close(filtered)
		for ch := range raw.Changes {
			if ch.Rev <= fromRev {
				continue
			}
			filtered <- ch
		}
	}()
	return &Watch{Changes: filtered, closeFn: raw.Close}, nil
}

// Ensure idempotently materializes path and the containers tree describes,
// never overwriting a path that already has content.
func (p *Postgres) Ensure(ctx context.Context, path string, tree Tree) error {
	return p.ensureWalk(ctx, normalize(path), tree)
}

func (p *Postgres) ensureWalk(ctx context.Context, path string, node Tree) error {
	if node == nil {
		return nil
	}
	exists, err := p.Head(ctx, path)
	if err != nil {
		return err
	}
	if !exists {
		mediaType, _ := node["_type"].(string)
		if err := p.putIfAbsent(ctx, path, mediaType); err != nil {
			return err
		}
	}
	for key, child := range node {
		if key == "_type" {
			continue
		}
		childTree, ok := child.(Tree)
		if !ok {
			continue
		}
		if key == "*" {
			continue // wildcard entries describe future children, not ones to pre-create
		}
		if err := p.ensureWalk(ctx, path+"/"+key, childTree); err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) putIfAbsent(ctx context.Context, path, mediaType string) error {
	var rev int64
	err := p.pool.QueryRow(ctx, `
		INSERT INTO documents (path, data, media_type, rev, updated_at)
		VALUES ($1, '{}'::jsonb, NULLIF($2, ''), nextval('documents_rev_seq'), now())
		ON CONFLICT (path) DO NOTHING
		RETURNING rev
	`, path, mediaType).Scan(&rev)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil // already existed; untouched, per Ensure's contract
	}
	if err != nil {
		return fmt.Errorf("ensure %s: %w", path, err)
	}
	return p.notify(ctx, path, map[string]any{}, rev, ChangeMerge)
}

func (p *Postgres) notify(ctx context.Context, path string, body map[string]any, rev int64, typ ChangeType) error {
	if p.notifier == nil {
		return nil
	}
	parent := parentOf(path)
	if parent == "" {
		return nil
	}
	segment := lastSegment(path)
	change := Change{
		Path: path,
		Type: typ,
		Rev:  rev,
		Time: time.Now().UTC(),
	}
	if typ == ChangeMerge {
		change.Body = map[string]any{segment: body}
	} else {
		change.Body = map[string]any{segment: nil}
	}
	if err := p.notifier.Publish(ctx, parent, change); err != nil {
		return fmt.Errorf("publish change for %s: %w", path, err)
	}
	return nil
}

// deepMerge recursively merges patch into base (patch wins on conflicts),
// matching the store's shallow-per-level OADA merge semantics: nested
// objects merge key-by-key rather than replacing the whole subtree.
func deepMerge(base, patch map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		if existing, ok := out[k].(map[string]any); ok {
			if incoming, ok := v.(map[string]any); ok {
				out[k] = deepMerge(existing, incoming)
				continue
			}
		}
		out[k] = v
	}
	return out
}
