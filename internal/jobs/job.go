// Package jobs defines the typed view of one job document — the record a
// Runner loads, validates, and drives to a terminal state. It replaces the
// teacher's internal/models.Job (a flat Postgres row) with the document
// shape the store abstraction actually persists: a nested JSON object
// with an append-only "updates" log rather than scalar columns.
package jobs

import (
	"context"
	"fmt"
	"time"

	"joblifecycle/internal/store"
)

// Status is one of the three states a job document can report, plus the
// zero value for "absent" (no status key at all, i.e. freshly posted).
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Update is one entry in a job's append-only updates log.
type Update struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
	Meta   any       `json:"meta,omitempty"`
}

// Job is the typed view of one job document.
type Job struct {
	// Path is the store path of the canonical job document (not the
	// pending link; see Queue for the link-vs-document distinction).
	Path string

	ID      string
	Service string
	Type    string
	Config  map[string]any
	Status  Status
	Result  any
	Updates map[string]Update

	// IsJob is false when the document failed validation after the
	// one permitted retry (§4.2); the Runner must file such a job as a
	// failure with an empty result.
	IsJob bool
}

// Load reads the job document at path, validating it has service, type,
// and config. A momentarily-empty document (a creation/link race) is
// retried exactly once before giving up.
func Load(ctx context.Context, st store.Store, path string) (*Job, error) {
	job, ok, err := loadOnce(ctx, st, path)
	if err != nil {
		return nil, err
	}
	if ok {
		return job, nil
	}
	job, _, err = loadOnce(ctx, st, path)
	if err != nil {
		return nil, err
	}
	// Valid or not, the retried read is returned: an invalid job keeps
	// IsJob false but still carries the status and result it was filed with.
	return job, nil
}

func loadOnce(ctx context.Context, st store.Store, path string) (*Job, bool, error) {
	res, err := st.Get(ctx, path)
	if err != nil {
		return nil, false, fmt.Errorf("jobs: load %s: %w", path, err)
	}
	job := fromDoc(path, res.Data)
	return job, job.IsJob, nil
}

func fromDoc(path string, data map[string]any) *Job {
	job := &Job{Path: path, Updates: map[string]Update{}}

	// Status and result are read regardless of validity: a job the
	// Runner already filed as failure for failing validation carries no
	// service/type/config, but it still must be recognized as terminal
	// on a later reobservation rather than re-filed.
	job.Status = Status(toString(data["status"]))
	job.Result = data["result"]

	service, _ := data["service"].(string)
	typ, _ := data["type"].(string)
	config, hasConfig := data["config"].(map[string]any)
	if service == "" || typ == "" || !hasConfig {
		job.IsJob = false
		return job
	}

	job.IsJob = true
	job.Service = service
	job.Type = typ
	job.Config = config
	job.ID, _ = data["_id"].(string)

	if rawUpdates, ok := data["updates"].(map[string]any); ok {
		for key, v := range rawUpdates {
			if entry, ok := v.(map[string]any); ok {
				job.Updates[key] = Update{
					Status: toString(entry["status"]),
					Time:   parseTime(entry["time"]),
					Meta:   entry["meta"],
				}
			}
		}
	}
	return job
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}

func parseTime(v any) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// AsMap reconstructs a generic JSON-document view of the job, suitable
// for RFC 6901 pointer resolution against arbitrary columns a report
// configures (e.g. "/config/customerId", "/result/total").
func (j *Job) AsMap() map[string]any {
	return map[string]any{
		"_id":     j.ID,
		"service": j.Service,
		"type":    j.Type,
		"config":  j.Config,
		"status":  string(j.Status),
		"result":  j.Result,
	}
}

// LastUpdateTime returns the time of the most recent update whose Status
// matches status, or the zero time if none match. Used by Runner.Run to
// pick a finish time for a job that is re-observed already terminal.
func (j *Job) LastUpdateTime(status Status) time.Time {
	var latest time.Time
	for _, u := range j.Updates {
		if u.Status == string(status) && u.Time.After(latest) {
			latest = u.Time
		}
	}
	return latest
}
