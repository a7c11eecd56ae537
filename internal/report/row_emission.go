package report

import (
	"context"
	"slices"

	"github.com/xeipuuv/gojsonpointer"

	"joblifecycle/internal/jobs"
	"joblifecycle/internal/store"
	"joblifecycle/internal/telemetry"
)

// watchStatusIndex watches <status>/day-index for the appearance of new
// day containers, and opens a per-day watch (watchDay) for each one it
// observes — including every day that already existed when Start ran.
// The store only notifies a path's direct parent, so a single watch on
// the day-index root would miss row links written two levels below it;
// cascading into per-day watches is this package's way of turning that
// single-level notification model into the recursive watch §4.6 assumes.
func (r *Report) watchStatusIndex(ctx context.Context, status string) {
	defer r.wg.Done()

	root := store.DayIndexRoot(r.cfg.Service, status)
	res, err := r.store.Get(ctx, root)
	if err != nil && err != store.ErrNotFound {
		r.log.Error("report: read day-index root failed", "status", status, "error", err)
		return
	}

	for day := range res.Data {
		if isMetaKey(day) {
			continue
		}
		r.startDayWatch(ctx, status, day)
	}

	watch, err := r.store.Watch(ctx, root, res.Rev)
	if err != nil {
		r.log.Error("report: watch day-index root failed", "status", status, "error", err)
		return
	}
	defer watch.Close()

	for {
		select {
		case <-r.stopCh:
			return
		case change, ok := <-watch.Changes:
			if !ok {
				return
			}
			if change.Type != store.ChangeMerge {
				continue
			}
			for day := range change.Body {
				if isMetaKey(day) {
					continue
				}
				r.startDayWatch(ctx, status, day)
			}
		}
	}
}

func (r *Report) startDayWatch(ctx context.Context, status, day string) {
	key := status + "/" + day
	r.mu.Lock()
	if r.watchedDays[key] {
		r.mu.Unlock()
		return
	}
	r.watchedDays[key] = true
	r.mu.Unlock()

	r.wg.Add(1)
	go r.watchDay(ctx, status, day)
}

func (r *Report) watchDay(ctx context.Context, status, day string) {
	defer r.wg.Done()

	dayPath := store.DayIndexRoot(r.cfg.Service, status) + "/" + day
	res, err := r.store.Get(ctx, dayPath)
	if err != nil && err != store.ErrNotFound {
		r.log.Error("report: read day bucket failed", "status", status, "day", day, "error", err)
		return
	}

	for key, v := range res.Data {
		if isMetaKey(key) {
			continue
		}
		if entry, ok := v.(map[string]any); ok {
			r.handleFiledJob(ctx, status, day, key, entry)
		}
	}

	watch, err := r.store.Watch(ctx, dayPath, res.Rev)
	if err != nil {
		r.log.Error("report: watch day bucket failed", "status", status, "day", day, "error", err)
		return
	}
	defer watch.Close()

	for {
		select {
		case <-r.stopCh:
			return
		case change, ok := <-watch.Changes:
			if !ok {
				return
			}
			if change.Type != store.ChangeMerge {
				continue
			}
			for key, v := range change.Body {
				if isMetaKey(key) {
					continue
				}
				if entry, ok := v.(map[string]any); ok {
					r.handleFiledJob(ctx, status, day, key, entry)
				}
			}
		}
	}
}

// handleFiledJob implements §4.6.1 steps 1-5 for one filed job.
func (r *Report) handleFiledJob(ctx context.Context, status, day, jobKey string, entry map[string]any) {
	jobPath, _ := entry["path"].(string)
	if jobPath == "" {
		r.log.Warn("report: filed entry missing job path, skipping", "job_key", jobKey)
		return
	}
	failKind, _ := entry["failKind"].(string)

	job, err := jobs.Load(ctx, r.store, jobPath)
	if err != nil {
		r.log.Error("report: load filed job failed", "job_key", jobKey, "error", err)
		return
	}

	if len(r.cfg.Type) > 0 && !slices.Contains(r.cfg.Type, job.Type) {
		return
	}
	if r.cfg.Filter != nil && !r.cfg.Filter(job) {
		return
	}

	doc := job.AsMap()
	row := make(map[string]any, len(r.cfg.JobMappings))
	for _, m := range r.cfg.JobMappings {
		if m.Pointer == ErrorMappingsPointer {
			row[m.Column] = r.resolveErrorMapping(status, failKind)
			continue
		}
		row[m.Column] = resolvePointer(doc, m.Pointer)
	}

	rowPath := store.ReportRowEntry(r.cfg.Service, r.cfg.Name, day, jobKey)
	if err := r.store.Put(ctx, rowPath, row, store.Tree{"_type": store.MediaTypeReportsRoot}); err != nil {
		r.log.Error("report: write row failed", "job_key", jobKey, "error", err)
		return
	}
	telemetry.ReportRowsWritten.WithLabelValues(r.cfg.Service, r.cfg.Name).Inc()
}

func (r *Report) resolveErrorMapping(status, failKind string) string {
	key := failKind
	if key == "" {
		if status == string(jobs.StatusSuccess) {
			key = "success"
		} else {
			key = "unknown"
		}
	}
	if mapped, ok := r.cfg.ErrorMappings[key]; ok {
		return mapped
	}
	if status == string(jobs.StatusSuccess) {
		return "Success"
	}
	return "Other Error"
}

func resolvePointer(doc map[string]any, pointer string) string {
	p, err := gojsonpointer.NewJsonPointer(pointer)
	if err != nil {
		return ""
	}
	value, _, err := p.Get(doc)
	if err != nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	if value == nil {
		return ""
	}
	return toDisplayString(value)
}

func isMetaKey(key string) bool {
	switch key {
	case "_id", "_rev", "_meta", "_type":
		return true
	default:
		return false
	}
}
