package report

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/csv"
	"fmt"
	"time"

	"joblifecycle/internal/idgen"
	"joblifecycle/internal/store"
	"joblifecycle/internal/telemetry"
)

// cronLoop drives the report's schedule, firing onCronTick at each
// computed next-fire time until stopped. It is a hand-rolled tick loop
// rather than robfig/cron's own goroutine (grounded on xraph-dispatch's
// cron/scheduler.go, which does the same) because each tick needs the
// previous tick's watermark, which this package — not the cron library —
// owns.
func (r *Report) cronLoop(ctx context.Context) {
	defer r.wg.Done()

	for {
		next := r.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-r.stopCh:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case fireTime := <-timer.C:
			r.onCronTick(ctx, fireTime)
		}
	}
}

// onCronTick implements §4.6.2.
func (r *Report) onCronTick(ctx context.Context, now time.Time) {
	from := r.lastCron
	to := now

	rows, header := r.collectWindow(ctx, from, to)

	if len(rows) == 0 && !r.cfg.SendEmpty {
		r.lastCron = to
		return
	}

	csvBody, err := renderCSV(header, rows)
	if err != nil {
		r.log.Error("report: render csv failed", "error", err)
		r.lastCron = to
		return
	}
	encoded := base64.StdEncoding.EncodeToString(csvBody)

	if err := r.sendEmail(ctx, encoded); err != nil {
		r.log.Error("report: send email failed", "error", err)
		r.lastCron = to
		return
	}

	telemetry.ReportEmailsSent.WithLabelValues(r.cfg.Service, r.cfg.Name).Inc()
	r.lastCron = to
}

// collectWindow reads every report row written for a day overlapping
// [from, to), dropping rows whose key embeds a creation time at or after
// midnight of the following day (late writes); rows whose key carries no
// parseable id timestamp are kept. It returns the rows
// them concatenated in day order along with the header implied by
// jobMappings' column order.
func (r *Report) collectWindow(ctx context.Context, from, to time.Time) ([][]string, []string) {
	header := make([]string, 0, len(r.cfg.JobMappings))
	for _, m := range r.cfg.JobMappings {
		header = append(header, m.Column)
	}

	var rows [][]string
	for _, day := range daysBetween(from, to) {
		cutoff := dayBoundary(day).Add(24 * time.Hour)
		dayPath := store.ReportDayIndexRoot(r.cfg.Service, r.cfg.Name) + "/" + day
		res, err := r.store.Get(ctx, dayPath)
		if err != nil {
			if err != store.ErrNotFound {
				r.log.Error("report: read report day failed", "day", day, "error", err)
			}
			continue
		}
		for key, v := range res.Data {
			if isMetaKey(key) {
				continue
			}
			created, err := idgen.TimeOf(key)
			if err == nil && !created.Before(cutoff) {
				continue
			}
			rowMap, ok := v.(map[string]any)
			if !ok {
				continue
			}
			row := make([]string, len(header))
			for i, col := range header {
				if s, ok := rowMap[col].(string); ok {
					row[i] = s
				}
			}
			rows = append(rows, row)
		}
	}
	return rows, header
}

func daysBetween(from, to time.Time) []string {
	if to.Before(from) {
		return nil
	}
	start := store.DayOf(from)
	end := store.DayOf(to)
	days := []string{start}
	cur := dayBoundary(start)
	for store.DayOf(cur) != end {
		cur = cur.Add(24 * time.Hour)
		days = append(days, store.DayOf(cur))
	}
	return days
}

func dayBoundary(day string) time.Time {
	t, _ := time.Parse("2006-01-02", day)
	return t.UTC()
}

func renderCSV(header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
