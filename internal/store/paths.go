package store

import (
	"fmt"
	"time"
)

// ResourcesRoot returns the flat namespace job documents and other
// standalone resources are posted under, mirroring OADA's /resources/<id>
// convention: pending/day-index entries link to a path here rather than
// embedding the job body inline.
func ResourcesRoot() string {
	return "resources"
}

// ServiceRoot returns the namespace root for a service, per the store path
// contract: /bookmarks/services/<svc>.
func ServiceRoot(service string) string {
	return fmt.Sprintf("bookmarks/services/%s", service)
}

// JobsRoot returns /bookmarks/services/<svc>/jobs.
func JobsRoot(service string) string {
	return ServiceRoot(service) + "/jobs"
}

// PendingPath returns the pending-jobs list path for a service.
func PendingPath(service string) string {
	return JobsRoot(service) + "/pending"
}

// PendingEntry returns the path of one pending link.
func PendingEntry(service, jobKey string) string {
	return PendingPath(service) + "/" + jobKey
}

// DayIndexRoot returns <status>/day-index for a service, status in
// {success, failure}.
func DayIndexRoot(service, status string) string {
	return JobsRoot(service) + "/" + status + "/day-index"
}

// DayIndexEntry returns the filed-job link path for one day and job key.
func DayIndexEntry(service, status, day, jobKey string) string {
	return DayIndexRoot(service, status) + "/" + day + "/" + jobKey
}

// TypedFailureEntry returns the secondary failure-kind mirror path.
func TypedFailureEntry(service, failKind, day, jobKey string) string {
	return fmt.Sprintf("%s/typed-failure/%s/day-index/%s/%s", JobsRoot(service), failKind, day, jobKey)
}

// ReportsRoot returns the reports container for a service.
func ReportsRoot(service string) string {
	return JobsRoot(service) + "/reports"
}

// ReportDayIndexRoot returns reports/<name>/day-index for a service.
func ReportDayIndexRoot(service, reportName string) string {
	return fmt.Sprintf("%s/%s/day-index", ReportsRoot(service), reportName)
}

// ReportRowEntry returns the row path for one report, day, and job key.
func ReportRowEntry(service, reportName, day, jobKey string) string {
	return ReportDayIndexRoot(service, reportName) + "/" + day + "/" + jobKey
}

// DayOf formats t as the YYYY-MM-DD calendar day in UTC, per invariant 3.
func DayOf(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
