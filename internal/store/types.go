package store

import "time"

// ChangeType distinguishes a merge (put/post) from a delete in a change
// event. The core only consumes ChangeMerge bodies; ChangeDelete and
// malformed bodies are logged and ignored by the queue.
type ChangeType string

const (
	ChangeMerge  ChangeType = "merge"
	ChangeDelete ChangeType = "delete"
)

// Change is one incremental event delivered on a Watch subscription.
type Change struct {
	Path string
	Type ChangeType
	Body map[string]any
	Rev  int64
	Time time.Time
}

// GetResult is the body and revision returned by Get.
type GetResult struct {
	Data map[string]any
	Rev  int64
}

// PostResult carries the store-assigned location of a newly created
// resource, e.g. "resources/6f1d2c3a-8b4e-4f5a-9c7d-0e1f2a3b4c5d".
type PostResult struct {
	Location string
}

// Tree is a template describing the media type of a path and its
// immediate children, consumed by Ensure to lazily materialize
// intermediate container documents without overwriting existing content.
//
// A leaf entry carries "_type" (the media type to assign when the path
// does not yet exist); a non-leaf entry nests further Tree values keyed
// by the next path segment, or "*" to match any segment.
type Tree map[string]any

// Media types for the containers the core reads and writes, per the
// store path contract.
const (
	MediaTypeServicesRoot = "application/vnd.oada.services.1+json"
	MediaTypeService      = "application/vnd.oada.service.1+json"
	MediaTypeJobsRoot     = "application/vnd.oada.service.jobs.1+json"
	MediaTypeJob          = "application/vnd.oada.service.job.1+json"
	MediaTypeReportsRoot  = "application/vnd.oada.service.reports.1+json"
	MediaTypeReport       = "application/vnd.oada.service.report.1+json"
)

// ServiceTree builds the Ensure template for one service, applied at
// ServiceRoot(service): its jobs container, covering pending, success,
// failure, typed-failure, and reports.
func ServiceTree(mediaTypeLeaf string) Tree {
	return Tree{
		"_type": MediaTypeService,
		"jobs": Tree{
			"_type":         MediaTypeJobsRoot,
			"pending":       Tree{"_type": MediaTypeJobsRoot, "*": Tree{"_type": mediaTypeLeaf}},
			"success":       Tree{"_type": MediaTypeJobsRoot, "day-index": Tree{"_type": MediaTypeJobsRoot, "*": Tree{"_type": MediaTypeJobsRoot, "*": Tree{"_type": mediaTypeLeaf}}}},
			"failure":       Tree{"_type": MediaTypeJobsRoot, "day-index": Tree{"_type": MediaTypeJobsRoot, "*": Tree{"_type": MediaTypeJobsRoot, "*": Tree{"_type": mediaTypeLeaf}}}},
			"typed-failure": Tree{"_type": MediaTypeJobsRoot, "*": Tree{"_type": MediaTypeJobsRoot, "day-index": Tree{"_type": MediaTypeJobsRoot, "*": Tree{"_type": MediaTypeJobsRoot, "*": Tree{"_type": mediaTypeLeaf}}}}},
			"reports":       Tree{"_type": MediaTypeReportsRoot, "*": Tree{"_type": MediaTypeReport, "day-index": Tree{"_type": MediaTypeReportsRoot, "*": Tree{"_type": MediaTypeReportsRoot}}}},
		},
	}
}
