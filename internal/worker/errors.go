package worker

import "errors"

// ErrNoWorker is wrapped by Registry.Get when no worker is registered for
// a job's type (§7: NoWorker, filed as failure kind "no-worker").
var ErrNoWorker = errors.New("no worker registered")
