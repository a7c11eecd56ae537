package store

import "errors"

// ErrNotFound is returned by Get and Head when no document exists at a path.
var ErrNotFound = errors.New("store: not found")
