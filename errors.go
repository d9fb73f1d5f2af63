package bufcache

import (
	cerrors "github.com/cockroachdb/errors"
)

// ErrDirectoryInconsistent is returned by Cache.Validate (and panics through
// DebugValidate) when the page directory disagrees with the slot table.
var ErrDirectoryInconsistent = cerrors.New("bufcache: page directory is inconsistent with the slot table")
