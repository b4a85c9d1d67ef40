package fog

import "errors"

// Sentinel errors checked across package boundaries.
var (
	// ErrAuth marks a credential failure against the vision model.
	// It is never retried.
	ErrAuth = errors.New("vision auth failure")

	// ErrNoData is returned by the refresh path when a camera has no
	// collection history at all and the live fetch also failed.
	ErrNoData = errors.New("no collection data for webcam")

	// ErrNotFound is returned by stores for missing rows.
	ErrNotFound = errors.New("not found")
)
