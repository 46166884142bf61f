package rotator

import "context"

// Rotator is an az/el positioner as seen by the rotctld front end.
type Rotator interface {
	// MoveTo commands both axes. Errors are informational; the move is
	// best-effort and may be partially applied.
	MoveTo(ctx context.Context, azimuth, elevation float64) error
	// GetPosition returns the last known position in decimal degrees.
	GetPosition(ctx context.Context) (azimuth, elevation float64)
}
