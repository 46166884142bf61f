package rotator

import (
	"context"
	"math"
	"sync"
)

// Offset corrects for how the positioner is mounted. Offsets are added to
// reported positions and subtracted from requested ones.
type Offset struct {
	Rotator
	mu sync.Mutex
	// offsetAz and offsetEl are in degrees.
	offsetAz, offsetEl float64
}

// add applies offset and wraps the result into [0, 360).
func add(angle, offset float64) float64 {
	angle = math.Mod(angle+offset, 360)
	if angle < 0 {
		angle += 360
	}
	if angle >= 360 {
		// -tiny + 360 rounds up to 360.
		angle = 0
	}
	return angle
}

func NewOffset(r Rotator, offsetAz, offsetEl float64) *Offset {
	return &Offset{Rotator: r, offsetAz: offsetAz, offsetEl: offsetEl}
}

func (o *Offset) SetAzimuthOffset(offset float64) {
	o.mu.Lock()
	o.offsetAz = offset
	o.mu.Unlock()
}

func (o *Offset) SetElevationOffset(offset float64) {
	o.mu.Lock()
	o.offsetEl = offset
	o.mu.Unlock()
}

func (o *Offset) offsets() (float64, float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.offsetAz, o.offsetEl
}

func (o *Offset) MoveTo(ctx context.Context, azimuth, elevation float64) error {
	offAz, offEl := o.offsets()
	return o.Rotator.MoveTo(ctx, add(azimuth, -offAz), elevation-offEl)
}

func (o *Offset) GetPosition(ctx context.Context) (float64, float64) {
	az, el := o.Rotator.GetPosition(ctx)
	offAz, offEl := o.offsets()
	return add(az, offAz), el + offEl
}
