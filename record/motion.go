package record

import (
	"context"
	"time"
)

// easeInOut is a symmetric ease-in-out curve: 2t² below the midpoint,
// 1−2(1−t)² above. eased(0)=0, eased(0.5)=0.5, eased(1)=1, monotonic.
func easeInOut(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	if t < 0.5 {
		return 2 * t * t
	}
	u := 1 - t
	return 1 - 2*u*u
}

// easedPath returns the cursor positions for an animation of the given step
// count: position i is the eased interpolation at progress (i+1)/steps, so
// the final element lands exactly on to.
func easedPath(from, to Point, steps int) []Point {
	if steps < 1 {
		steps = 1
	}
	pts := make([]Point, steps)
	for i := 0; i < steps; i++ {
		t := easeInOut(float64(i+1) / float64(steps))
		pts[i] = Point{
			X: from.X + (to.X-from.X)*t,
			Y: from.Y + (to.Y-from.Y)*t,
		}
	}
	return pts
}

// easedOffsets is easedPath for a single scalar, used for scroll animation.
func easedOffsets(from, to float64, steps int) []float64 {
	if steps < 1 {
		steps = 1
	}
	offs := make([]float64, steps)
	for i := 0; i < steps; i++ {
		t := easeInOut(float64(i+1) / float64(steps))
		offs[i] = from + (to-from)*t
	}
	return offs
}

// sleepCtx sleeps for d or returns early with the context error.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
