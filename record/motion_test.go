package record

import (
	"math"
	"testing"
	"time"
)

func TestEaseInOut(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.25, 0.125},
		{0.5, 0.5},
		{0.75, 0.875},
		{1, 1},
		{1.5, 1},
	}
	for _, tt := range tests {
		if got := easeInOut(tt.in); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("easeInOut(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestEaseInOut_Monotonic(t *testing.T) {
	prev := easeInOut(0)
	for i := 1; i <= 100; i++ {
		cur := easeInOut(float64(i) / 100)
		if cur < prev {
			t.Fatalf("easing not monotonic at %d: %v < %v", i, cur, prev)
		}
		prev = cur
	}
}

func TestEasedPath_Endpoints(t *testing.T) {
	from := Point{X: 10, Y: 20}
	to := Point{X: 310, Y: 420}
	path := easedPath(from, to, 25)
	if len(path) != 25 {
		t.Fatalf("got %d points, want 25", len(path))
	}
	last := path[len(path)-1]
	if last.X != to.X || last.Y != to.Y {
		t.Errorf("last point = %+v, want %+v", last, to)
	}
	// The first step must already have left the origin.
	if path[0].X == from.X && path[0].Y == from.Y {
		t.Error("first point did not advance from origin")
	}
}

func TestEasedPath_SlowFastSlow(t *testing.T) {
	path := easedPath(Point{}, Point{X: 1000}, 100)
	edge := path[9].X - path[0].X
	middle := path[54].X - path[45].X
	if middle <= edge {
		t.Errorf("middle segment (%v) not faster than edge segment (%v)", middle, edge)
	}
}

func TestEasedOffsets_Endpoints(t *testing.T) {
	offs := easedOffsets(100, 700, 40)
	if len(offs) != 40 {
		t.Fatalf("got %d offsets, want 40", len(offs))
	}
	if got := offs[len(offs)-1]; got != 700 {
		t.Errorf("final offset = %v, want 700", got)
	}
}

func TestEasedOffsets_Descending(t *testing.T) {
	offs := easedOffsets(500, 0, 20)
	if got := offs[len(offs)-1]; got != 0 {
		t.Errorf("final offset = %v, want 0", got)
	}
	prev := 500.0
	for i, off := range offs {
		if off > prev {
			t.Fatalf("offset %d rose: %v > %v", i, off, prev)
		}
		prev = off
	}
}

func TestConfig_MoveDuration(t *testing.T) {
	cfg := Config{}
	cfg.applyDefaults()

	tests := []struct {
		dist float64
		want time.Duration
	}{
		{10, cfg.MoveDurationMin},   // short hop clamps to the floor
		{400, 600 * time.Millisecond},
		{5000, cfg.MoveDurationMax}, // cross-screen clamps to the cap
	}
	for _, tt := range tests {
		if got := cfg.moveDuration(tt.dist); got != tt.want {
			t.Errorf("moveDuration(%v) = %v, want %v", tt.dist, got, tt.want)
		}
	}
}
