package record

import "testing"

func target(x, y float64, label string) Target {
	return Target{Point: Point{X: x, Y: y}, W: 40, H: 20, Label: label}
}

func TestOrderTargets_ReadingOrder(t *testing.T) {
	// Two visual rows with jittered Y values, listed out of order.
	in := []Target{
		target(500, 312, "row1-right"),
		target(100, 305, "row1-left"),
		target(420, 480, "row2-right"),
		target(300, 308, "row1-mid"),
		target(80, 472, "row2-left"),
	}
	got := orderTargets(in, 40, 10)
	want := []string{"row1-left", "row1-mid", "row1-right", "row2-left", "row2-right"}
	if len(got) != len(want) {
		t.Fatalf("got %d targets, want %d", len(got), len(want))
	}
	for i, label := range want {
		if got[i].Label != label {
			t.Errorf("got[%d] = %q, want %q", i, got[i].Label, label)
		}
	}
}

func TestOrderTargets_RowThreshold(t *testing.T) {
	// 50px apart: beyond the 40px threshold, so these are separate rows
	// and X must not override the vertical order.
	in := []Target{
		target(50, 150, "second"),
		target(400, 100, "first"),
	}
	got := orderTargets(in, 40, 10)
	if got[0].Label != "first" || got[1].Label != "second" {
		t.Errorf("got [%q %q], want [first second]", got[0].Label, got[1].Label)
	}
}

func TestOrderTargets_Cap(t *testing.T) {
	var in []Target
	for i := 0; i < 9; i++ {
		in = append(in, target(float64(i*60), float64(i*100), "t"))
	}
	got := orderTargets(in, 40, 5)
	if len(got) != 5 {
		t.Fatalf("got %d targets, want 5", len(got))
	}
}

func TestOrderTargets_Empty(t *testing.T) {
	if got := orderTargets(nil, 40, 5); len(got) != 0 {
		t.Fatalf("got %d targets, want 0", len(got))
	}
}
