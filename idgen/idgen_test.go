package idgen

import (
	"sort"
	"strings"
	"testing"
)

func TestNanoID_LengthAndAlphabet(t *testing.T) {
	for _, length := range []int{4, 8, 21} {
		id := NanoID(length)()
		if len(id) != length {
			t.Errorf("NanoID(%d) produced %q, len %d", length, id, len(id))
		}
		if bad := strings.Trim(id, "0123456789abcdefghijklmnopqrstuvwxyz"); bad != "" {
			t.Errorf("NanoID(%d) produced %q with characters %q outside base-36", length, id, bad)
		}
	}
}

func TestNanoID_NoCollisions(t *testing.T) {
	gen := NanoID(12)
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := gen()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate ID %q at iteration %d", id, i)
		}
		seen[id] = struct{}{}
	}
}

func TestUUIDv7_Shape(t *testing.T) {
	id := UUIDv7()()
	if len(id) != 36 {
		t.Fatalf("UUID length = %d, want 36 (%q)", len(id), id)
	}
	groups := strings.Split(id, "-")
	if len(groups) != 5 {
		t.Fatalf("UUID groups = %d, want 5 (%q)", len(groups), id)
	}
	// The version nibble leads the third group.
	if groups[2][0] != '7' {
		t.Errorf("version nibble = %c, want 7 (%q)", groups[2][0], id)
	}
}

func TestUUIDv7_TimeOrdered(t *testing.T) {
	gen := UUIDv7()
	ids := make([]string, 50)
	for i := range ids {
		ids[i] = gen()
	}
	if !sort.StringsAreSorted(ids) {
		t.Error("sequentially generated v7 UUIDs are not in lexical order")
	}
}

func TestPrefixed_ComposesRunIDs(t *testing.T) {
	id := Prefixed("run_", UUIDv7())()
	if !strings.HasPrefix(id, "run_") {
		t.Fatalf("ID %q lacks run_ prefix", id)
	}
	if len(id) != len("run_")+36 {
		t.Errorf("ID length = %d, want %d", len(id), len("run_")+36)
	}
}
