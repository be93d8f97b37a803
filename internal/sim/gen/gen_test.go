package gen

import "testing"

func TestFloorDivMod(t *testing.T) {
	cases := []struct{ a, b, q, m int }{
		{7, 3, 2, 1},
		{-1, 3, -1, 2},
		{-3, 3, -1, 0},
		{0, 5, 0, 0},
	}
	for _, c := range cases {
		if got := FloorDiv(c.a, c.b); got != c.q {
			t.Fatalf("FloorDiv(%d,%d): got %d want %d", c.a, c.b, got, c.q)
		}
		if got := Mod(c.a, c.b); got != c.m {
			t.Fatalf("Mod(%d,%d): got %d want %d", c.a, c.b, got, c.m)
		}
	}
}

func TestHashDeterministic(t *testing.T) {
	if Hash2(7, 3, 4) != Hash2(7, 3, 4) {
		t.Fatalf("Hash2 not deterministic")
	}
	if Hash2(7, 3, 4) == Hash2(8, 3, 4) {
		t.Fatalf("Hash2 ignores seed")
	}
	if RoomSeed(1, "W1N1") == RoomSeed(1, "W2N1") {
		t.Fatalf("RoomSeed ignores room name")
	}
}

func TestRollBounds(t *testing.T) {
	hits := 0
	for x := 0; x < 100; x++ {
		for y := 0; y < 100; y++ {
			if Roll(42, x, y, 0, Permille(0.1)) {
				hits++
			}
			if Roll(42, x, y, 0, 0) {
				t.Fatalf("zero probability rolled true")
			}
			if !Roll(42, x, y, 0, Permille(1)) {
				t.Fatalf("certain probability rolled false")
			}
		}
	}
	if hits < 700 || hits > 1300 {
		t.Fatalf("10%% roll hit %d of 10000", hits)
	}
}
