package templates

import (
	"testing"

	"github.com/mrskaggs/cline-ai-sub002/internal/plan/model"
)

func TestLimitFor_CanonicalRows(t *testing.T) {
	ext := []int{0, 0, 5, 10, 20, 30, 40, 50, 60}
	tow := []int{0, 0, 0, 1, 1, 2, 2, 3, 6}
	for lvl := 0; lvl <= MaxLevel; lvl++ {
		if got := LimitFor(model.Extension, lvl); got != ext[lvl] {
			t.Fatalf("extension limit at %d: got %d want %d", lvl, got, ext[lvl])
		}
		if got := LimitFor(model.Tower, lvl); got != tow[lvl] {
			t.Fatalf("tower limit at %d: got %d want %d", lvl, got, tow[lvl])
		}
	}
	if got := LimitFor(model.Extension, 12); got != 60 {
		t.Fatalf("clamped extension limit: got %d want 60", got)
	}
	if got := LimitFor(model.StructureType("bogus"), 8); got != 0 {
		t.Fatalf("unknown type limit: got %d want 0", got)
	}
}

func TestLimits_MonotonicInLevel(t *testing.T) {
	for _, st := range model.AllStructureTypes {
		prev := LimitFor(st, 0)
		for lvl := 1; lvl <= MaxLevel; lvl++ {
			cur := LimitFor(st, lvl)
			if cur < prev {
				t.Fatalf("%s limit decreases at level %d: %d -> %d", st, lvl, prev, cur)
			}
			prev = cur
		}
	}
}

func TestTemplates_NeverExceedLimits(t *testing.T) {
	for lvl := 0; lvl <= MaxLevel; lvl++ {
		counts := map[model.StructureType]int{}
		for _, e := range Upto(lvl) {
			counts[e.Type]++
			if e.Level > lvl {
				t.Fatalf("entry %s level %d returned for level %d", e.Type, e.Level, lvl)
			}
		}
		for st, n := range counts {
			if lim := LimitFor(st, lvl); n > lim {
				t.Fatalf("level %d: %d %s templated, limit %d", lvl, n, st, lim)
			}
		}
	}
}

func TestTemplates_ExtensionsFillLimit(t *testing.T) {
	for lvl := 2; lvl <= MaxLevel; lvl++ {
		n := 0
		for _, e := range Upto(lvl) {
			if e.Type == model.Extension {
				n++
			}
		}
		if want := LimitFor(model.Extension, lvl); n != want {
			t.Fatalf("level %d extensions: got %d want %d", lvl, n, want)
		}
	}
}

func TestTemplates_UniqueAnchorOffsets(t *testing.T) {
	seen := map[Offset]model.StructureType{}
	for _, e := range Upto(MaxLevel) {
		if e.Relative != RelAnchor {
			continue
		}
		if prev, ok := seen[e.Offset]; ok {
			t.Fatalf("offset %+v used by %s and %s", e.Offset, prev, e.Type)
		}
		seen[e.Offset] = e.Type
	}
}

func TestSpawnAccessibility_AllLevels(t *testing.T) {
	for lvl := 1; lvl <= MaxLevel; lvl++ {
		if got := SpawnAccessibilityScore(Upto(lvl)); got < DefaultMinSpawnAccess {
			t.Fatalf("level %d leaves %d free tiles around spawn, want >= %d", lvl, got, DefaultMinSpawnAccess)
		}
	}
	if got := SpawnAccessibilityScore(Upto(2)); got < 2 {
		t.Fatalf("level 2 spawn access: got %d", got)
	}
}

func TestSpawnAccessibility_CountsObstructions(t *testing.T) {
	entries := []Entry{
		{Type: model.Extension, Relative: RelAnchor, Offset: Offset{1, 0}},
		{Type: model.Extension, Relative: RelAnchor, Offset: Offset{0, 1}},
		{Type: model.Road, Relative: RelAnchor, Offset: Offset{-1, 0}},
		{Type: model.Extension, Relative: RelAnchor, Offset: Offset{3, 3}},
	}
	if got := SpawnAccessibilityScore(entries); got != 6 {
		t.Fatalf("got %d want 6", got)
	}
}

func TestMinLevel(t *testing.T) {
	if got := MinLevel(model.Extension); got != 2 {
		t.Fatalf("extension: got %d want 2", got)
	}
	if got := MinLevel(model.Nuker); got != 8 {
		t.Fatalf("nuker: got %d want 8", got)
	}
}

func TestFootprint_CoreStaysReachable(t *testing.T) {
	// Walk the 8-connected grid from the spawn through tiles that no
	// level-8 building occupies; the walk must leave the layout.
	const bound = extensionMaxRange + 3
	start := Offset{0, 0}
	seen := map[Offset]bool{start: true}
	queue := []Offset{start}
	escaped := false
	for len(queue) > 0 && !escaped {
		cur := queue[0]
		queue = queue[1:]
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				next := Offset{cur.DX + dx, cur.DY + dy}
				if seen[next] || Footprint(next) {
					continue
				}
				if chebyshev(next.DX, next.DY) >= bound {
					escaped = true
				}
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	if !escaped {
		t.Fatalf("level 8 footprint encloses the spawn")
	}
}

func TestFootprint_CoversObstructingAnchorEntries(t *testing.T) {
	for _, e := range Upto(MaxLevel) {
		if e.Relative != RelAnchor {
			continue
		}
		if got := Footprint(e.Offset); got != e.Type.Obstructs() {
			t.Fatalf("%s at %+v: footprint %v", e.Type, e.Offset, got)
		}
	}
	if !Footprint(Offset{0, 2}) {
		t.Fatalf("storage offset missing from footprint")
	}
}

func TestEntrySlot(t *testing.T) {
	e := Entry{Type: model.Link, Relative: RelSource, Index: 1}
	if got := e.Slot(); got != "source1/link" {
		t.Fatalf("slot: got %q", got)
	}
	if got := (Entry{Type: model.Extension, Relative: RelAnchor}).Slot(); got != "" {
		t.Fatalf("anchor slot: got %q", got)
	}
}
