package templates

import (
	"sort"
	"strconv"

	"github.com/mrskaggs/cline-ai-sub002/internal/plan/model"
)

// Relative names what an entry's offset is measured from.
type Relative uint8

const (
	RelAnchor Relative = iota
	RelSource
	RelController
	RelMineral
)

func (r Relative) String() string {
	switch r {
	case RelAnchor:
		return "anchor"
	case RelSource:
		return "source"
	case RelController:
		return "controller"
	case RelMineral:
		return "mineral"
	}
	return "unknown"
}

type Offset struct{ DX, DY int }

// Entry is one templated structure.
//
// For RelAnchor entries Offset is exact. Landmark-relative entries are placed
// by the layout planner on a free tile at Range from the landmark (Range 0
// means on the landmark itself); Index selects the source.
type Entry struct {
	Type     model.StructureType
	Level    int
	Priority int
	Relative Relative
	Offset   Offset
	Range    int
	Index    int
}

// DefaultMinSpawnAccess is the number of tiles around the primary spawn that
// templates keep unobstructed.
const DefaultMinSpawnAccess = 4

type core struct {
	t     model.StructureType
	level int
	prio  int
	dx    int
	dy    int
}

// Core layout around the primary spawn at (0,0). Every core tile has even
// parity so the odd-parity checkerboard stays free for extensions and the
// even lattice stays walkable.
var coreLayout = []core{
	{model.Spawn, 1, 100, 0, 0},
	{model.Tower, 3, 95, 0, -2},
	{model.Storage, 4, 90, 0, 2},
	{model.Tower, 5, 95, -2, 0},
	{model.Link, 5, 85, -2, 2},
	{model.Terminal, 6, 80, 2, 2},
	{model.Spawn, 7, 100, 4, 4},
	{model.Tower, 7, 95, 2, 0},
	{model.Factory, 7, 70, -2, -2},
	{model.Spawn, 8, 100, -4, 4},
	{model.Tower, 8, 95, 0, -4},
	{model.Tower, 8, 95, -4, 0},
	{model.Tower, 8, 95, 4, 0},
	{model.PowerSpawn, 8, 70, 2, -2},
	{model.Nuker, 8, 60, 0, 4},
	{model.Observer, 8, 60, -4, -4},
}

var labLayout = []core{
	{model.Lab, 6, 65, 5, -5},
	{model.Lab, 6, 65, 6, -5},
	{model.Lab, 6, 65, 5, -6},
	{model.Lab, 7, 65, 7, -5},
	{model.Lab, 7, 65, 7, -6},
	{model.Lab, 7, 65, 6, -7},
	{model.Lab, 8, 65, 5, -7},
	{model.Lab, 8, 65, 7, -7},
	{model.Lab, 8, 65, 8, -6},
	{model.Lab, 8, 65, 6, -8},
}

var landmarkLayout = []Entry{
	{Type: model.Container, Level: 2, Priority: 75, Relative: RelSource, Range: 1, Index: 0},
	{Type: model.Container, Level: 2, Priority: 75, Relative: RelSource, Range: 1, Index: 1},
	{Type: model.Container, Level: 2, Priority: 70, Relative: RelController, Range: 2},
	{Type: model.Link, Level: 5, Priority: 65, Relative: RelController, Range: 2},
	{Type: model.Link, Level: 6, Priority: 65, Relative: RelSource, Range: 2, Index: 0},
	{Type: model.Link, Level: 7, Priority: 65, Relative: RelSource, Range: 2, Index: 1},
	{Type: model.Extractor, Level: 6, Priority: 60, Relative: RelMineral, Range: 0},
	{Type: model.Container, Level: 6, Priority: 55, Relative: RelMineral, Range: 1},
}

const extensionMaxRange = 7

var (
	byLevel        [MaxLevel + 1][]Entry
	extensionSlots []Offset
	reserved       = map[Offset]bool{}
	footprint      = map[Offset]bool{}
)

func init() {
	extensionSlots = buildExtensionSlots()
	for _, c := range coreLayout {
		byLevel[c.level] = append(byLevel[c.level], anchorEntry(c))
	}
	for _, c := range labLayout {
		byLevel[c.level] = append(byLevel[c.level], anchorEntry(c))
	}
	for _, es := range byLevel {
		for _, e := range es {
			reserved[e.Offset] = true
		}
	}
	for lvl := 1; lvl <= MaxLevel; lvl++ {
		from := LimitFor(model.Extension, lvl-1)
		to := LimitFor(model.Extension, lvl)
		for i := from; i < to && i < len(extensionSlots); i++ {
			off := extensionSlots[i]
			byLevel[lvl] = append(byLevel[lvl], Entry{
				Type:     model.Extension,
				Level:    lvl,
				Priority: 85 - chebyshev(off.DX, off.DY),
				Relative: RelAnchor,
				Offset:   off,
			})
		}
	}
	for _, e := range landmarkLayout {
		byLevel[e.Level] = append(byLevel[e.Level], e)
	}
	for _, es := range byLevel {
		for _, e := range es {
			if e.Relative == RelAnchor && e.Type.Obstructs() {
				footprint[e.Offset] = true
			}
		}
	}
}

func anchorEntry(c core) Entry {
	return Entry{Type: c.t, Level: c.level, Priority: c.prio, Relative: RelAnchor, Offset: Offset{DX: c.dx, DY: c.dy}}
}

// buildExtensionSlots lists odd-parity tiles around the anchor, nearest
// first, skipping the lab block, the tiles around secondary spawns and the
// two corridors that keep the core reachable at level 8.
func buildExtensionSlots() []Offset {
	taken := map[Offset]bool{}
	for _, c := range coreLayout {
		taken[Offset{c.dx, c.dy}] = true
		if c.t == model.Spawn {
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					taken[Offset{c.dx + dx, c.dy + dy}] = true
				}
			}
		}
	}
	var out []Offset
	for dy := -extensionMaxRange; dy <= extensionMaxRange; dy++ {
		for dx := -extensionMaxRange; dx <= extensionMaxRange; dx++ {
			if (absInt(dx)+absInt(dy))%2 == 0 {
				continue
			}
			if chebyshev(dx, dy) < 2 {
				continue
			}
			// Corridors out of the core ring.
			if absInt(dx) == 1 && absInt(dy) == 2 {
				continue
			}
			if dx >= 4 && dx <= 8 && dy >= -8 && dy <= -4 {
				continue
			}
			o := Offset{dx, dy}
			if taken[o] {
				continue
			}
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		ra, rb := chebyshev(a.DX, a.DY), chebyshev(b.DX, b.DY)
		if ra != rb {
			return ra < rb
		}
		ma, mb := absInt(a.DX)+absInt(a.DY), absInt(b.DX)+absInt(b.DY)
		if ma != mb {
			return ma < mb
		}
		if a.DY != b.DY {
			return a.DY < b.DY
		}
		return a.DX < b.DX
	})
	return out
}

// For returns the entries that become available at exactly level.
func For(level int) []Entry {
	if level < 1 || level > MaxLevel {
		return nil
	}
	return append([]Entry(nil), byLevel[level]...)
}

// ExtensionSlots returns every extension offset in fill order. The first
// LimitFor(Extension, level) slots are the ones templated up to level; the
// rest are spares for rooms where walls swallow templated slots.
func ExtensionSlots() []Offset {
	return append([]Offset(nil), extensionSlots...)
}

// Reserved reports whether off is claimed by an anchor-relative entry at any
// level, so landmark-relative entries can keep clear of it.
func Reserved(off Offset) bool {
	return reserved[off]
}

// Footprint reports whether off holds an obstructing anchor-relative building
// at some level. Roads stay off these tiles so later levels find them free.
func Footprint(off Offset) bool {
	return footprint[off]
}

// Slot names a landmark-relative entry, e.g. "source1/link". Anchor entries
// have no slot; their offset identifies them.
func (e Entry) Slot() string {
	if e.Relative == RelAnchor {
		return ""
	}
	return e.Relative.String() + strconv.Itoa(e.Index) + "/" + string(e.Type)
}

// Upto accumulates the entries for levels 1..level.
func Upto(level int) []Entry {
	var out []Entry
	for lvl := 1; lvl <= clampLevel(level); lvl++ {
		out = append(out, byLevel[lvl]...)
	}
	return out
}

// SpawnAccessibilityScore counts how many of the 8 tiles around the primary
// spawn (anchor offset 0,0) are left walkable by the given entries. Only
// anchor-relative entries are considered.
func SpawnAccessibilityScore(entries []Entry) int {
	blocked := map[Offset]bool{}
	for _, e := range entries {
		if e.Relative != RelAnchor || !e.Type.Obstructs() {
			continue
		}
		if chebyshev(e.Offset.DX, e.Offset.DY) == 1 {
			blocked[e.Offset] = true
		}
	}
	return 8 - len(blocked)
}

func chebyshev(dx, dy int) int {
	dx, dy = absInt(dx), absInt(dy)
	if dx > dy {
		return dx
	}
	return dy
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
