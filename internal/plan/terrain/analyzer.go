package terrain

import (
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/mrskaggs/cline-ai-sub002/internal/plan/model"
	"github.com/mrskaggs/cline-ai-sub002/internal/plan/worldapi"
)

const tiles = model.RoomSize * model.RoomSize

// ClearanceCap bounds the clearance that counts toward anchor choice; beyond
// it the anchor prefers tiles closer to sources and the controller.
const ClearanceCap = 5

type KeyPositions struct {
	Anchor     model.Pos
	Sources    []model.Pos
	Controller model.Pos
	Mineral    *model.Pos
	Exits      []model.Pos
}

// Analysis is an immutable snapshot of a room's static layout.
type Analysis struct {
	Room       string
	Walkable   [tiles]bool
	Swamp      [tiles]bool
	Clearance  [tiles]int
	Keys       KeyPositions
	Degenerate bool
	ComputedAt uint64
}

func (a *Analysis) WalkableAt(p model.Pos) bool {
	return p.InRoom() && a.Walkable[p.Index()]
}

func (a *Analysis) SwampAt(p model.Pos) bool {
	return p.InRoom() && a.Swamp[p.Index()]
}

func (a *Analysis) ClearanceAt(p model.Pos) int {
	if !p.InRoom() {
		return 0
	}
	return a.Clearance[p.Index()]
}

type Analyzer struct {
	world worldapi.World
	ttl   uint64
	log   *log.Logger

	cache map[string]*Analysis
}

func NewAnalyzer(w worldapi.World, ttlTicks uint64, logger *log.Logger) *Analyzer {
	return &Analyzer{world: w, ttl: ttlTicks, log: logger, cache: map[string]*Analysis{}}
}

// Invalidate drops a cached analysis so the next call recomputes it.
func (a *Analyzer) Invalidate(room string) { delete(a.cache, room) }

// Analyze returns the cached analysis for room, recomputing it when the TTL
// has expired.
func (a *Analyzer) Analyze(room string, tick uint64) (*Analysis, error) {
	if room == "" {
		return nil, errors.New("analyze: empty room")
	}
	if c := a.cache[room]; c != nil && (a.ttl == 0 || tick-c.ComputedAt < a.ttl) && tick >= c.ComputedAt {
		return c, nil
	}
	an, err := a.compute(room, tick)
	if err != nil {
		return nil, err
	}
	a.cache[room] = an
	if an.Degenerate && a.log != nil {
		a.log.Printf("room %s: degenerate terrain, best-effort anchor %s (clearance %d)", room, an.Keys.Anchor, an.ClearanceAt(an.Keys.Anchor))
	}
	return an, nil
}

func (a *Analyzer) IdentifyKeyPositions(room string, tick uint64) (KeyPositions, error) {
	an, err := a.Analyze(room, tick)
	if err != nil {
		return KeyPositions{}, err
	}
	return an.Keys, nil
}

func (a *Analyzer) compute(room string, tick uint64) (*Analysis, error) {
	an := &Analysis{Room: room, ComputedAt: tick}
	var spawns []model.Pos
	for i := 0; i < tiles; i++ {
		p := model.FromIndex(room, i)
		t, err := worldapi.Rehydrate(a.world, p)
		if err != nil {
			return nil, fmt.Errorf("analyze %s: %w", room, err)
		}
		info := t.Terrain()
		an.Walkable[i] = info.Walkable
		an.Swamp[i] = info.Walkable && info.Swamp
		if t.HasStructure(model.Spawn) {
			spawns = append(spawns, p)
		}
	}
	distanceTransform(an)

	lm := a.world.Landmarks(room)
	an.Keys.Sources = append([]model.Pos(nil), lm.Sources...)
	an.Keys.Controller = lm.Controller
	if lm.Mineral != nil {
		m := *lm.Mineral
		an.Keys.Mineral = &m
	}
	an.Keys.Exits = findExits(an)

	if len(spawns) > 0 {
		an.Keys.Anchor = spawns[0]
	} else {
		an.Keys.Anchor, an.Degenerate = chooseAnchor(an)
	}
	return an, nil
}

// distanceTransform fills Clearance with the Chebyshev distance from each
// walkable tile to the nearest wall or the outside of the room.
func distanceTransform(an *Analysis) {
	const unset = -1
	queue := make([]int, 0, tiles)
	for i := 0; i < tiles; i++ {
		if !an.Walkable[i] {
			an.Clearance[i] = 0
			queue = append(queue, i)
			continue
		}
		p := model.FromIndex(an.Room, i)
		if p.OnEdge() {
			an.Clearance[i] = 1
			queue = append(queue, i)
			continue
		}
		an.Clearance[i] = unset
	}
	for head := 0; head < len(queue); head++ {
		cur := queue[head]
		p := model.FromIndex(an.Room, cur)
		for _, n := range model.Neighbors8(p) {
			ni := n.Index()
			if an.Clearance[ni] != unset {
				continue
			}
			an.Clearance[ni] = an.Clearance[cur] + 1
			queue = append(queue, ni)
		}
	}
	for i := 0; i < tiles; i++ {
		if an.Clearance[i] == unset {
			// Unreachable from any wall or edge cannot happen on a finite grid.
			an.Clearance[i] = 0
		}
	}
}

func chooseAnchor(an *Analysis) (model.Pos, bool) {
	landmarks := append([]model.Pos(nil), an.Keys.Sources...)
	if an.Keys.Controller.Room != "" {
		landmarks = append(landmarks, an.Keys.Controller)
	}

	best := model.Pos{}
	bestClear, bestDist := -1, 0
	rawMax := 0
	found := false
	for i := 0; i < tiles; i++ {
		p := model.FromIndex(an.Room, i)
		if !an.Walkable[i] || !p.Buildable() {
			continue
		}
		c := an.Clearance[i]
		if c > rawMax {
			rawMax = c
		}
		if c > ClearanceCap {
			c = ClearanceCap
		}
		d := 0
		for _, l := range landmarks {
			d += model.Range(p, l)
		}
		better := !found || c > bestClear || (c == bestClear && d < bestDist) ||
			(c == bestClear && d == bestDist && model.Less(p, best))
		if better {
			found = true
			best, bestClear, bestDist = p, c, d
		}
	}
	if !found {
		return model.P(an.Room, model.RoomSize/2, model.RoomSize/2), true
	}
	// Full clearance means all eight neighbours of the anchor are walkable.
	return best, rawMax < 2
}

func findExits(an *Analysis) []model.Pos {
	room := an.Room
	sides := [4]func(i int) model.Pos{
		func(i int) model.Pos { return model.P(room, i, 0) },
		func(i int) model.Pos { return model.P(room, model.MaxCoord, i) },
		func(i int) model.Pos { return model.P(room, i, model.MaxCoord) },
		func(i int) model.Pos { return model.P(room, 0, i) },
	}
	var out []model.Pos
	for _, side := range sides {
		start := -1
		for i := 1; i <= model.MaxCoord; i++ {
			open := i < model.MaxCoord && an.WalkableAt(side(i))
			if open && start < 0 {
				start = i
			}
			if !open && start >= 0 {
				out = append(out, side((start+i-1)/2))
				start = -1
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return model.Less(out[i], out[j]) })
	return out
}
