package roads

import (
	"errors"
	"log"
	"sort"

	"github.com/mrskaggs/cline-ai-sub002/internal/plan/model"
	"github.com/mrskaggs/cline-ai-sub002/internal/plan/templates"
	"github.com/mrskaggs/cline-ai-sub002/internal/plan/terrain"
	"github.com/mrskaggs/cline-ai-sub002/internal/plan/traffic"
	"github.com/mrskaggs/cline-ai-sub002/internal/plan/worldapi"
)

// Priority tiers per path type. Source paths step down by SourceTierStep per
// source index so the first source is connected first.
const (
	PrioritySource     = 100
	SourceTierStep     = 2
	PriorityController = 95
	PriorityMineral    = 70
	PriorityExit       = 60
	PriorityInternal   = 30
)

// Config holds the road thresholds. Zero values take the defaults in
// applyDefaults.
type Config struct {
	MinTrafficForRoad        float64
	HighPriorityCutoff       int
	RebuildPriorityThreshold int
	// TrafficMergeThreshold is the score at which a busy tile is promoted to
	// an Internal segment. Zero means MinTrafficForRoad.
	TrafficMergeThreshold float64
	RoadBudget            int
}

func (c *Config) applyDefaults() {
	if c.MinTrafficForRoad <= 0 {
		c.MinTrafficForRoad = 5
	}
	if c.HighPriorityCutoff <= 0 {
		c.HighPriorityCutoff = 80
	}
	if c.RebuildPriorityThreshold <= 0 {
		c.RebuildPriorityThreshold = 75
	}
	if c.TrafficMergeThreshold <= 0 {
		c.TrafficMergeThreshold = c.MinTrafficForRoad
	}
	if c.RoadBudget <= 0 {
		c.RoadBudget = 5
	}
}

// Planner lays out and requests the road network of a room.
type Planner struct {
	world   worldapi.World
	traffic *traffic.Analyzer
	cfg     Config
	log     *log.Logger
}

func NewPlanner(w worldapi.World, ta *traffic.Analyzer, cfg Config, logger *log.Logger) *Planner {
	cfg.applyDefaults()
	return &Planner{world: w, traffic: ta, cfg: cfg, log: logger}
}

func (p *Planner) Config() Config { return p.cfg }

// PlanRoadNetwork connects the anchor to every source, the controller, the
// mineral (once an extractor is unlocked) and each exit, then merges busy
// tiles from td. Segments in existing are never removed; their placement
// state is carried over and their priority only ever rises.
func (p *Planner) PlanRoadNetwork(room string, an *terrain.Analysis, level int, buildings []model.Building, existing []model.RoadSegment, td *traffic.Data) []model.RoadSegment {
	if an == nil {
		return cloneRoads(existing)
	}
	m := NewCostMatrix(an)
	obstructed := map[model.Pos]bool{}
	for _, b := range buildings {
		if b.Type.Obstructs() {
			m.Block(b.Pos)
			obstructed[b.Pos] = true
		}
	}
	// Tiles the layout fills at later levels are kept road-free too, so a
	// level-up never finds a road where its buildings go.
	anchor := an.Keys.Anchor
	for _, e := range templates.Upto(templates.MaxLevel) {
		if e.Relative != templates.RelAnchor || !templates.Footprint(e.Offset) {
			continue
		}
		pos := anchor.Add(e.Offset.DX, e.Offset.DY)
		if pos.InRoom() {
			m.Block(pos)
			obstructed[pos] = true
		}
	}
	for _, s := range existing {
		if !obstructed[s.Pos] {
			m.Prefer(s.Pos)
		}
	}

	fresh := map[model.Pos]model.RoadSegment{}
	add := func(path []model.Pos, prio int, pt model.PathType) {
		for _, pos := range path {
			if !pos.Buildable() || obstructed[pos] {
				continue
			}
			m.Prefer(pos)
			if cur, ok := fresh[pos]; ok && cur.Priority >= prio {
				continue
			}
			fresh[pos] = model.RoadSegment{Pos: pos, Priority: prio, PathType: pt}
		}
	}

	for i, src := range an.Keys.Sources {
		add(FindPath(m, anchor, src, 1), PrioritySource-SourceTierStep*i, model.PathSource)
	}
	if c := an.Keys.Controller; c.Room == room {
		add(FindPath(m, anchor, c, 1), PriorityController, model.PathController)
	}
	if an.Keys.Mineral != nil && level >= templates.MinLevel(model.Extractor) {
		add(FindPath(m, anchor, *an.Keys.Mineral, 1), PriorityMineral, model.PathMineral)
	}
	for _, exit := range an.Keys.Exits {
		add(FindPath(m, anchor, exit, 1), PriorityExit, model.PathExit)
	}

	if td != nil && p.traffic != nil {
		for _, pos := range p.traffic.HighTrafficPositions(td, p.cfg.TrafficMergeThreshold) {
			if !pos.Buildable() || obstructed[pos] || !an.WalkableAt(pos) {
				continue
			}
			if _, ok := fresh[pos]; ok {
				continue
			}
			fresh[pos] = model.RoadSegment{Pos: pos, Priority: PriorityInternal, PathType: model.PathInternal}
		}
	}

	out := cloneRoads(existing)
	idx := make(map[model.Pos]int, len(out))
	for i, s := range out {
		idx[s.Pos] = i
	}
	for pos, s := range fresh {
		if i, ok := idx[pos]; ok {
			if s.Priority > out[i].Priority {
				out[i].Priority = s.Priority
				out[i].PathType = s.PathType
			}
			continue
		}
		idx[pos] = len(out)
		out = append(out, s)
	}
	for i := range out {
		if p.traffic != nil {
			out[i].TrafficScore = p.traffic.ScoreAt(td, out[i].Pos)
		}
	}
	model.SortRoads(out)
	return out
}

// WasPreviouslyPlaced reports whether an unplaced segment is a rebuild
// candidate: either a structure was observed there before, or its tier says
// it must have been built by now.
func (p *Planner) WasPreviouslyPlaced(s model.RoadSegment) bool {
	if s.Placed {
		return false
	}
	return s.EverPlaced || (s.PathType != model.PathInternal && s.Priority > p.cfg.RebuildPriorityThreshold)
}

// Eligible reports whether an unplaced segment qualifies for a road under
// the traffic and priority thresholds, or as a rebuild.
func (p *Planner) Eligible(s model.RoadSegment) bool {
	if s.Placed {
		return false
	}
	return s.TrafficScore >= p.cfg.MinTrafficForRoad ||
		s.Priority >= p.cfg.HighPriorityCutoff ||
		p.WasPreviouslyPlaced(s)
}

// Reconcile marks segments whose road now exists as placed and returns how
// many changed.
func (p *Planner) Reconcile(roads []model.RoadSegment) int {
	n := 0
	for i := range roads {
		s := &roads[i]
		if s.Placed {
			s.EverPlaced = true
			continue
		}
		tile, err := worldapi.Rehydrate(p.world, s.Pos)
		if err != nil || !tile.HasStructure(model.Road) {
			continue
		}
		s.Placed = true
		s.EverPlaced = true
		s.RequestID = ""
		n++
	}
	return n
}

// PlaceConstructionRequests requests roads for eligible segments, rebuilds
// first, then by priority, then by traffic, up to RoadBudget. roads is
// updated in place with request ids. Returns the number of requests issued.
func (p *Planner) PlaceConstructionRequests(room string, roads []model.RoadSegment) int {
	p.Reconcile(roads)
	var order []int
	for i, s := range roads {
		if s.Pos.Room == room && p.Eligible(s) {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		x, y := roads[order[a]], roads[order[b]]
		rx, ry := p.WasPreviouslyPlaced(x), p.WasPreviouslyPlaced(y)
		if rx != ry {
			return rx
		}
		if x.Priority != y.Priority {
			return x.Priority > y.Priority
		}
		if x.TrafficScore != y.TrafficScore {
			return x.TrafficScore > y.TrafficScore
		}
		return model.Less(x.Pos, y.Pos)
	})

	n := 0
	for _, i := range order {
		if n >= p.cfg.RoadBudget {
			break
		}
		s := &roads[i]
		tile, err := worldapi.Rehydrate(p.world, s.Pos)
		if err != nil {
			continue
		}
		if tile.HasMarker(model.Road) || blocked(tile) {
			continue
		}
		id, err := tile.RequestConstruction(model.Road)
		switch {
		case err == nil:
			s.RequestID = id
			n++
		case worldapi.IsCapacity(err):
			p.logf("room %s: road capacity rejection at %s: %v", room, s.Pos, err)
			return n
		case errors.Is(err, worldapi.ErrOutOfBounds):
		default:
			p.logf("room %s: road at %s rejected: %v", room, s.Pos, err)
		}
	}
	return n
}

// PendingRebuilds counts segments that were seen built and are now missing.
func PendingRebuilds(roads []model.RoadSegment) int {
	n := 0
	for _, s := range roads {
		if s.EverPlaced && !s.Placed && s.RequestID == "" {
			n++
		}
	}
	return n
}

func blocked(tile worldapi.Tile) bool {
	for _, s := range tile.Structures() {
		if !model.CanShareTile(s, model.Road) {
			return true
		}
	}
	for _, s := range tile.Markers() {
		if !model.CanShareTile(s, model.Road) {
			return true
		}
	}
	return false
}

func cloneRoads(in []model.RoadSegment) []model.RoadSegment {
	return append([]model.RoadSegment(nil), in...)
}

func (p *Planner) logf(format string, args ...any) {
	if p.log != nil {
		p.log.Printf(format, args...)
	}
}
