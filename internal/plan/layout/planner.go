package layout

import (
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/mrskaggs/cline-ai-sub002/internal/plan/model"
	"github.com/mrskaggs/cline-ai-sub002/internal/plan/templates"
	"github.com/mrskaggs/cline-ai-sub002/internal/plan/terrain"
	"github.com/mrskaggs/cline-ai-sub002/internal/plan/worldapi"
)

type Config struct {
	// SiteBudget caps construction requests per invocation.
	SiteBudget     int
	MinSpawnAccess int
}

type Planner struct {
	world worldapi.World
	cfg   Config
	log   *log.Logger
}

func NewPlanner(w worldapi.World, cfg Config, logger *log.Logger) *Planner {
	if cfg.SiteBudget <= 0 {
		cfg.SiteBudget = 5
	}
	if cfg.MinSpawnAccess <= 0 {
		cfg.MinSpawnAccess = templates.DefaultMinSpawnAccess
	}
	return &Planner{world: w, cfg: cfg, log: logger}
}

// Rejection explains why a candidate or planned building was not acted on.
type Rejection struct {
	Type      model.StructureType
	Pos       model.Pos
	Reason    string
	Permanent bool
	Err       error
}

// Report lists what one PlanOrUpdate pass did with each entry.
type Report struct {
	Accepted   []model.Building
	// Dropped entries were removed from the stored plan to restore the
	// count invariant; they are also listed in Deferred.
	Dropped    []model.Building
	Deferred   []model.Building
	Rejected   []Rejection
	Failed     []Rejection
	Reconciled []model.Building
	Requested  []model.Building
}

// Changed reports whether the pass altered the building set.
func (r Report) Changed() bool { return len(r.Accepted) > 0 || len(r.Dropped) > 0 }

// PlanOrUpdate expands the templates up to level into existing (or a fresh
// plan), reconciles against the world and requests construction for the
// highest-priority unplaced buildings. existing is not modified.
func (p *Planner) PlanOrUpdate(room string, an *terrain.Analysis, level int, existing *model.Plan) (*model.Plan, Report) {
	var rep Report
	plan := existing.Clone()
	if plan == nil {
		plan = model.NewPlan(room)
	}
	if an == nil {
		rep.Rejected = append(rep.Rejected, Rejection{Reason: "no terrain analysis"})
		return plan, rep
	}

	p.enforceLimits(plan, level, &rep)

	c := newCandidates(plan, an, p.liveConflict)
	entries := templates.Upto(level)
	// Anchor-relative entries first so landmark entries resolve around them.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Relative == templates.RelAnchor && entries[j].Relative != templates.RelAnchor
	})
	for _, e := range entries {
		pos, ok := c.resolve(e)
		if !ok {
			continue
		}
		p.consider(plan, c, e, pos, level, &rep)
	}
	p.backfillExtensions(plan, c, level, &rep)

	p.reconcile(plan, &rep)
	p.emit(plan, level, &rep)

	model.SortBuildings(plan.Buildings)
	plan.PlanLevel = level
	plan.UpdateStatus(level)
	return plan, rep
}

// enforceLimits drops the lowest-priority unplaced entries of any type that
// exceeds its limit at level. Placed entries go only once no unplaced entry of
// that type is left.
func (p *Planner) enforceLimits(plan *model.Plan, level int, rep *Report) {
	counts := plan.Counts()
	over := map[model.StructureType]int{}
	for t, n := range counts {
		if lim := templates.LimitFor(t, level); n > lim {
			over[t] = n - lim
		}
	}
	if len(over) == 0 {
		return
	}
	idx := make([]int, len(plan.Buildings))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		x, y := plan.Buildings[idx[a]], plan.Buildings[idx[b]]
		if x.Placed != y.Placed {
			return !x.Placed
		}
		if x.Priority != y.Priority {
			return x.Priority < y.Priority
		}
		return model.Less(y.Pos, x.Pos)
	})
	drop := map[int]bool{}
	for _, i := range idx {
		b := plan.Buildings[i]
		if over[b.Type] == 0 {
			continue
		}
		over[b.Type]--
		drop[i] = true
		rep.Dropped = append(rep.Dropped, b)
		rep.Deferred = append(rep.Deferred, b)
	}
	kept := plan.Buildings[:0]
	for i, b := range plan.Buildings {
		if !drop[i] {
			kept = append(kept, b)
		}
	}
	plan.Buildings = kept
}

// consider adds the building for entry e at pos unless the tile is already
// planned, fails validation or the type is at its limit.
func (p *Planner) consider(plan *model.Plan, c *candidates, e templates.Entry, pos model.Pos, level int, rep *Report) bool {
	t := e.Type
	if i, ok := plan.BuildingAt(pos); ok {
		if plan.Buildings[i].Type == t {
			if plan.Buildings[i].Slot == "" {
				plan.Buildings[i].Slot = e.Slot()
			}
			return false
		}
		if !model.CanShareTile(plan.Buildings[i].Type, t) {
			rep.Rejected = append(rep.Rejected, Rejection{Type: t, Pos: pos, Reason: "conflicts with planned " + string(plan.Buildings[i].Type), Permanent: true})
			return false
		}
	}
	if reason, ok := p.validatePermanent(c.an, t, pos); !ok {
		rep.Rejected = append(rep.Rejected, Rejection{Type: t, Pos: pos, Reason: reason, Permanent: true})
		return false
	}
	if t.Obstructs() && model.Range(pos, c.an.Keys.Anchor) == 1 && c.spawnAccess()-1 < p.cfg.MinSpawnAccess {
		rep.Rejected = append(rep.Rejected, Rejection{Type: t, Pos: pos, Reason: "would block spawn access", Permanent: true})
		return false
	}
	b := model.Building{Type: t, Pos: pos, Priority: e.Priority, LevelRequired: e.Level, Slot: e.Slot()}
	if c.counts[t] >= templates.LimitFor(t, level) {
		rep.Deferred = append(rep.Deferred, b)
		return false
	}
	// A structure that cannot share the tile is never replaced by the
	// planner; the entry waits for it to go and spares are used meanwhile.
	if reason, bad := p.liveConflict(pos, t); bad {
		rep.Rejected = append(rep.Rejected, Rejection{Type: t, Pos: pos, Reason: reason})
		return false
	}
	plan.Buildings = append(plan.Buildings, b)
	c.take(t, pos)
	rep.Accepted = append(rep.Accepted, b)
	return true
}

// backfillExtensions uses spare extension slots when templated ones were lost
// to terrain.
func (p *Planner) backfillExtensions(plan *model.Plan, c *candidates, level int, rep *Report) {
	want := templates.LimitFor(model.Extension, level)
	if c.counts[model.Extension] >= want {
		return
	}
	slots := templates.ExtensionSlots()
	anchor := c.an.Keys.Anchor
	for i := want; i < len(slots) && c.counts[model.Extension] < want; i++ {
		pos := anchor.Add(slots[i].DX, slots[i].DY)
		if !pos.Buildable() || !c.an.WalkableAt(pos) {
			continue
		}
		if _, ok := plan.BuildingAt(pos); ok {
			continue
		}
		spare := templates.Entry{Type: model.Extension, Level: level, Priority: 85 - model.Range(pos, anchor), Relative: templates.RelAnchor}
		p.consider(plan, c, spare, pos, level, rep)
	}
}

func (p *Planner) validatePermanent(an *terrain.Analysis, t model.StructureType, pos model.Pos) (string, bool) {
	if _, err := worldapi.Rehydrate(p.world, pos); err != nil {
		return err.Error(), false
	}
	if !pos.Buildable() {
		return "on room border", false
	}
	if t != model.Extractor && !an.WalkableAt(pos) {
		return "wall terrain", false
	}
	return "", true
}

// liveConflict reports a structure or marker in the world that t cannot
// share pos with.
func (p *Planner) liveConflict(pos model.Pos, t model.StructureType) (string, bool) {
	tile, err := worldapi.Rehydrate(p.world, pos)
	if err != nil {
		return "", false
	}
	return tileConflict(tile, t)
}

func tileConflict(tile worldapi.Tile, t model.StructureType) (string, bool) {
	for _, s := range tile.Structures() {
		if s != t && !model.CanShareTile(s, t) {
			return "occupied by " + string(s), true
		}
	}
	for _, s := range tile.Markers() {
		if s != t && !model.CanShareTile(s, t) {
			return "pending marker " + string(s), true
		}
	}
	return "", false
}

// validateTransient checks conditions that may clear up by the next pass.
func validateTransient(tile worldapi.Tile, t model.StructureType) (string, bool) {
	if reason, bad := tileConflict(tile, t); bad {
		return reason, false
	}
	if t.Obstructs() && len(tile.Units()) > 0 {
		return "unit on tile", false
	}
	return "", true
}

func (p *Planner) reconcile(plan *model.Plan, rep *Report) {
	for i := range plan.Buildings {
		b := &plan.Buildings[i]
		if b.Placed {
			b.EverPlaced = true
			continue
		}
		tile, err := worldapi.Rehydrate(p.world, b.Pos)
		if err != nil {
			continue
		}
		if tile.HasStructure(b.Type) {
			b.Placed = true
			b.EverPlaced = true
			b.RequestID = ""
			rep.Reconciled = append(rep.Reconciled, *b)
		}
	}
}

func (p *Planner) emit(plan *model.Plan, level int, rep *Report) {
	var order []int
	for i, b := range plan.Buildings {
		if !b.Placed && b.LevelRequired <= level {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		x, y := plan.Buildings[order[a]], plan.Buildings[order[b]]
		if x.EverPlaced != y.EverPlaced {
			return x.EverPlaced
		}
		if x.Priority != y.Priority {
			return x.Priority > y.Priority
		}
		if x.Type != y.Type {
			return x.Type < y.Type
		}
		return model.Less(x.Pos, y.Pos)
	})

	failed := map[model.StructureType]bool{}
	var drop []int
	requested := 0
	for _, i := range order {
		if requested >= p.cfg.SiteBudget {
			break
		}
		b := &plan.Buildings[i]
		if failed[b.Type] {
			continue
		}
		tile, err := worldapi.Rehydrate(p.world, b.Pos)
		if err != nil {
			drop = append(drop, i)
			rep.Rejected = append(rep.Rejected, Rejection{Type: b.Type, Pos: b.Pos, Reason: err.Error(), Permanent: true, Err: err})
			continue
		}
		if tile.HasMarker(b.Type) {
			continue
		}
		if reason, ok := validateTransient(tile, b.Type); !ok {
			rep.Rejected = append(rep.Rejected, Rejection{Type: b.Type, Pos: b.Pos, Reason: reason})
			continue
		}
		id, err := tile.RequestConstruction(b.Type)
		switch {
		case err == nil:
			b.RequestID = id
			requested++
			rep.Requested = append(rep.Requested, *b)
		case errors.Is(err, worldapi.ErrOutOfBounds):
			drop = append(drop, i)
			rep.Rejected = append(rep.Rejected, Rejection{Type: b.Type, Pos: b.Pos, Reason: err.Error(), Permanent: true, Err: err})
		case worldapi.IsCapacity(err):
			failed[b.Type] = true
			rep.Failed = append(rep.Failed, Rejection{Type: b.Type, Pos: b.Pos, Reason: err.Error(), Err: err})
			p.logf("room %s: capacity rejection for %s: %v", plan.Room, b.Type, err)
			if errors.Is(err, worldapi.ErrFull) {
				p.removeDropped(plan, drop)
				return
			}
		default:
			rep.Rejected = append(rep.Rejected, Rejection{Type: b.Type, Pos: b.Pos, Reason: err.Error(), Err: err})
			p.logf("room %s: construction of %s rejected: %v", plan.Room, b.Type, err)
		}
	}
	p.removeDropped(plan, drop)
}

func (p *Planner) removeDropped(plan *model.Plan, drop []int) {
	if len(drop) == 0 {
		return
	}
	gone := map[int]bool{}
	for _, i := range drop {
		gone[i] = true
	}
	kept := plan.Buildings[:0]
	for i, b := range plan.Buildings {
		if !gone[i] {
			kept = append(kept, b)
		}
	}
	plan.Buildings = kept
}

func (p *Planner) logf(format string, args ...any) {
	if p.log != nil {
		p.log.Printf(format, args...)
	}
}

// HasInvalidStructureCounts reports whether any type in plan exceeds its
// limit at level.
func HasInvalidStructureCounts(plan *model.Plan, level int) bool {
	if plan == nil {
		return false
	}
	for t, n := range plan.Counts() {
		if n > templates.LimitFor(t, level) {
			return true
		}
	}
	return false
}

// Violations lists the types over their limit, for logging.
func Violations(plan *model.Plan, level int) []string {
	var out []string
	counts := plan.Counts()
	for _, t := range model.AllStructureTypes {
		n := counts[t]
		if lim := templates.LimitFor(t, level); n > lim {
			out = append(out, fmt.Sprintf("%s %d>%d", t, n, lim))
		}
	}
	return out
}
