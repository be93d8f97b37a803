package layout

import (
	"reflect"
	"testing"

	"github.com/mrskaggs/cline-ai-sub002/internal/plan/model"
	"github.com/mrskaggs/cline-ai-sub002/internal/plan/templates"
	"github.com/mrskaggs/cline-ai-sub002/internal/plan/terrain"
	"github.com/mrskaggs/cline-ai-sub002/internal/plan/worldapi"
	"github.com/mrskaggs/cline-ai-sub002/internal/plan/worldapi/worldtest"
)

const room = "W1N1"

func setup(t *testing.T, level int) (*worldtest.Fake, *worldtest.Room, *terrain.Analysis) {
	t.Helper()
	w := worldtest.New()
	r := w.AddRoom(room, level)
	r.BorderWalls(model.P(room, 25, 0), model.P(room, 26, 0))
	mineral := model.P(room, 40, 40)
	r.Landmarks = worldapi.Landmarks{
		Sources:    []model.Pos{model.P(room, 8, 8), model.P(room, 42, 10)},
		Controller: model.P(room, 25, 44),
		Mineral:    &mineral,
	}
	an, err := terrain.NewAnalyzer(w, 0, nil).Analyze(room, 0)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	return w, r, an
}

func count(plan *model.Plan, st model.StructureType) int {
	return plan.Counts()[st]
}

func TestPlanOrUpdate_CountInvariantAllLevels(t *testing.T) {
	w, _, an := setup(t, 8)
	p := NewPlanner(w, Config{SiteBudget: 100}, nil)

	var plan *model.Plan
	for lvl := 0; lvl <= templates.MaxLevel; lvl++ {
		plan, _ = p.PlanOrUpdate(room, an, lvl, plan)
		for st, n := range plan.Counts() {
			if lim := templates.LimitFor(st, lvl); n > lim {
				t.Fatalf("incremental level %d: %d %s > limit %d", lvl, n, st, lim)
			}
		}
		fresh, _ := NewPlanner(w, Config{SiteBudget: 1}, nil).PlanOrUpdate(room, an, lvl, nil)
		for st, n := range fresh.Counts() {
			if lim := templates.LimitFor(st, lvl); n > lim {
				t.Fatalf("fresh level %d: %d %s > limit %d", lvl, n, st, lim)
			}
		}
	}
	if got := count(plan, model.Extension); got != 60 {
		t.Fatalf("extensions at level 8: got %d want 60", got)
	}
	if got := count(plan, model.Tower); got != 6 {
		t.Fatalf("towers at level 8: got %d want 6", got)
	}
	if got := count(plan, model.Extractor); got != 1 {
		t.Fatalf("extractor at level 8: got %d want 1", got)
	}
}

func TestPlanOrUpdate_Idempotent(t *testing.T) {
	w, _, an := setup(t, 4)
	p := NewPlanner(w, Config{SiteBudget: 100}, nil)

	first, _ := p.PlanOrUpdate(room, an, 4, nil)
	second, rep := p.PlanOrUpdate(room, an, 4, first)
	if !reflect.DeepEqual(first.Buildings, second.Buildings) {
		t.Fatalf("building set changed between identical passes")
	}
	if len(rep.Accepted) != 0 {
		t.Fatalf("second pass accepted %d new buildings", len(rep.Accepted))
	}
	seen := map[model.Pos]bool{}
	for _, b := range second.Buildings {
		if seen[b.Pos] {
			t.Fatalf("duplicate building at %s", b.Pos)
		}
		seen[b.Pos] = true
	}
}

func TestPlanOrUpdate_DoesNotMutateExisting(t *testing.T) {
	w, _, an := setup(t, 2)
	p := NewPlanner(w, Config{SiteBudget: 10}, nil)
	existing := model.NewPlan(room)
	_, _ = p.PlanOrUpdate(room, an, 2, existing)
	if len(existing.Buildings) != 0 {
		t.Fatalf("existing plan was modified")
	}
}

func TestPlanOrUpdate_ReconcilesOutOfBandBuild(t *testing.T) {
	w, r, an := setup(t, 2)
	p := NewPlanner(w, Config{SiteBudget: 1}, nil)

	plan, _ := p.PlanOrUpdate(room, an, 2, nil)
	var target model.Building
	for _, b := range plan.Buildings {
		if b.Type == model.Extension && !b.Placed && b.RequestID == "" {
			target = b
			break
		}
	}
	if target.Type == "" {
		t.Fatalf("no unrequested extension in plan")
	}
	r.Build(target.Pos, model.Extension)
	before := len(w.Requests)

	plan, rep := NewPlanner(w, Config{SiteBudget: 100}, nil).PlanOrUpdate(room, an, 2, plan)
	i, ok := plan.BuildingAt(target.Pos)
	if !ok || !plan.Buildings[i].Placed {
		t.Fatalf("extension at %s not reconciled", target.Pos)
	}
	if !plan.Buildings[i].EverPlaced {
		t.Fatalf("reconciled building missing EverPlaced")
	}
	if len(rep.Reconciled) == 0 {
		t.Fatalf("report lists no reconciled buildings")
	}
	for _, req := range w.Requests[before:] {
		if req.Pos == target.Pos {
			t.Fatalf("construction requested for already-built %s", target.Pos)
		}
	}
}

func TestPlanOrUpdate_DriftTrimsToLimit(t *testing.T) {
	w, _, an := setup(t, 2)
	stale := model.NewPlan(room)
	stale.PlanLevel = 2
	for i := 0; i < 15; i++ {
		stale.Buildings = append(stale.Buildings, model.Building{
			Type: model.Extension, Pos: model.P(room, 10+i, 30), Priority: 50, LevelRequired: 2,
		})
	}
	if !HasInvalidStructureCounts(stale, 2) {
		t.Fatalf("15 extensions at level 2 not detected as invalid")
	}
	if v := Violations(stale, 2); len(v) != 1 || v[0] != "extension 15>5" {
		t.Fatalf("violations: got %v", v)
	}
	plan, rep := NewPlanner(w, Config{SiteBudget: 5}, nil).PlanOrUpdate(room, an, 2, stale)
	if got := count(plan, model.Extension); got > 5 {
		t.Fatalf("extensions after pass: got %d want <= 5", got)
	}
	if len(rep.Dropped) != 10 {
		t.Fatalf("dropped: got %d want 10", len(rep.Dropped))
	}
	if HasInvalidStructureCounts(plan, 2) {
		t.Fatalf("plan still invalid after pass")
	}
}

func TestPlanOrUpdate_CapacityRejectionNotRetried(t *testing.T) {
	w, _, an := setup(t, 2)
	w.Reject[model.Extension] = worldapi.ErrLevelTooLow
	plan, rep := NewPlanner(w, Config{SiteBudget: 10}, nil).PlanOrUpdate(room, an, 2, nil)
	n := 0
	for _, f := range rep.Failed {
		if f.Type == model.Extension {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("extension attempts after capacity rejection: got %d want 1", n)
	}
	for _, b := range plan.Buildings {
		if b.Type == model.Extension && (b.Placed || b.RequestID != "") {
			t.Fatalf("rejected extension marked as requested: %+v", b)
		}
	}
	if len(w.RequestsOf(model.Container)) == 0 {
		t.Fatalf("other types should still be requested")
	}
}

func TestPlanOrUpdate_ErrFullStopsEmission(t *testing.T) {
	w, _, an := setup(t, 2)
	w.Reject[model.Spawn] = worldapi.ErrFull
	_, rep := NewPlanner(w, Config{SiteBudget: 10}, nil).PlanOrUpdate(room, an, 2, nil)
	if len(w.Requests) != 0 {
		t.Fatalf("requests after ErrFull: got %d want 0", len(w.Requests))
	}
	if len(rep.Failed) != 1 {
		t.Fatalf("failed: got %d want 1", len(rep.Failed))
	}
}

func TestPlanOrUpdate_SiteBudget(t *testing.T) {
	w, _, an := setup(t, 3)
	_, rep := NewPlanner(w, Config{SiteBudget: 3}, nil).PlanOrUpdate(room, an, 3, nil)
	if len(rep.Requested) != 3 || len(w.Requests) != 3 {
		t.Fatalf("requested: got %d/%d want 3", len(rep.Requested), len(w.Requests))
	}
	if rep.Requested[0].Type != model.Spawn {
		t.Fatalf("highest priority first: got %s want spawn", rep.Requested[0].Type)
	}
}

func TestPlanOrUpdate_UnitOnTileDefersRequest(t *testing.T) {
	w, r, an := setup(t, 1)
	r.PutUnit(an.Keys.Anchor, "harvester1")
	plan, rep := NewPlanner(w, Config{SiteBudget: 5}, nil).PlanOrUpdate(room, an, 1, nil)
	if len(w.Requests) != 0 {
		t.Fatalf("requested spawn under a unit")
	}
	if len(rep.Rejected) == 0 || rep.Rejected[0].Permanent {
		t.Fatalf("expected transient rejection, got %+v", rep.Rejected)
	}
	r.ClearUnits()
	_, _ = NewPlanner(w, Config{SiteBudget: 5}, nil).PlanOrUpdate(room, an, 1, plan)
	if got := len(w.RequestsOf(model.Spawn)); got != 1 {
		t.Fatalf("spawn requests after unit moved: got %d want 1", got)
	}
}

func TestPlanOrUpdate_BackfillsExtensionsLostToWalls(t *testing.T) {
	w, r, _ := setup(t, 3)
	an0, _ := terrain.NewAnalyzer(w, 0, nil).Analyze(room, 0)
	anchor := an0.Keys.Anchor
	slots := templates.ExtensionSlots()
	for _, s := range slots[:4] {
		r.SetWall(anchor.X+s.DX, anchor.Y+s.DY)
	}
	r.Build(anchor, model.Spawn) // pin the anchor
	an, _ := terrain.NewAnalyzer(w, 0, nil).Analyze(room, 0)
	if an.Keys.Anchor != anchor {
		t.Fatalf("anchor moved: %s vs %s", an.Keys.Anchor, anchor)
	}
	plan, _ := NewPlanner(w, Config{SiteBudget: 1}, nil).PlanOrUpdate(room, an, 3, nil)
	if got := count(plan, model.Extension); got != 10 {
		t.Fatalf("extensions with walls: got %d want 10", got)
	}
}

func TestPlanOrUpdate_SpawnAccessPreserved(t *testing.T) {
	w, _, an := setup(t, 2)
	plan, _ := NewPlanner(w, Config{SiteBudget: 1}, nil).PlanOrUpdate(room, an, 2, nil)
	free := 0
	for _, n := range model.Neighbors8(an.Keys.Anchor) {
		if i, ok := plan.BuildingAt(n); ok && plan.Buildings[i].Type.Obstructs() {
			continue
		}
		free++
	}
	if free < 2 {
		t.Fatalf("spawn neighbours free: got %d want >= 2", free)
	}
}

func TestPlanOrUpdate_LandmarkEntriesStable(t *testing.T) {
	w, _, an := setup(t, 6)
	p := NewPlanner(w, Config{SiteBudget: 1}, nil)
	plan, _ := p.PlanOrUpdate(room, an, 6, nil)
	again, _ := p.PlanOrUpdate(room, an, 6, plan)
	if count(again, model.Container) != count(plan, model.Container) {
		t.Fatalf("container count changed on replan: %d vs %d", count(plan, model.Container), count(again, model.Container))
	}
	i, ok := plan.BuildingAt(*an.Keys.Mineral)
	if !ok || plan.Buildings[i].Type != model.Extractor {
		t.Fatalf("extractor not planned on mineral")
	}
}

func TestPlanOrUpdate_SourceNextToController(t *testing.T) {
	w := worldtest.New()
	r := w.AddRoom(room, 2)
	r.BorderWalls(model.P(room, 25, 0))
	r.Landmarks = worldapi.Landmarks{
		Sources:    []model.Pos{model.P(room, 20, 20)},
		Controller: model.P(room, 20, 23),
	}
	r.Build(model.P(room, 30, 30), model.Spawn)
	an, err := terrain.NewAnalyzer(w, 0, nil).Analyze(room, 0)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	p := NewPlanner(w, Config{SiteBudget: 1}, nil)

	plan, _ := p.PlanOrUpdate(room, an, 2, nil)
	slots := map[string]model.Pos{}
	for _, b := range plan.Buildings {
		if b.Type == model.Container {
			slots[b.Slot] = b.Pos
		}
	}
	src, ok1 := slots["source0/container"]
	ctl, ok2 := slots["controller0/container"]
	if len(slots) != 2 || !ok1 || !ok2 {
		t.Fatalf("containers: %v", slots)
	}
	if model.Range(src, an.Keys.Sources[0]) != 1 || model.Range(ctl, an.Keys.Controller) != 2 || src == ctl {
		t.Fatalf("container tiles: source %s controller %s", src, ctl)
	}

	again, _ := p.PlanOrUpdate(room, an, 2, plan)
	if !reflect.DeepEqual(positions(again, model.Container), positions(plan, model.Container)) {
		t.Fatalf("containers moved: %v vs %v", positions(plan, model.Container), positions(again, model.Container))
	}
}

func TestPlanOrUpdate_LiveRoadKeepsTileFree(t *testing.T) {
	w, r, _ := setup(t, 4)
	an0, _ := terrain.NewAnalyzer(w, 0, nil).Analyze(room, 0)
	anchor := an0.Keys.Anchor
	r.Build(anchor, model.Spawn)
	storage := anchor.Add(0, 2)
	slot := templates.ExtensionSlots()[0]
	ext := anchor.Add(slot.DX, slot.DY)
	r.Build(storage, model.Road)
	r.Build(ext, model.Road)
	an, _ := terrain.NewAnalyzer(w, 0, nil).Analyze(room, 0)

	plan, rep := NewPlanner(w, Config{SiteBudget: 1}, nil).PlanOrUpdate(room, an, 4, nil)
	for _, pos := range []model.Pos{storage, ext} {
		if _, ok := plan.BuildingAt(pos); ok {
			t.Fatalf("building planned on live road at %s", pos)
		}
	}
	if got := count(plan, model.Extension); got != templates.LimitFor(model.Extension, 4) {
		t.Fatalf("extensions: got %d want %d", got, templates.LimitFor(model.Extension, 4))
	}
	found := false
	for _, rj := range rep.Rejected {
		if rj.Pos == storage && rj.Type == model.Storage && !rj.Permanent {
			found = true
		}
	}
	if !found {
		t.Fatalf("storage rejection not reported: %+v", rep.Rejected)
	}

	// Once the road decays the storage takes its tile.
	r.Destroy(storage, model.Road)
	plan, _ = NewPlanner(w, Config{SiteBudget: 1}, nil).PlanOrUpdate(room, an, 4, plan)
	if i, ok := plan.BuildingAt(storage); !ok || plan.Buildings[i].Type != model.Storage {
		t.Fatalf("storage not planned after road went away")
	}
}

func positions(plan *model.Plan, st model.StructureType) []model.Pos {
	var out []model.Pos
	for _, b := range plan.Buildings {
		if b.Type == st {
			out = append(out, b.Pos)
		}
	}
	return out
}
