package room

import (
	"strings"
	"testing"

	"github.com/mrskaggs/cline-ai-sub002/internal/plan/model"
	"github.com/mrskaggs/cline-ai-sub002/internal/plan/templates"
	"github.com/mrskaggs/cline-ai-sub002/internal/plan/worldapi"
	"github.com/mrskaggs/cline-ai-sub002/internal/plan/worldapi/worldtest"
)

type recorder struct{ events []Event }

func (r *recorder) Emit(ev Event) { r.events = append(r.events, ev) }

func (r *recorder) kinds(kind string) int {
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func addRoom(w *worldtest.Fake, name string, level int) *worldtest.Room {
	r := w.AddRoom(name, level)
	r.BorderWalls(model.P(name, 25, 0), model.P(name, 26, 0))
	r.Landmarks = worldapi.Landmarks{
		Sources:    []model.Pos{model.P(name, 8, 8), model.P(name, 42, 10)},
		Controller: model.P(name, 25, 44),
	}
	return r
}

func newManager(w worldapi.World, sink EventSink) (*Manager, *MemoryStore) {
	store := NewMemoryStore()
	cfg := Config{PlanEveryTicks: 10, StaleFactor: 10, ScanEveryTicks: 50, DecayEveryTicks: 100}
	return NewManager(w, store, cfg, sink, nil), store
}

func TestTick_InitialPlanReturnsEarly(t *testing.T) {
	w := worldtest.New()
	addRoom(w, "W1N1", 2)
	rec := &recorder{}
	m, store := newManager(w, rec)

	rep := m.Tick(0)
	if len(rep.Rooms) != 1 {
		t.Fatalf("rooms: got %d want 1", len(rep.Rooms))
	}
	rr := rep.Rooms[0]
	if rr.Err != nil {
		t.Fatalf("unexpected error: %v", rr.Err)
	}
	if !rr.Replanned || !rr.BuildingsUpdated || !rr.RoadsUpdated {
		t.Fatalf("first tick should fully plan: %+v", rr)
	}
	if rr.Scanned {
		t.Fatalf("replan pass must not scan")
	}
	saved, ok := store.Load("W1N1")
	if !ok || saved.Plan.PlanLevel != 2 {
		t.Fatalf("plan not saved at level 2")
	}
	if len(saved.Plan.Buildings) == 0 || len(saved.Plan.Roads) == 0 {
		t.Fatalf("saved plan empty: %d buildings %d roads", len(saved.Plan.Buildings), len(saved.Plan.Roads))
	}
	if rec.kinds(EventReplan) != 1 {
		t.Fatalf("replan events: got %d want 1", rec.kinds(EventReplan))
	}
}

func TestTick_CadenceRunsOneBranch(t *testing.T) {
	w := worldtest.New()
	addRoom(w, "W1N1", 3)
	m, _ := newManager(w, nil)
	m.Tick(0)

	for tick := uint64(1); tick < 10; tick++ {
		rr := m.Tick(tick).Rooms[0]
		if rr.BuildingsUpdated || rr.RoadsUpdated {
			t.Fatalf("tick %d: planning outside cadence: %+v", tick, rr)
		}
	}
	rr := m.Tick(10).Rooms[0]
	if !rr.BuildingsUpdated {
		t.Fatalf("unplaced buildings should trigger a building pass")
	}
	if rr.RoadsUpdated {
		t.Fatalf("road pass ran alongside an unchanged building pass")
	}
	rr = m.Tick(20).Rooms[0]
	if !rr.RoadsUpdated || rr.BuildingsUpdated {
		t.Fatalf("due roads should get the next cadence tick: %+v", rr)
	}
}

func TestTick_DriftForcesReplan(t *testing.T) {
	w := worldtest.New()
	addRoom(w, "W1N1", 2)
	m, store := newManager(w, nil)

	stale := NewRecord("W1N1")
	stale.Plan.PlanLevel = 2
	for i := 0; i < 15; i++ {
		stale.Plan.Buildings = append(stale.Plan.Buildings, model.Building{
			Type: model.Extension, Pos: model.P("W1N1", 10+i, 30), Priority: 50, LevelRequired: 2,
		})
	}
	store.Save("W1N1", stale)

	rr := m.Tick(7).Rooms[0]
	if !rr.Replanned || !strings.HasPrefix(rr.Reason, "drift") {
		t.Fatalf("expected drift replan, got %+v", rr)
	}
	saved, _ := store.Load("W1N1")
	if n := saved.Plan.Counts()[model.Extension]; n > templates.LimitFor(model.Extension, 2) {
		t.Fatalf("extensions after replan: got %d want <= 5", n)
	}
	if len(stale.Plan.Buildings) != 15 {
		t.Fatalf("stored record was mutated in place")
	}
}

func TestTick_LevelChangeReplans(t *testing.T) {
	w := worldtest.New()
	r := addRoom(w, "W1N1", 2)
	m, store := newManager(w, nil)
	m.Tick(0)

	r.Level = 4
	rr := m.Tick(3).Rooms[0]
	if !rr.Replanned || rr.Reason != "level 2->4" {
		t.Fatalf("expected level replan, got %+v", rr)
	}
	saved, _ := store.Load("W1N1")
	if saved.Plan.Counts()[model.Extension] != templates.LimitFor(model.Extension, 4) {
		t.Fatalf("extensions at level 4: got %d", saved.Plan.Counts()[model.Extension])
	}

	r.Level = 3
	rr = m.Tick(4).Rooms[0]
	if !rr.Replanned {
		t.Fatalf("downgrade should replan")
	}
	saved, _ = store.Load("W1N1")
	for st, n := range saved.Plan.Counts() {
		if n > templates.LimitFor(st, 3) {
			t.Fatalf("%s over limit after downgrade: %d", st, n)
		}
	}
}

type panicky struct {
	*worldtest.Fake
	room string
}

func (p panicky) ControllerLevel(room string) int {
	if room == p.room {
		panic("corrupted controller")
	}
	return p.Fake.ControllerLevel(room)
}

func TestTick_IsolatesFailingRoom(t *testing.T) {
	w := worldtest.New()
	addRoom(w, "W1N1", 2)
	addRoom(w, "W2N1", 2)
	rec := &recorder{}
	m, store := newManager(panicky{Fake: w, room: "W1N1"}, rec)

	rep := m.Tick(0)
	if len(rep.Errors()) != 1 || rep.Errors()[0].Room != "W1N1" {
		t.Fatalf("errors: %+v", rep.Errors())
	}
	if _, ok := store.Load("W1N1"); ok {
		t.Fatalf("failing room must not be saved")
	}
	if saved, ok := store.Load("W2N1"); !ok || len(saved.Plan.Buildings) == 0 {
		t.Fatalf("healthy room not planned")
	}
	if rec.kinds(EventError) != 1 {
		t.Fatalf("error events: got %d want 1", rec.kinds(EventError))
	}
}

func TestTick_ScanFlagsDestroyedStructures(t *testing.T) {
	w := worldtest.New()
	r := addRoom(w, "W1N1", 1)
	rec := &recorder{}
	m, store := newManager(w, rec)

	m.Tick(0)
	r.CompleteMarkers()
	m.Tick(10)
	saved, _ := store.Load("W1N1")
	spawn := saved.Plan.Buildings[0]
	if spawn.Type != model.Spawn || !spawn.Placed {
		t.Fatalf("spawn not reconciled: %+v", spawn)
	}

	r.Destroy(spawn.Pos, model.Spawn)
	rr := m.Tick(50).Rooms[0]
	if !rr.Scanned || rr.Rebuilds < 1 {
		t.Fatalf("scan did not flag the spawn: %+v", rr)
	}
	saved, _ = store.Load("W1N1")
	if saved.Plan.Buildings[0].Placed || !saved.Plan.Buildings[0].EverPlaced {
		t.Fatalf("spawn flags after scan: %+v", saved.Plan.Buildings[0])
	}
	if rec.kinds(EventScan) == 0 {
		t.Fatalf("no scan event emitted")
	}

	m.Tick(60)
	if got := len(w.RequestsOf(model.Spawn)); got != 2 {
		t.Fatalf("spawn requests: got %d want 2 (initial + rebuild)", got)
	}
}

func TestTick_TrafficSampledEveryTick(t *testing.T) {
	w := worldtest.New()
	r := addRoom(w, "W1N1", 2)
	r.Samples = []model.Pos{model.P("W1N1", 20, 20)}
	m, store := newManager(w, nil)
	for tick := uint64(0); tick < 5; tick++ {
		m.Tick(tick)
	}
	saved, _ := store.Load("W1N1")
	if saved.Traffic.Samples != 5 {
		t.Fatalf("samples: got %d want 5", saved.Traffic.Samples)
	}
}

func TestTick_RoadPassesContinueWhileBuildingStuck(t *testing.T) {
	w := worldtest.New()
	r := addRoom(w, "W1N1", 2)
	m, store := newManager(w, nil)
	m.Tick(0)

	saved, _ := store.Load("W1N1")
	var stuck model.Pos
	found := false
	for _, b := range saved.Plan.Buildings {
		if b.Type == model.Extension && b.RequestID == "" {
			stuck, found = b.Pos, true
			break
		}
	}
	if !found {
		t.Fatalf("every extension was requested on the first pass")
	}
	r.PutUnit(stuck, "idle")

	roadPasses := 0
	for tick := uint64(1); tick <= 1000; tick++ {
		r.CompleteMarkers()
		if m.Tick(tick).Rooms[0].RoadsUpdated {
			roadPasses++
		}
	}
	if roadPasses < 2 {
		t.Fatalf("road passes while an extension is blocked: got %d", roadPasses)
	}
	if got := len(w.RequestsOf(model.Road)); got <= 5 {
		t.Fatalf("road requests stalled at %d", got)
	}
	saved, _ = store.Load("W1N1")
	i, _ := saved.Plan.BuildingAt(stuck)
	if saved.Plan.Buildings[i].Placed {
		t.Fatalf("blocked extension reported placed")
	}
	assertRoadsBuilt(t, saved.Plan)
}

func TestTick_ConvergesAcrossLevelUp(t *testing.T) {
	w := worldtest.New()
	r := addRoom(w, "W1N1", 2)
	m, store := newManager(w, nil)

	run := func(from, to uint64) {
		for tick := from; tick < to; tick++ {
			rep := m.Tick(tick)
			if errs := rep.Errors(); len(errs) > 0 {
				t.Fatalf("tick %d: %v", tick, errs[0].Err)
			}
			r.CompleteMarkers()
		}
	}
	run(0, 1000)
	saved, _ := store.Load("W1N1")
	assertBuildingsBuilt(t, w, saved.Plan, 2)
	assertRoadsBuilt(t, saved.Plan)

	r.Level = 4
	run(1000, 3000)
	saved, _ = store.Load("W1N1")
	if saved.Plan.PlanLevel != 4 {
		t.Fatalf("plan level: got %d want 4", saved.Plan.PlanLevel)
	}
	assertBuildingsBuilt(t, w, saved.Plan, 4)
	assertRoadsBuilt(t, saved.Plan)
	if got := r.StructureCount(model.Storage); got != 1 {
		t.Fatalf("storages built: got %d want 1", got)
	}
	if got := r.StructureCount(model.Extension); got != templates.LimitFor(model.Extension, 4) {
		t.Fatalf("extensions built: got %d want %d", got, templates.LimitFor(model.Extension, 4))
	}
}

func assertBuildingsBuilt(t *testing.T, w *worldtest.Fake, plan *model.Plan, level int) {
	t.Helper()
	for _, b := range plan.Buildings {
		if b.LevelRequired > level {
			continue
		}
		if !b.Placed {
			t.Fatalf("%s at %s never placed", b.Type, b.Pos)
		}
		for _, s := range w.StructuresAt(b.Pos) {
			if s != b.Type && !model.CanShareTile(s, b.Type) {
				t.Fatalf("%s at %s shares its tile with %s", b.Type, b.Pos, s)
			}
		}
	}
}

func assertRoadsBuilt(t *testing.T, plan *model.Plan) {
	t.Helper()
	n := 0
	for _, s := range plan.Roads {
		if s.Priority < 80 {
			continue
		}
		n++
		if !s.Placed {
			t.Fatalf("road at %s (priority %d) never placed", s.Pos, s.Priority)
		}
	}
	if n == 0 {
		t.Fatalf("no high priority roads planned")
	}
}
