package replace

import (
	"testing"

	"github.com/mrskaggs/cline-ai-sub002/internal/plan/model"
	"github.com/mrskaggs/cline-ai-sub002/internal/plan/roads"
	"github.com/mrskaggs/cline-ai-sub002/internal/plan/worldapi/worldtest"
)

const room = "W1N1"

func TestScan_FlipsVanishedEntries(t *testing.T) {
	w := worldtest.New()
	r := w.AddRoom(room, 4)
	ext := model.P(room, 10, 10)
	road := model.P(room, 11, 10)
	tower := model.P(room, 12, 12)
	r.Build(ext, model.Extension)
	r.Build(road, model.Road)

	plan := model.NewPlan(room)
	plan.Buildings = []model.Building{
		{Type: model.Extension, Pos: ext, Priority: 80, LevelRequired: 2, Placed: true, EverPlaced: true},
		{Type: model.Tower, Pos: tower, Priority: 95, LevelRequired: 3, Placed: true, EverPlaced: true},
	}
	plan.Roads = []model.RoadSegment{
		{Pos: road, Priority: 100, PathType: model.PathSource, Placed: true, EverPlaced: true},
		{Pos: model.P(room, 12, 10), Priority: 100, PathType: model.PathSource, Placed: true},
	}

	res := NewManager(w, nil).Scan(room, plan)
	if len(res.Buildings) != 1 || res.Buildings[0].Type != model.Tower {
		t.Fatalf("buildings flipped: %+v", res.Buildings)
	}
	if len(res.Roads) != 1 || res.Roads[0].Pos != model.P(room, 12, 10) {
		t.Fatalf("roads flipped: %+v", res.Roads)
	}
	if !plan.Buildings[0].Placed || plan.Buildings[1].Placed {
		t.Fatalf("placed flags wrong: %+v", plan.Buildings)
	}
	if plan.Buildings[1].Priority != 95 || !plan.Buildings[1].EverPlaced {
		t.Fatalf("scan must keep priority and history: %+v", plan.Buildings[1])
	}
	if !plan.Roads[1].EverPlaced {
		t.Fatalf("vanished road should remember it was placed")
	}
	if len(plan.Buildings) != 2 || len(plan.Roads) != 2 {
		t.Fatalf("scan changed entry counts")
	}
}

func TestScan_ClearsStaleRequests(t *testing.T) {
	w := worldtest.New()
	r := w.AddRoom(room, 4)
	pending := model.P(room, 20, 20)
	lost := model.P(room, 21, 20)
	r.AddMarker(pending, model.Extension)

	plan := model.NewPlan(room)
	plan.Buildings = []model.Building{
		{Type: model.Extension, Pos: pending, Priority: 80, LevelRequired: 2, RequestID: "req-1"},
		{Type: model.Extension, Pos: lost, Priority: 80, LevelRequired: 2, RequestID: "req-2"},
	}
	res := NewManager(w, nil).Scan(room, plan)
	if res.Stale != 1 {
		t.Fatalf("stale: got %d want 1", res.Stale)
	}
	if plan.Buildings[0].RequestID != "req-1" || plan.Buildings[1].RequestID != "" {
		t.Fatalf("request ids: %+v", plan.Buildings)
	}
}

func TestDecayedRoadRebuiltBeforeNewSegment(t *testing.T) {
	w := worldtest.New()
	r := w.AddRoom(room, 4)
	decayed := model.P(room, 10, 10)
	r.Build(decayed, model.Road)

	plan := model.NewPlan(room)
	plan.Roads = []model.RoadSegment{
		{Pos: model.P(room, 30, 30), Priority: 85, PathType: model.PathController, TrafficScore: 1000},
		{Pos: decayed, Priority: 100, PathType: model.PathSource, Placed: true},
	}
	r.Destroy(decayed, model.Road)

	NewManager(w, nil).Scan(room, plan)
	rp := roads.NewPlanner(w, nil, roads.Config{MinTrafficForRoad: 5, HighPriorityCutoff: 80, RebuildPriorityThreshold: 75, RoadBudget: 1}, nil)
	if !rp.Eligible(plan.Roads[1]) {
		t.Fatalf("decayed segment not eligible: %+v", plan.Roads[1])
	}
	if n := rp.PlaceConstructionRequests(room, plan.Roads); n != 1 {
		t.Fatalf("requests: got %d want 1", n)
	}
	if plan.Roads[1].RequestID == "" || plan.Roads[0].RequestID != "" {
		t.Fatalf("decayed road should be rebuilt first: %+v", plan.Roads)
	}
	if got := roads.PendingRebuilds(plan.Roads); got != 0 {
		t.Fatalf("pending rebuilds after request: got %d want 0", got)
	}
}
