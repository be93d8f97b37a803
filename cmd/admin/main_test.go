package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	persistlog "github.com/mrskaggs/cline-ai-sub002/internal/persistence/log"
	"github.com/mrskaggs/cline-ai-sub002/internal/persistence/snapshot"
	"github.com/mrskaggs/cline-ai-sub002/internal/plan/model"
	"github.com/mrskaggs/cline-ai-sub002/internal/plan/room"
)

func samplePlan() *model.Plan {
	p := model.NewPlan("W1N1")
	p.PlanLevel = 2
	p.Buildings = []model.Building{
		{Type: model.Spawn, Pos: model.P("W1N1", 25, 25), Priority: 100, LevelRequired: 1, Placed: true},
		{Type: model.Extension, Pos: model.P("W1N1", 27, 25), Priority: 60, LevelRequired: 2},
		{Type: model.Extension, Pos: model.P("W1N1", 23, 25), Priority: 60, LevelRequired: 2, EverPlaced: true},
	}
	p.Roads = []model.RoadSegment{{Pos: model.P("W1N1", 26, 26), Priority: 100, PathType: model.PathSource, TrafficScore: 3}}
	p.UpdateStatus(2)
	return p
}

func TestSelectEntries(t *testing.T) {
	f, err := compileFilter(`!Placed`, EntryEnv{})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	got, err := selectEntries(samplePlan(), f, false)
	if err != nil || len(got) != 2 {
		t.Fatalf("buildings only: %+v %v", got, err)
	}
	got, err = selectEntries(samplePlan(), f, true)
	if err != nil || len(got) != 3 || !got[2].Road {
		t.Fatalf("with roads: %+v %v", got, err)
	}

	var buf bytes.Buffer
	renderEntries(&buf, got)
	if !strings.Contains(buf.String(), "rebuild") || !strings.Contains(buf.String(), "27,25") {
		t.Fatalf("table:\n%s", buf.String())
	}
}

func TestRenderRooms(t *testing.T) {
	store := room.NewMemoryStore()
	rec := room.NewRecord("W1N1")
	rec.Plan = samplePlan()
	store.Save("W1N1", rec)

	var buf bytes.Buffer
	renderRooms(&buf, snapshot.New(9, 1, store))
	out := buf.String()
	if !strings.Contains(out, "W1N1") || !strings.Contains(out, "1/3") || !strings.Contains(out, "0/1") {
		t.Fatalf("rooms table:\n%s", out)
	}
}

func TestReadEvents(t *testing.T) {
	dir := t.TempDir()
	l := persistlog.NewEventLogger(dir)
	l.Emit(room.Event{Tick: 1, Room: "W1N1", Kind: room.EventReplan})
	l.Emit(room.Event{Tick: 4, Room: "W1N1", Kind: room.EventRejected, Code: "E_FULL"})
	l.Emit(room.Event{Tick: 5, Room: "W2N1", Kind: room.EventRejected})
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	f, err := compileFilter(`Kind == "rejected" && Room == "W1N1"`, EventEnv{})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	evs, err := readEvents(filepath.Join(dir, "events"), f)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(evs) != 1 || evs[0].Tick != 4 || evs[0].Code != "E_FULL" {
		t.Fatalf("events: %+v", evs)
	}

	none, err := readEvents(filepath.Join(dir, "missing"), f)
	if err != nil || len(none) != 0 {
		t.Fatalf("missing dir: %+v %v", none, err)
	}
}
