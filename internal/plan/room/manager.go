package room

import (
	"fmt"
	"log"
	"runtime/debug"
	"strings"

	"github.com/mrskaggs/cline-ai-sub002/internal/plan/layout"
	"github.com/mrskaggs/cline-ai-sub002/internal/plan/model"
	"github.com/mrskaggs/cline-ai-sub002/internal/plan/replace"
	"github.com/mrskaggs/cline-ai-sub002/internal/plan/roads"
	"github.com/mrskaggs/cline-ai-sub002/internal/plan/terrain"
	"github.com/mrskaggs/cline-ai-sub002/internal/plan/traffic"
	"github.com/mrskaggs/cline-ai-sub002/internal/plan/worldapi"
	"github.com/mrskaggs/cline-ai-sub002/internal/protocol"
)

type Config struct {
	PlanEveryTicks uint64
	// Buildings are re-planned at least every PlanEveryTicks*StaleFactor.
	StaleFactor     uint64
	ScanEveryTicks  uint64
	DecayEveryTicks uint64
	// RoadTrafficDelta is the number of new traffic samples that justifies
	// recomputing the road network.
	RoadTrafficDelta uint64
	AnalysisTTL      uint64

	Layout  layout.Config
	Roads   roads.Config
	Traffic traffic.Config
}

func (c *Config) applyDefaults() {
	if c.PlanEveryTicks == 0 {
		c.PlanEveryTicks = 10
	}
	if c.StaleFactor == 0 {
		c.StaleFactor = 10
	}
	if c.ScanEveryTicks == 0 {
		c.ScanEveryTicks = 50
	}
	if c.DecayEveryTicks == 0 {
		c.DecayEveryTicks = 100
	}
	if c.RoadTrafficDelta == 0 {
		c.RoadTrafficDelta = 200
	}
	if c.AnalysisTTL == 0 {
		c.AnalysisTTL = 1000
	}
}

// Event kinds reported to the sink.
const (
	EventReplan    = "replan"
	EventBuildings = "buildings"
	EventRoads     = "roads"
	EventScan      = "scan"
	EventRejected  = "rejected"
	EventError     = "error"
)

type Event struct {
	Tick   uint64 `json:"tick"`
	Room   string `json:"room"`
	Kind   string `json:"kind"`
	Count  int    `json:"count,omitempty"`
	Code   string `json:"code,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// EventSink receives planning history. Emit must not block for long.
type EventSink interface {
	Emit(ev Event)
}

type RoomReport struct {
	Room             string
	Level            int
	Replanned        bool
	Reason           string
	BuildingsUpdated bool
	RoadsUpdated     bool
	Scanned          bool
	Requested        int
	RoadRequests     int
	Rebuilds         int
	Status           model.Status
	Err              error
}

type TickReport struct {
	Tick  uint64
	Rooms []RoomReport
}

// Errors returns the rooms that failed this tick.
func (r TickReport) Errors() []RoomReport {
	var out []RoomReport
	for _, rr := range r.Rooms {
		if rr.Err != nil {
			out = append(out, rr)
		}
	}
	return out
}

type Manager struct {
	world worldapi.World
	store Store
	sink  EventSink
	cfg   Config
	log   *log.Logger

	terrain *terrain.Analyzer
	traffic *traffic.Analyzer
	layout  *layout.Planner
	roads   *roads.Planner
	replace *replace.Manager
}

func NewManager(w worldapi.World, store Store, cfg Config, sink EventSink, logger *log.Logger) *Manager {
	cfg.applyDefaults()
	ta := traffic.NewAnalyzer(w, cfg.Traffic)
	return &Manager{
		world:   w,
		store:   store,
		sink:    sink,
		cfg:     cfg,
		log:     logger,
		terrain: terrain.NewAnalyzer(w, cfg.AnalysisTTL, logger),
		traffic: ta,
		layout:  layout.NewPlanner(w, cfg.Layout, logger),
		roads:   roads.NewPlanner(w, ta, cfg.Roads, logger),
		replace: replace.NewManager(w, logger),
	}
}

func (m *Manager) Store() Store { return m.store }

// Tick runs one invocation over every room of the world in order. A failing
// room is reported and skipped; its stored record is left as it was.
func (m *Manager) Tick(tick uint64) TickReport {
	rep := TickReport{Tick: tick}
	for _, room := range m.world.Rooms() {
		rr := m.runRoom(room, tick)
		if rr.Err != nil {
			m.logf("room %s: tick %d: %v", room, tick, rr.Err)
			m.emit(Event{Tick: tick, Room: room, Kind: EventError, Code: protocol.ErrInternal, Detail: rr.Err.Error()})
		}
		rep.Rooms = append(rep.Rooms, rr)
	}
	return rep
}

func (m *Manager) runRoom(room string, tick uint64) (rr RoomReport) {
	rr.Room = room
	defer func() {
		if p := recover(); p != nil {
			rr.Err = fmt.Errorf("panic: %v\n%s", p, debug.Stack())
		}
	}()

	rec, ok := m.store.Load(room)
	if ok {
		rec = rec.Clone()
	} else {
		rec = NewRecord(room)
	}
	if rec.Plan == nil {
		rec.Plan = model.NewPlan(room)
	}
	if rec.Traffic == nil {
		rec.Traffic = traffic.NewData(room)
	}
	if err := m.process(room, tick, rec, &rr); err != nil {
		rr.Err = err
		return rr
	}
	rr.Status = rec.Plan.Status
	m.store.Save(room, rec)
	return rr
}

func (m *Manager) process(room string, tick uint64, rec *Record, rr *RoomReport) error {
	level := m.world.ControllerLevel(room)
	rr.Level = level
	an, err := m.terrain.Analyze(room, tick)
	if err != nil {
		return err
	}

	m.traffic.SampleRoom(rec.Traffic, tick)
	if tick-rec.Traffic.LastDecay >= m.cfg.DecayEveryTicks {
		m.traffic.Decay(rec.Traffic, tick)
	}

	plan := rec.Plan
	if reason, ok := m.needsReplan(plan, level); ok {
		rr.Replanned = true
		rr.Reason = reason
		m.logf("room %s: full replan (%s)", room, reason)
		plan.Reset()
		m.updateBuildings(room, tick, an, level, rec, rr)
		m.updateRoads(room, tick, an, level, rec, rr)
		m.emit(Event{Tick: tick, Room: room, Kind: EventReplan, Count: len(rec.Plan.Buildings), Detail: reason})
		return nil
	}

	if tick%m.cfg.PlanEveryTicks == 0 {
		// Pending buildings and due roads share cadence ticks, so a building
		// that never completes cannot hold the road network back.
		pending := hasPendingBuildings(plan, level)
		switch {
		case m.shouldUpdateBuildingPlan(plan, level, tick):
			changed := m.updateBuildings(room, tick, an, level, rec, rr)
			if changed || len(rec.Plan.Roads) == 0 {
				m.updateRoads(room, tick, an, level, rec, rr)
			}
		case m.shouldUpdateRoadPlan(plan, rec.Traffic) && (!pending || plan.BuildingsUpdated > plan.RoadsUpdated):
			m.updateRoads(room, tick, an, level, rec, rr)
		case pending:
			m.updateBuildings(room, tick, an, level, rec, rr)
		}
	}

	if tick-rec.Plan.LastScan >= m.cfg.ScanEveryTicks {
		res := m.replace.Scan(room, rec.Plan)
		rec.Plan.LastScan = tick
		rr.Scanned = true
		rr.Rebuilds = len(res.Buildings) + len(res.Roads)
		if res.Changed() {
			rec.Plan.UpdateStatus(level)
			m.emit(Event{Tick: tick, Room: room, Kind: EventScan, Count: rr.Rebuilds, Detail: fmt.Sprintf("stale=%d", res.Stale)})
		}
	}
	return nil
}

// needsReplan reports a level change or rule drift in the stored plan.
func (m *Manager) needsReplan(plan *model.Plan, level int) (string, bool) {
	if plan.PlanLevel != level {
		return fmt.Sprintf("level %d->%d", plan.PlanLevel, level), true
	}
	if layout.HasInvalidStructureCounts(plan, level) {
		return "drift: " + strings.Join(layout.Violations(plan, level), ","), true
	}
	return "", false
}

func (m *Manager) shouldUpdateBuildingPlan(plan *model.Plan, level int, tick uint64) bool {
	if len(plan.Buildings) == 0 || plan.PlanLevel != level {
		return true
	}
	if tick-plan.BuildingsUpdated >= m.cfg.PlanEveryTicks*m.cfg.StaleFactor {
		return true
	}
	// A scan since the last pass flagged buildings to rebuild.
	if plan.LastScan > plan.BuildingsUpdated {
		for _, b := range plan.Buildings {
			if b.EverPlaced && !b.Placed && b.RequestID == "" {
				return true
			}
		}
	}
	return false
}

// hasPendingBuildings reports unplaced buildings the level allows, which
// need passes for reconciliation or another request.
func hasPendingBuildings(plan *model.Plan, level int) bool {
	for _, b := range plan.Buildings {
		if !b.Placed && b.LevelRequired <= level {
			return true
		}
	}
	return false
}

func (m *Manager) shouldUpdateRoadPlan(plan *model.Plan, td *traffic.Data) bool {
	if len(plan.Roads) == 0 {
		return true
	}
	if td.Samples-plan.TrafficMark >= m.cfg.RoadTrafficDelta {
		return true
	}
	if roads.PendingRebuilds(plan.Roads) > 0 {
		return true
	}
	for _, s := range plan.Roads {
		if s.RequestID == "" && m.roads.Eligible(s) {
			return true
		}
	}
	return false
}

func (m *Manager) updateBuildings(room string, tick uint64, an *terrain.Analysis, level int, rec *Record, rr *RoomReport) bool {
	plan, rep := m.layout.PlanOrUpdate(room, an, level, rec.Plan)
	plan.BuildingsUpdated = tick
	plan.LastUpdated = tick
	rec.Plan = plan
	rr.BuildingsUpdated = true
	rr.Requested += len(rep.Requested)
	for _, r := range rep.Failed {
		m.emit(Event{Tick: tick, Room: room, Kind: EventRejected, Code: protocol.CodeFor(r.Err), Detail: fmt.Sprintf("%s at %s: %s", r.Type, r.Pos, r.Reason)})
	}
	if rep.Changed() || len(rep.Requested) > 0 {
		m.emit(Event{Tick: tick, Room: room, Kind: EventBuildings, Count: len(rep.Requested),
			Detail: fmt.Sprintf("accepted=%d dropped=%d deferred=%d", len(rep.Accepted), len(rep.Dropped), len(rep.Deferred))})
	}
	return rep.Changed()
}

func (m *Manager) updateRoads(room string, tick uint64, an *terrain.Analysis, level int, rec *Record, rr *RoomReport) {
	plan := rec.Plan
	plan.Roads = m.roads.PlanRoadNetwork(room, an, level, plan.Buildings, plan.Roads, rec.Traffic)
	n := m.roads.PlaceConstructionRequests(room, plan.Roads)
	plan.RoadsUpdated = tick
	plan.LastUpdated = tick
	plan.TrafficMark = rec.Traffic.Samples
	plan.UpdateStatus(level)
	rr.RoadsUpdated = true
	rr.RoadRequests += n
	if n > 0 {
		m.emit(Event{Tick: tick, Room: room, Kind: EventRoads, Count: n, Detail: fmt.Sprintf("segments=%d", len(plan.Roads))})
	}
}

func (m *Manager) emit(ev Event) {
	if m.sink != nil {
		m.sink.Emit(ev)
	}
}

func (m *Manager) logf(format string, args ...any) {
	if m.log != nil {
		m.log.Printf(format, args...)
	}
}
