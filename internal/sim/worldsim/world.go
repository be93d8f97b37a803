// Package worldsim is a small deterministic room simulation that implements
// worldapi.World for the planner binary.
package worldsim

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/mrskaggs/cline-ai-sub002/internal/plan/model"
	"github.com/mrskaggs/cline-ai-sub002/internal/plan/templates"
	"github.com/mrskaggs/cline-ai-sub002/internal/plan/worldapi"
	"github.com/mrskaggs/cline-ai-sub002/internal/sim/gen"
)

type Config struct {
	Seed            int64
	Rooms           []string
	StartLevel      int
	LevelEveryTicks uint64
	BuildTicks      uint64
	RoadDecayChance float64
	UnitsPerRoom    int
	// MaxMarkers caps pending construction markers across all rooms.
	MaxMarkers   int
	WallDensity  float64
	SwampDensity float64
}

type marker struct {
	t    model.StructureType
	id   string
	done uint64
}

type room struct {
	name       string
	level      int
	layout     layout
	structures map[model.Pos][]model.StructureType
	markers    map[model.Pos][]marker
	units      []*unit
}

type World struct {
	mu sync.Mutex

	cfg     Config
	rooms   []*room
	byName  map[string]*room
	tick    uint64
	pending int
	decayP  uint64

	newID func() string
}

func New(cfg Config) *World {
	if cfg.BuildTicks == 0 {
		cfg.BuildTicks = 1
	}
	if cfg.StartLevel < 0 {
		cfg.StartLevel = 0
	}
	w := &World{
		cfg:    cfg,
		byName: map[string]*room{},
		decayP: gen.Permille(cfg.RoadDecayChance),
		newID:  uuid.NewString,
	}
	for _, name := range cfg.Rooms {
		if _, dup := w.byName[name]; dup {
			continue
		}
		r := &room{
			name:       name,
			level:      cfg.StartLevel,
			layout:     generate(cfg.Seed, name, cfg.WallDensity, cfg.SwampDensity),
			structures: map[model.Pos][]model.StructureType{},
			markers:    map[model.Pos][]marker{},
		}
		w.spawnUnits(r)
		w.rooms = append(w.rooms, r)
		w.byName[name] = r
	}
	return w
}

func (w *World) spawnUnits(r *room) {
	centre := model.P(r.name, 25, 25)
	for i := 0; i < w.cfg.UnitsPerRoom; i++ {
		r.units = append(r.units, &unit{
			name:   fmt.Sprintf("%s-u%d", r.name, i),
			pos:    centre,
			target: i,
		})
	}
}

func (w *World) Rooms() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.rooms))
	for i, r := range w.rooms {
		out[i] = r.name
	}
	return out
}

func (w *World) CurrentTick() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tick
}

func (w *World) ControllerLevel(name string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if r := w.byName[name]; r != nil {
		return r.level
	}
	return 0
}

// SetLevel overrides a room's controller level.
func (w *World) SetLevel(name string, level int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if r := w.byName[name]; r != nil {
		r.level = clampLevel(level)
	}
}

func (w *World) Landmarks(name string) worldapi.Landmarks {
	w.mu.Lock()
	defer w.mu.Unlock()
	r := w.byName[name]
	if r == nil {
		return worldapi.Landmarks{}
	}
	lm := r.layout.landmarks
	lm.Sources = append([]model.Pos(nil), lm.Sources...)
	if lm.Mineral != nil {
		m := *lm.Mineral
		lm.Mineral = &m
	}
	return lm
}

func (w *World) TerrainAt(pos model.Pos) worldapi.TerrainInfo {
	w.mu.Lock()
	defer w.mu.Unlock()
	r := w.byName[pos.Room]
	if r == nil || !pos.InRoom() {
		return worldapi.TerrainInfo{}
	}
	i := pos.Index()
	return worldapi.TerrainInfo{Walkable: !r.layout.walls[i], Swamp: r.layout.swamps[i]}
}

func (w *World) StructuresAt(pos model.Pos) []model.StructureType {
	w.mu.Lock()
	defer w.mu.Unlock()
	if r := w.byName[pos.Room]; r != nil {
		return append([]model.StructureType(nil), r.structures[pos]...)
	}
	return nil
}

func (w *World) MarkersAt(pos model.Pos) []model.StructureType {
	w.mu.Lock()
	defer w.mu.Unlock()
	r := w.byName[pos.Room]
	if r == nil {
		return nil
	}
	var out []model.StructureType
	for _, m := range r.markers[pos] {
		out = append(out, m.t)
	}
	return out
}

func (w *World) UnitsAt(pos model.Pos) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	r := w.byName[pos.Room]
	if r == nil {
		return nil
	}
	var out []string
	for _, u := range r.units {
		if u.pos == pos {
			out = append(out, u.name)
		}
	}
	return out
}

func (w *World) UnitPositionsSample(name string) []model.Pos {
	w.mu.Lock()
	defer w.mu.Unlock()
	r := w.byName[name]
	if r == nil {
		return nil
	}
	out := make([]model.Pos, len(r.units))
	for i, u := range r.units {
		out[i] = u.pos
	}
	return out
}

// RequestConstruction places a marker that becomes a structure after
// BuildTicks. The world enforces its own structure limits and a global
// marker cap.
func (w *World) RequestConstruction(pos model.Pos, t model.StructureType) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	r := w.byName[pos.Room]
	if r == nil {
		return "", worldapi.ErrNotOwner
	}
	if !pos.InRoom() {
		return "", worldapi.ErrOutOfBounds
	}
	if !pos.Buildable() || !t.Valid() {
		return "", worldapi.ErrInvalidTarget
	}
	lm := r.layout.landmarks
	if t == model.Extractor {
		if lm.Mineral == nil || *lm.Mineral != pos {
			return "", worldapi.ErrInvalidTarget
		}
	} else if r.layout.walls[pos.Index()] {
		return "", worldapi.ErrInvalidTarget
	}
	for _, s := range r.structures[pos] {
		if s == t || !model.CanShareTile(s, t) {
			return "", worldapi.ErrInvalidTarget
		}
	}
	for _, m := range r.markers[pos] {
		if m.t == t || !model.CanShareTile(m.t, t) {
			return "", worldapi.ErrInvalidTarget
		}
	}
	if t.Obstructs() {
		for _, u := range r.units {
			if u.pos == pos {
				return "", worldapi.ErrInvalidTarget
			}
		}
	}
	if r.count(t) >= templates.LimitFor(t, r.level) {
		return "", worldapi.ErrLevelTooLow
	}
	if w.cfg.MaxMarkers > 0 && w.pending >= w.cfg.MaxMarkers {
		return "", worldapi.ErrFull
	}
	id := w.newID()
	r.markers[pos] = append(r.markers[pos], marker{t: t, id: id, done: w.tick + w.cfg.BuildTicks})
	w.pending++
	return id, nil
}

// count includes pending markers so limits cannot be exceeded by queuing.
func (r *room) count(t model.StructureType) int {
	n := 0
	for _, ts := range r.structures {
		for _, s := range ts {
			if s == t {
				n++
			}
		}
	}
	for _, ms := range r.markers {
		for _, m := range ms {
			if m.t == t {
				n++
			}
		}
	}
	return n
}

// Destroy removes a structure, as an attack or decay would.
func (w *World) Destroy(pos model.Pos, t model.StructureType) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	r := w.byName[pos.Room]
	if r == nil {
		return false
	}
	return r.remove(pos, t)
}

func (r *room) remove(pos model.Pos, t model.StructureType) bool {
	ts := r.structures[pos]
	for i, s := range ts {
		if s == t {
			ts = append(ts[:i], ts[i+1:]...)
			if len(ts) == 0 {
				delete(r.structures, pos)
			} else {
				r.structures[pos] = ts
			}
			return true
		}
	}
	return false
}

// Counts reports built structures and pending markers per type for a room.
func (w *World) Counts(name string) (built, pending map[model.StructureType]int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	built, pending = map[model.StructureType]int{}, map[model.StructureType]int{}
	r := w.byName[name]
	if r == nil {
		return built, pending
	}
	for _, ts := range r.structures {
		for _, s := range ts {
			built[s]++
		}
	}
	for _, ms := range r.markers {
		for _, m := range ms {
			pending[m.t]++
		}
	}
	return built, pending
}

// StepReport summarises what one Step changed.
type StepReport struct {
	Tick       uint64
	Completed  int
	Decayed    int
	LevelUps   []string
	UnitsMoved int
}

// Step advances the simulation by one tick.
func (w *World) Step() StepReport {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tick++
	rep := StepReport{Tick: w.tick}
	for _, r := range w.rooms {
		rep.Completed += w.completeMarkers(r)
		rep.Decayed += w.decayRoads(r)
		rep.UnitsMoved += w.moveUnits(r)
		if w.cfg.LevelEveryTicks > 0 && w.tick%w.cfg.LevelEveryTicks == 0 && r.level < templates.MaxLevel {
			r.level++
			rep.LevelUps = append(rep.LevelUps, r.name)
		}
	}
	return rep
}

func (w *World) completeMarkers(r *room) int {
	keys := sortedKeys(r.markers)
	n := 0
	for _, p := range keys {
		var keep []marker
		for _, m := range r.markers[p] {
			if m.done > w.tick {
				keep = append(keep, m)
				continue
			}
			r.structures[p] = append(r.structures[p], m.t)
			w.pending--
			n++
		}
		if len(keep) == 0 {
			delete(r.markers, p)
		} else {
			r.markers[p] = keep
		}
	}
	return n
}

func (w *World) decayRoads(r *room) int {
	if w.decayP == 0 {
		return 0
	}
	n := 0
	for _, p := range sortedKeys(r.structures) {
		for _, s := range r.structures[p] {
			if s != model.Road {
				continue
			}
			if gen.Roll(w.cfg.Seed, p.X, p.Y, int(w.tick), w.decayP) && r.remove(p, model.Road) {
				n++
			}
			break
		}
	}
	return n
}

// targets lists the places units shuttle between: spawns, sources and the
// controller.
func (r *room) targets() []model.Pos {
	var out []model.Pos
	for _, p := range sortedKeys(r.structures) {
		for _, s := range r.structures[p] {
			if s == model.Spawn {
				out = append(out, p)
			}
		}
	}
	out = append(out, r.layout.landmarks.Sources...)
	if c := r.layout.landmarks.Controller; c.Room == r.name {
		out = append(out, c)
	}
	return out
}

func (w *World) passable(r *room, p model.Pos) bool {
	if !p.InRoom() || r.layout.walls[p.Index()] {
		return false
	}
	for _, s := range r.structures[p] {
		if s.Obstructs() {
			return false
		}
	}
	return true
}

func (w *World) moveUnits(r *room) int {
	targets := r.targets()
	if len(targets) == 0 {
		return 0
	}
	moved := 0
	for _, u := range r.units {
		goal := targets[u.target%len(targets)]
		if model.Range(u.pos, goal) <= 1 {
			u.target++
			continue
		}
		next, ok := detourStep(u.pos, goal, 8, func(p model.Pos) bool { return w.passable(r, p) })
		if !ok {
			u.target++
			continue
		}
		u.pos = next
		moved++
	}
	return moved
}

func sortedKeys[V any](m map[model.Pos]V) []model.Pos {
	keys := make([]model.Pos, 0, len(m))
	for p := range m {
		keys = append(keys, p)
	}
	sort.Slice(keys, func(i, j int) bool { return model.Less(keys[i], keys[j]) })
	return keys
}

func clampLevel(l int) int {
	if l < 0 {
		return 0
	}
	if l > templates.MaxLevel {
		return templates.MaxLevel
	}
	return l
}
