// Package worldtest provides an in-memory worldapi.World for planner tests.
package worldtest

import (
	"fmt"
	"sort"

	"github.com/mrskaggs/cline-ai-sub002/internal/plan/model"
	"github.com/mrskaggs/cline-ai-sub002/internal/plan/worldapi"
)

// Request records one RequestConstruction call that the fake accepted.
type Request struct {
	ID   string
	Pos  model.Pos
	Type model.StructureType
}

type Room struct {
	Name      string
	Level     int
	Landmarks worldapi.Landmarks

	walls      map[model.Pos]bool
	swamps     map[model.Pos]bool
	structures map[model.Pos][]model.StructureType
	markers    map[model.Pos][]model.StructureType
	units      map[model.Pos][]string
	Samples    []model.Pos
}

// Fake is a deterministic world: markers never complete on their own, tests
// call CompleteMarkers to simulate builders.
type Fake struct {
	rooms []*Room
	byID  map[string]*Room

	// Reject, when set for a type, is returned by RequestConstruction.
	Reject map[model.StructureType]error
	// Limit, when non-nil, caps structures+markers per type like the real world.
	Limit func(t model.StructureType, level int) int

	Requests []Request
	nextID   int
}

func New() *Fake {
	return &Fake{byID: map[string]*Room{}, Reject: map[model.StructureType]error{}}
}

// AddRoom creates an all-plain room with the given controller level.
func (f *Fake) AddRoom(name string, level int) *Room {
	r := &Room{
		Name:       name,
		Level:      level,
		walls:      map[model.Pos]bool{},
		swamps:     map[model.Pos]bool{},
		structures: map[model.Pos][]model.StructureType{},
		markers:    map[model.Pos][]model.StructureType{},
		units:      map[model.Pos][]string{},
	}
	f.rooms = append(f.rooms, r)
	f.byID[name] = r
	return r
}

func (f *Fake) Room(name string) *Room { return f.byID[name] }

func (r *Room) SetWall(x, y int)  { r.walls[model.P(r.Name, x, y)] = true }
func (r *Room) SetSwamp(x, y int) { r.swamps[model.P(r.Name, x, y)] = true }

// WallRect marks every tile in the inclusive rectangle as wall.
func (r *Room) WallRect(x1, y1, x2, y2 int) {
	for y := y1; y <= y2; y++ {
		for x := x1; x <= x2; x++ {
			r.SetWall(x, y)
		}
	}
}

// BorderWalls walls off the room edge, leaving the given exit tiles open.
func (r *Room) BorderWalls(open ...model.Pos) {
	keep := map[model.Pos]bool{}
	for _, p := range open {
		keep[model.P(r.Name, p.X, p.Y)] = true
	}
	for i := 0; i < model.RoomSize; i++ {
		for _, p := range []model.Pos{
			model.P(r.Name, i, 0), model.P(r.Name, i, model.MaxCoord),
			model.P(r.Name, 0, i), model.P(r.Name, model.MaxCoord, i),
		} {
			if !keep[p] {
				r.walls[p] = true
			}
		}
	}
}

func (r *Room) Build(pos model.Pos, t model.StructureType) {
	r.structures[pos] = append(r.structures[pos], t)
}

func (r *Room) Destroy(pos model.Pos, t model.StructureType) {
	r.structures[pos] = remove(r.structures[pos], t)
}

func (r *Room) AddMarker(pos model.Pos, t model.StructureType) {
	r.markers[pos] = append(r.markers[pos], t)
}

func (r *Room) PutUnit(pos model.Pos, name string) {
	r.units[pos] = append(r.units[pos], name)
}

func (r *Room) ClearUnits() { r.units = map[model.Pos][]string{} }

func (r *Room) StructureCount(t model.StructureType) int {
	n := 0
	for _, ts := range r.structures {
		for _, s := range ts {
			if s == t {
				n++
			}
		}
	}
	return n
}

func (r *Room) MarkerCount() int {
	n := 0
	for _, ts := range r.markers {
		n += len(ts)
	}
	return n
}

// CompleteMarkers turns every construction marker into a structure.
func (r *Room) CompleteMarkers() {
	keys := make([]model.Pos, 0, len(r.markers))
	for p := range r.markers {
		keys = append(keys, p)
	}
	sort.Slice(keys, func(i, j int) bool { return model.Less(keys[i], keys[j]) })
	for _, p := range keys {
		for _, t := range r.markers[p] {
			r.Build(p, t)
		}
	}
	r.markers = map[model.Pos][]model.StructureType{}
}

func (f *Fake) Rooms() []string {
	out := make([]string, 0, len(f.rooms))
	for _, r := range f.rooms {
		out = append(out, r.Name)
	}
	return out
}

func (f *Fake) ControllerLevel(room string) int {
	if r := f.byID[room]; r != nil {
		return r.Level
	}
	return 0
}

func (f *Fake) Landmarks(room string) worldapi.Landmarks {
	if r := f.byID[room]; r != nil {
		return r.Landmarks
	}
	return worldapi.Landmarks{}
}

func (f *Fake) TerrainAt(pos model.Pos) worldapi.TerrainInfo {
	r := f.byID[pos.Room]
	if r == nil || !pos.InRoom() {
		return worldapi.TerrainInfo{}
	}
	if r.walls[pos] {
		return worldapi.TerrainInfo{}
	}
	return worldapi.TerrainInfo{Walkable: true, Swamp: r.swamps[pos]}
}

func (f *Fake) StructuresAt(pos model.Pos) []model.StructureType {
	if r := f.byID[pos.Room]; r != nil {
		return append([]model.StructureType(nil), r.structures[pos]...)
	}
	return nil
}

func (f *Fake) MarkersAt(pos model.Pos) []model.StructureType {
	if r := f.byID[pos.Room]; r != nil {
		return append([]model.StructureType(nil), r.markers[pos]...)
	}
	return nil
}

func (f *Fake) UnitsAt(pos model.Pos) []string {
	if r := f.byID[pos.Room]; r != nil {
		return append([]string(nil), r.units[pos]...)
	}
	return nil
}

func (f *Fake) UnitPositionsSample(room string) []model.Pos {
	if r := f.byID[room]; r != nil {
		return append([]model.Pos(nil), r.Samples...)
	}
	return nil
}

func (f *Fake) RequestConstruction(pos model.Pos, t model.StructureType) (string, error) {
	r := f.byID[pos.Room]
	if r == nil {
		return "", worldapi.ErrNotOwner
	}
	if err := f.Reject[t]; err != nil {
		return "", err
	}
	if r.walls[pos] && t != model.Extractor {
		return "", worldapi.ErrInvalidTarget
	}
	for _, s := range r.structures[pos] {
		if s == t || !model.CanShareTile(s, t) {
			return "", worldapi.ErrInvalidTarget
		}
	}
	for _, s := range r.markers[pos] {
		if s == t || !model.CanShareTile(s, t) {
			return "", worldapi.ErrInvalidTarget
		}
	}
	if f.Limit != nil {
		n := r.StructureCount(t)
		for _, ts := range r.markers {
			for _, s := range ts {
				if s == t {
					n++
				}
			}
		}
		if n >= f.Limit(t, r.Level) {
			return "", worldapi.ErrLevelTooLow
		}
	}
	f.nextID++
	id := fmt.Sprintf("req-%d", f.nextID)
	r.AddMarker(pos, t)
	f.Requests = append(f.Requests, Request{ID: id, Pos: pos, Type: t})
	return id, nil
}

// RequestsOf filters accepted requests by type.
func (f *Fake) RequestsOf(t model.StructureType) []Request {
	var out []Request
	for _, r := range f.Requests {
		if r.Type == t {
			out = append(out, r)
		}
	}
	return out
}

func remove(ts []model.StructureType, t model.StructureType) []model.StructureType {
	out := ts[:0]
	for _, s := range ts {
		if s != t {
			out = append(out, s)
		}
	}
	return out
}
