package model

import (
	"fmt"
	"sort"
)

// Status is the lifecycle state of a room plan.
type Status uint8

const (
	StatusPlanning Status = iota
	StatusBuilding
	StatusReady
)

func (s Status) String() string {
	switch s {
	case StatusPlanning:
		return "planning"
	case StatusBuilding:
		return "building"
	case StatusReady:
		return "ready"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "planning":
		*s = StatusPlanning
	case "building":
		*s = StatusBuilding
	case "ready":
		*s = StatusReady
	default:
		return fmt.Errorf("unknown status %q", string(b))
	}
	return nil
}

// PathType tags the connection a road segment belongs to.
type PathType uint8

const (
	PathInternal PathType = iota
	PathSource
	PathController
	PathMineral
	PathExit
)

func (p PathType) String() string {
	switch p {
	case PathInternal:
		return "internal"
	case PathSource:
		return "source"
	case PathController:
		return "controller"
	case PathMineral:
		return "mineral"
	case PathExit:
		return "exit"
	}
	return fmt.Sprintf("path(%d)", uint8(p))
}

func (p PathType) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *PathType) UnmarshalText(b []byte) error {
	switch string(b) {
	case "internal":
		*p = PathInternal
	case "source":
		*p = PathSource
	case "controller":
		*p = PathController
	case "mineral":
		*p = PathMineral
	case "exit":
		*p = PathExit
	default:
		return fmt.Errorf("unknown path type %q", string(b))
	}
	return nil
}

// Building is one planned structure. Placed mirrors whether the structure
// stands in the world right now; RequestID is set while a construction
// request is outstanding.
type Building struct {
	Type          StructureType `json:"type"`
	Pos           Pos           `json:"pos"`
	Priority      int           `json:"priority"`
	LevelRequired int           `json:"level_required"`
	Placed        bool          `json:"placed"`
	// EverPlaced is set the first time a matching structure is observed and
	// never cleared.
	EverPlaced bool   `json:"ever_placed,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	// Slot identifies the landmark entry that owns a landmark-relative
	// building ("source0/container"). Empty for anchor-relative buildings.
	Slot string `json:"slot,omitempty"`
}

// RoadSegment is one planned road tile. Segments are never removed from a
// plan; a decayed road flips back to unplaced and is rebuilt.
type RoadSegment struct {
	Pos          Pos      `json:"pos"`
	Priority     int      `json:"priority"`
	TrafficScore float64  `json:"traffic_score"`
	Placed       bool     `json:"placed"`
	PathType     PathType `json:"path_type"`
	EverPlaced   bool     `json:"ever_placed,omitempty"`
	RequestID    string   `json:"request_id,omitempty"`
}

// Plan is the stored layout for one room.
type Plan struct {
	Room        string        `json:"room"`
	PlanLevel   int           `json:"plan_level"`
	Buildings   []Building    `json:"buildings"`
	Roads       []RoadSegment `json:"roads"`
	Status      Status        `json:"status"`
	Priority    int           `json:"priority"`
	LastUpdated uint64        `json:"last_updated"`

	// Bookkeeping for the orchestrator cadences.
	BuildingsUpdated uint64 `json:"buildings_updated"`
	RoadsUpdated     uint64 `json:"roads_updated"`
	TrafficMark      uint64 `json:"traffic_mark"`
	LastScan         uint64 `json:"last_scan"`
}

func NewPlan(room string) *Plan {
	return &Plan{Room: room, Status: StatusPlanning}
}

func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Buildings = append([]Building(nil), p.Buildings...)
	cp.Roads = append([]RoadSegment(nil), p.Roads...)
	return &cp
}

// Counts returns the number of planned buildings per structure type.
func (p *Plan) Counts() map[StructureType]int {
	out := make(map[StructureType]int)
	for _, b := range p.Buildings {
		out[b.Type]++
	}
	return out
}

func (p *Plan) BuildingAt(pos Pos) (int, bool) {
	for i := range p.Buildings {
		if p.Buildings[i].Pos == pos {
			return i, true
		}
	}
	return -1, false
}

func (p *Plan) RoadIndex() map[Pos]int {
	idx := make(map[Pos]int, len(p.Roads))
	for i := range p.Roads {
		idx[p.Roads[i].Pos] = i
	}
	return idx
}

// Reset clears buildings and roads ahead of a full replan.
func (p *Plan) Reset() {
	p.Buildings = p.Buildings[:0]
	p.Roads = p.Roads[:0]
	p.Status = StatusPlanning
	p.Priority = 0
}

// SortBuildings orders buildings by descending priority, then type and position.
func SortBuildings(bs []Building) {
	sort.SliceStable(bs, func(i, j int) bool {
		a, b := bs[i], bs[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return Less(a.Pos, b.Pos)
	})
}

func SortRoads(rs []RoadSegment) {
	sort.SliceStable(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return Less(a.Pos, b.Pos)
	})
}

// UpdateStatus recomputes Status and Priority from the entries that are
// unlocked at level.
func (p *Plan) UpdateStatus(level int) {
	if len(p.Buildings) == 0 && len(p.Roads) == 0 {
		p.Status = StatusPlanning
		p.Priority = 0
		return
	}
	pending := 0
	top := 0
	for _, b := range p.Buildings {
		if b.Placed || b.LevelRequired > level {
			continue
		}
		pending++
		if b.Priority > top {
			top = b.Priority
		}
	}
	if pending == 0 {
		p.Status = StatusReady
	} else {
		p.Status = StatusBuilding
	}
	p.Priority = top
}
