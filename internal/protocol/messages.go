package protocol

import (
	"sort"

	"github.com/mrskaggs/cline-ai-sub002/internal/plan/model"
)

// TICK_SUMMARY (planner -> observers), one per planner tick.
type TickSummary struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Tick            uint64     `json:"tick"`
	Rooms           []RoomTick `json:"rooms"`
}

type RoomTick struct {
	Room         string `json:"room"`
	Level        int    `json:"level"`
	Status       string `json:"status,omitempty"`
	Replanned    bool   `json:"replanned,omitempty"`
	Reason       string `json:"reason,omitempty"`
	Buildings    bool   `json:"buildings_updated,omitempty"`
	Roads        bool   `json:"roads_updated,omitempty"`
	Scanned      bool   `json:"scanned,omitempty"`
	Requested    int    `json:"requested"`
	RoadRequests int    `json:"road_requests"`
	Rebuilds     int    `json:"rebuilds"`
	Code         string `json:"code,omitempty"`
	Message      string `json:"message,omitempty"`
}

// PLAN_SUMMARY describes the stored plan of one room.
type PlanSummary struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	Tick            uint64         `json:"tick"`
	Room            string         `json:"room"`
	PlanLevel       int            `json:"plan_level"`
	Status          string         `json:"status"`
	Priority        int            `json:"priority"`
	LastUpdated     uint64         `json:"last_updated"`
	Counts          map[string]int `json:"counts"`
	Placed          int            `json:"placed"`
	Pending         int            `json:"pending"`
	RoadsPlaced     int            `json:"roads_placed"`
	RoadsTotal      int            `json:"roads_total"`

	// Entries are only filled for detailed requests.
	Buildings []model.Building    `json:"buildings,omitempty"`
	Roads     []model.RoadSegment `json:"roads,omitempty"`
}

// NewPlanSummary summarizes p. With detail set the entries are copied in
// their stored order.
func NewPlanSummary(tick uint64, p *model.Plan, detail bool) PlanSummary {
	s := PlanSummary{
		Type:            TypePlanSummary,
		ProtocolVersion: Version,
		Tick:            tick,
		Room:            p.Room,
		PlanLevel:       p.PlanLevel,
		Status:          p.Status.String(),
		Priority:        p.Priority,
		LastUpdated:     p.LastUpdated,
		Counts:          map[string]int{},
		RoadsTotal:      len(p.Roads),
	}
	for t, n := range p.Counts() {
		s.Counts[string(t)] = n
	}
	for _, b := range p.Buildings {
		if b.Placed {
			s.Placed++
		} else {
			s.Pending++
		}
	}
	for _, r := range p.Roads {
		if r.Placed {
			s.RoadsPlaced++
		}
	}
	if detail {
		s.Buildings = append([]model.Building{}, p.Buildings...)
		s.Roads = append([]model.RoadSegment{}, p.Roads...)
	}
	return s
}

// SortedCounts returns the structure counts ordered by type name.
func (s PlanSummary) SortedCounts() []string {
	keys := make([]string, 0, len(s.Counts))
	for k := range s.Counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// EVENT carries one planning event.
type EventMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	Room            string `json:"room"`
	Kind            string `json:"kind"`
	Count           int    `json:"count,omitempty"`
	Code            string `json:"code,omitempty"`
	Detail          string `json:"detail,omitempty"`
}

type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

func NewError(code, msg string) ErrorMsg {
	return ErrorMsg{Type: TypeError, ProtocolVersion: Version, Code: code, Message: msg}
}

// SUBSCRIBE (observer -> planner). An empty room list follows every room.
type SubscribeMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	Rooms           []string `json:"rooms,omitempty"`
	Events          bool     `json:"events,omitempty"`
}
