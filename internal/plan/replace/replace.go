// Package replace detects planned structures that vanished from the world
// and hands them back to the planners as unplaced.
package replace

import (
	"log"

	"github.com/mrskaggs/cline-ai-sub002/internal/plan/model"
	"github.com/mrskaggs/cline-ai-sub002/internal/plan/worldapi"
)

type Result struct {
	Buildings []model.Building
	Roads     []model.RoadSegment
	// Stale counts request ids cleared because their marker disappeared
	// without producing a structure.
	Stale int
}

func (r Result) Changed() bool {
	return len(r.Buildings) > 0 || len(r.Roads) > 0 || r.Stale > 0
}

type Manager struct {
	world worldapi.World
	log   *log.Logger
}

func NewManager(w worldapi.World, logger *log.Logger) *Manager {
	return &Manager{world: w, log: logger}
}

// Scan flips placed entries of plan whose structure is gone back to unplaced.
// It only touches placement flags and request ids; counts and priorities are
// left alone. plan is modified in place.
func (m *Manager) Scan(room string, plan *model.Plan) Result {
	var res Result
	if plan == nil {
		return res
	}
	for i := range plan.Buildings {
		b := &plan.Buildings[i]
		if b.Pos.Room != room {
			continue
		}
		tile, err := worldapi.Rehydrate(m.world, b.Pos)
		if err != nil {
			continue
		}
		switch {
		case b.Placed && !tile.HasStructure(b.Type):
			b.Placed = false
			b.EverPlaced = true
			b.RequestID = ""
			res.Buildings = append(res.Buildings, *b)
		case !b.Placed && b.RequestID != "" && !tile.HasMarker(b.Type) && !tile.HasStructure(b.Type):
			b.RequestID = ""
			res.Stale++
		}
	}
	for i := range plan.Roads {
		s := &plan.Roads[i]
		if s.Pos.Room != room {
			continue
		}
		tile, err := worldapi.Rehydrate(m.world, s.Pos)
		if err != nil {
			continue
		}
		switch {
		case s.Placed && !tile.HasStructure(model.Road):
			s.Placed = false
			s.EverPlaced = true
			s.RequestID = ""
			res.Roads = append(res.Roads, *s)
		case !s.Placed && s.RequestID != "" && !tile.HasMarker(model.Road) && !tile.HasStructure(model.Road):
			s.RequestID = ""
			res.Stale++
		}
	}
	if len(res.Buildings) > 0 || len(res.Roads) > 0 {
		m.logf("room %s: %d buildings and %d roads need rebuilding", room, len(res.Buildings), len(res.Roads))
	}
	return res
}

func (m *Manager) logf(format string, args ...any) {
	if m.log != nil {
		m.log.Printf(format, args...)
	}
}
