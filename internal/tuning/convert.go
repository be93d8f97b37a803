package tuning

import (
	"github.com/mrskaggs/cline-ai-sub002/internal/plan/layout"
	"github.com/mrskaggs/cline-ai-sub002/internal/plan/roads"
	"github.com/mrskaggs/cline-ai-sub002/internal/plan/room"
	"github.com/mrskaggs/cline-ai-sub002/internal/plan/traffic"
	"github.com/mrskaggs/cline-ai-sub002/internal/sim/worldsim"
)

func (p Planner) RoomConfig() room.Config {
	return room.Config{
		PlanEveryTicks:   p.PlanEveryTicks,
		StaleFactor:      p.StaleFactor,
		ScanEveryTicks:   p.ScanEveryTicks,
		DecayEveryTicks:  p.DecayEveryTicks,
		RoadTrafficDelta: p.RoadTrafficDelta,
		AnalysisTTL:      p.AnalysisTTL,
		Layout: layout.Config{
			SiteBudget:     p.SiteBudget,
			MinSpawnAccess: p.MinSpawnAccess,
		},
		Roads: roads.Config{
			MinTrafficForRoad:        p.MinTrafficForRoad,
			HighPriorityCutoff:       p.HighPriorityCutoff,
			RebuildPriorityThreshold: p.RebuildPriorityThreshold,
			TrafficMergeThreshold:    p.TrafficMergeThreshold,
			RoadBudget:               p.RoadBudget,
		},
		Traffic: traffic.Config{
			SamplesPerTick:  p.SamplesPerTick,
			DecayFactor:     p.TrafficDecayFactor,
			PruneBelow:      p.TrafficPruneBelow,
			PruneAfterTicks: p.TrafficPruneAfterTicks,
		},
	}
}

func (s Sim) WorldConfig() worldsim.Config {
	return worldsim.Config{
		Seed:            s.Seed,
		Rooms:           append([]string(nil), s.Rooms...),
		StartLevel:      s.StartLevel,
		LevelEveryTicks: s.LevelEveryTicks,
		BuildTicks:      s.BuildTicks,
		RoadDecayChance: s.RoadDecayChance,
		UnitsPerRoom:    s.UnitsPerRoom,
		MaxMarkers:      s.MaxMarkers,
		WallDensity:     s.WallDensity,
		SwampDensity:    s.SwampDensity,
	}
}
