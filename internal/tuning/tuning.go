package tuning

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	TickDurationMs     int `yaml:"tick_duration_ms"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`

	Planner Planner `yaml:"planner"`
	Sim     Sim     `yaml:"sim"`
}

type Planner struct {
	PlanEveryTicks uint64 `yaml:"plan_every_ticks"`
	StaleFactor    uint64 `yaml:"stale_factor"`
	ScanEveryTicks uint64 `yaml:"scan_every_ticks"`
	AnalysisTTL    uint64 `yaml:"analysis_ttl_ticks"`
	SiteBudget     int    `yaml:"site_budget"`
	RoadBudget     int    `yaml:"road_budget"`
	MinSpawnAccess int    `yaml:"min_spawn_access"`

	MinTrafficForRoad        float64 `yaml:"min_traffic_for_road"`
	HighPriorityCutoff       int     `yaml:"high_priority_cutoff"`
	RebuildPriorityThreshold int     `yaml:"rebuild_priority_threshold"`
	TrafficMergeThreshold    float64 `yaml:"traffic_merge_threshold"`
	RoadTrafficDelta         uint64  `yaml:"road_traffic_delta"`

	SamplesPerTick         int     `yaml:"samples_per_tick"`
	TrafficDecayFactor     float64 `yaml:"traffic_decay_factor"`
	DecayEveryTicks        uint64  `yaml:"decay_every_ticks"`
	TrafficPruneBelow      float64 `yaml:"traffic_prune_below"`
	TrafficPruneAfterTicks uint64  `yaml:"traffic_prune_after_ticks"`
}

type Sim struct {
	Seed            int64    `yaml:"seed"`
	Rooms           []string `yaml:"rooms"`
	StartLevel      int      `yaml:"start_level"`
	LevelEveryTicks uint64   `yaml:"level_every_ticks"`
	BuildTicks      uint64   `yaml:"build_ticks"`
	RoadDecayChance float64  `yaml:"road_decay_chance"`
	UnitsPerRoom    int      `yaml:"units_per_room"`
	MaxMarkers      int      `yaml:"max_markers"`
	WallDensity     float64  `yaml:"wall_density"`
	SwampDensity    float64  `yaml:"swamp_density"`
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func Defaults() Tuning {
	return Tuning{
		TickDurationMs:     100,
		SnapshotEveryTicks: 500,
		Planner: Planner{
			PlanEveryTicks:           10,
			StaleFactor:              10,
			ScanEveryTicks:           50,
			AnalysisTTL:              1000,
			SiteBudget:               5,
			RoadBudget:               5,
			MinSpawnAccess:           4,
			MinTrafficForRoad:        5,
			HighPriorityCutoff:       80,
			RebuildPriorityThreshold: 75,
			TrafficMergeThreshold:    5,
			RoadTrafficDelta:         200,
			SamplesPerTick:           20,
			TrafficDecayFactor:       0.9,
			DecayEveryTicks:          100,
			TrafficPruneBelow:        0.5,
			TrafficPruneAfterTicks:   500,
		},
		Sim: Sim{
			Seed:            1,
			Rooms:           []string{"W1N1", "W2N1"},
			StartLevel:      1,
			LevelEveryTicks: 300,
			BuildTicks:      5,
			RoadDecayChance: 0.001,
			UnitsPerRoom:    6,
			MaxMarkers:      100,
			WallDensity:     0.08,
			SwampDensity:    0.06,
		},
	}
}

// Normalize fills values that only make sense derived from others.
func (t *Tuning) Normalize() {
	if t.Planner.TrafficMergeThreshold <= 0 {
		t.Planner.TrafficMergeThreshold = t.Planner.MinTrafficForRoad
	}
	seen := map[string]bool{}
	rooms := t.Sim.Rooms[:0]
	for _, r := range t.Sim.Rooms {
		r = strings.TrimSpace(r)
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		rooms = append(rooms, r)
	}
	t.Sim.Rooms = rooms
}

func (t Tuning) Validate() error {
	p := t.Planner
	var errs []error
	if t.TickDurationMs <= 0 {
		errs = append(errs, errors.New("tick_duration_ms must be > 0"))
	}
	if p.PlanEveryTicks == 0 || p.ScanEveryTicks == 0 || p.DecayEveryTicks == 0 {
		errs = append(errs, errors.New("planner cadences must be > 0"))
	}
	if p.SiteBudget <= 0 || p.RoadBudget <= 0 {
		errs = append(errs, errors.New("site_budget and road_budget must be > 0"))
	}
	if p.RebuildPriorityThreshold >= p.HighPriorityCutoff {
		errs = append(errs, fmt.Errorf("rebuild_priority_threshold (%d) must be < high_priority_cutoff (%d)",
			p.RebuildPriorityThreshold, p.HighPriorityCutoff))
	}
	if p.TrafficDecayFactor <= 0 || p.TrafficDecayFactor > 1 {
		errs = append(errs, fmt.Errorf("traffic_decay_factor %v not in (0,1]", p.TrafficDecayFactor))
	}
	if p.MinSpawnAccess < 0 || p.MinSpawnAccess > 8 {
		errs = append(errs, fmt.Errorf("min_spawn_access %d not in [0,8]", p.MinSpawnAccess))
	}
	if len(t.Sim.Rooms) == 0 {
		errs = append(errs, errors.New("sim.rooms is empty"))
	}
	if t.Sim.RoadDecayChance < 0 || t.Sim.RoadDecayChance > 1 {
		errs = append(errs, fmt.Errorf("sim.road_decay_chance %v not in [0,1]", t.Sim.RoadDecayChance))
	}
	if t.Sim.WallDensity+t.Sim.SwampDensity >= 1 {
		errs = append(errs, errors.New("sim wall_density + swamp_density must be < 1"))
	}
	return errors.Join(errs...)
}
