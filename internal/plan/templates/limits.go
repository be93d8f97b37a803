package templates

import "github.com/mrskaggs/cline-ai-sub002/internal/plan/model"

// MaxLevel is the highest controller level.
const MaxLevel = 8

// limits is the controller structure table, indexed by level 0..8. Keep it a
// literal table: the extension row in particular is stepped, not linear.
var limits = map[model.StructureType][MaxLevel + 1]int{
	model.Spawn:      {0, 1, 1, 1, 1, 1, 1, 2, 3},
	model.Extension:  {0, 0, 5, 10, 20, 30, 40, 50, 60},
	model.Link:       {0, 0, 0, 0, 0, 2, 3, 4, 6},
	model.Road:       {2500, 2500, 2500, 2500, 2500, 2500, 2500, 2500, 2500},
	model.Wall:       {0, 0, 2500, 2500, 2500, 2500, 2500, 2500, 2500},
	model.Rampart:    {0, 0, 2500, 2500, 2500, 2500, 2500, 2500, 2500},
	model.Storage:    {0, 0, 0, 0, 1, 1, 1, 1, 1},
	model.Tower:      {0, 0, 0, 1, 1, 2, 2, 3, 6},
	model.Observer:   {0, 0, 0, 0, 0, 0, 0, 0, 1},
	model.PowerSpawn: {0, 0, 0, 0, 0, 0, 0, 0, 1},
	model.Extractor:  {0, 0, 0, 0, 0, 0, 1, 1, 1},
	model.Lab:        {0, 0, 0, 0, 0, 0, 3, 6, 10},
	model.Terminal:   {0, 0, 0, 0, 0, 0, 1, 1, 1},
	model.Container:  {5, 5, 5, 5, 5, 5, 5, 5, 5},
	model.Nuker:      {0, 0, 0, 0, 0, 0, 0, 0, 1},
	model.Factory:    {0, 0, 0, 0, 0, 0, 0, 1, 1},
}

func clampLevel(level int) int {
	if level < 0 {
		return 0
	}
	if level > MaxLevel {
		return MaxLevel
	}
	return level
}

// LimitFor returns the maximum number of structures of type t at level.
func LimitFor(t model.StructureType, level int) int {
	row, ok := limits[t]
	if !ok {
		return 0
	}
	return row[clampLevel(level)]
}

// Limits returns the full per-type table for one level.
func Limits(level int) map[model.StructureType]int {
	out := make(map[model.StructureType]int, len(limits))
	for t, row := range limits {
		out[t] = row[clampLevel(level)]
	}
	return out
}

// MinLevel returns the first level at which t may exist, or -1 if never.
func MinLevel(t model.StructureType) int {
	row, ok := limits[t]
	if !ok {
		return -1
	}
	for lvl, n := range row {
		if n > 0 {
			return lvl
		}
	}
	return -1
}
