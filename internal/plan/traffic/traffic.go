package traffic

import (
	"sort"

	"github.com/mrskaggs/cline-ai-sub002/internal/plan/model"
	"github.com/mrskaggs/cline-ai-sub002/internal/plan/worldapi"
)

type Cell struct {
	Score    float64 `json:"score"`
	LastSeen uint64  `json:"last_seen"`
}

// Data is the persisted usage map for one room.
type Data struct {
	Room  string              `json:"room"`
	Cells map[model.Pos]*Cell `json:"-"`
	// Samples counts every sample ever recorded; it only grows.
	Samples   uint64 `json:"samples"`
	LastDecay uint64 `json:"last_decay"`
}

func NewData(room string) *Data {
	return &Data{Room: room, Cells: map[model.Pos]*Cell{}}
}

func (d *Data) Clone() *Data {
	if d == nil {
		return nil
	}
	cp := *d
	cp.Cells = make(map[model.Pos]*Cell, len(d.Cells))
	for p, c := range d.Cells {
		cc := *c
		cp.Cells[p] = &cc
	}
	return &cp
}

type Config struct {
	SamplesPerTick  int
	DecayFactor     float64
	PruneBelow      float64
	PruneAfterTicks uint64
}

type Analyzer struct {
	world worldapi.World
	cfg   Config
}

func NewAnalyzer(w worldapi.World, cfg Config) *Analyzer {
	if cfg.DecayFactor <= 0 || cfg.DecayFactor > 1 {
		cfg.DecayFactor = 0.9
	}
	return &Analyzer{world: w, cfg: cfg}
}

// RecordSample adds one observation of a unit standing on pos.
func (a *Analyzer) RecordSample(d *Data, pos model.Pos, tick uint64) {
	if d == nil || pos.Room != d.Room || !pos.InRoom() {
		return
	}
	c := d.Cells[pos]
	if c == nil {
		c = &Cell{}
		d.Cells[pos] = c
	}
	c.Score++
	c.LastSeen = tick
	d.Samples++
}

// SampleRoom records at most SamplesPerTick of the world's unit positions.
// When the world offers more, every n-th position is taken so the sample
// stays spread over the room.
func (a *Analyzer) SampleRoom(d *Data, tick uint64) int {
	pos := a.world.UnitPositionsSample(d.Room)
	if len(pos) == 0 {
		return 0
	}
	limit := a.cfg.SamplesPerTick
	if limit <= 0 || limit > len(pos) {
		limit = len(pos)
	}
	stride := len(pos) / limit
	n := 0
	for i := 0; i < len(pos) && n < limit; i += stride {
		a.RecordSample(d, pos[i], tick)
		n++
	}
	return n
}

// Decay scales every score by DecayFactor and prunes cells that stayed below
// PruneBelow for longer than PruneAfterTicks.
func (a *Analyzer) Decay(d *Data, tick uint64) {
	if d == nil {
		return
	}
	for _, c := range d.Cells {
		c.Score *= a.cfg.DecayFactor
	}
	d.LastDecay = tick
	a.Prune(d, tick)
}

func (a *Analyzer) Prune(d *Data, tick uint64) int {
	removed := 0
	for p, c := range d.Cells {
		if c.Score > a.cfg.PruneBelow {
			continue
		}
		if tick < c.LastSeen || tick-c.LastSeen < a.cfg.PruneAfterTicks {
			continue
		}
		delete(d.Cells, p)
		removed++
	}
	return removed
}

func (a *Analyzer) ScoreAt(d *Data, pos model.Pos) float64 {
	if d == nil {
		return 0
	}
	if c := d.Cells[pos]; c != nil {
		return c.Score
	}
	return 0
}

// HighTrafficPositions returns positions with score >= threshold, busiest
// first.
func (a *Analyzer) HighTrafficPositions(d *Data, threshold float64) []model.Pos {
	if d == nil {
		return nil
	}
	type kv struct {
		p model.Pos
		s float64
	}
	var hits []kv
	for p, c := range d.Cells {
		if c.Score >= threshold {
			hits = append(hits, kv{p, c.Score})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].s != hits[j].s {
			return hits[i].s > hits[j].s
		}
		return model.Less(hits[i].p, hits[j].p)
	})
	out := make([]model.Pos, len(hits))
	for i, h := range hits {
		out[i] = h.p
	}
	return out
}
