package layout

import (
	"github.com/mrskaggs/cline-ai-sub002/internal/plan/model"
	"github.com/mrskaggs/cline-ai-sub002/internal/plan/templates"
	"github.com/mrskaggs/cline-ai-sub002/internal/plan/terrain"
)

// candidates tracks what the plan occupies while templates are expanded.
type candidates struct {
	an     *terrain.Analysis
	plan   *model.Plan
	counts map[model.StructureType]int
	taken  map[model.Pos]model.StructureType
	// claimed holds tiles already resolved for a landmark entry this pass.
	claimed map[model.Pos]bool
	// conflict reports a live structure or marker that rules t out at pos.
	conflict func(pos model.Pos, t model.StructureType) (string, bool)
}

func newCandidates(plan *model.Plan, an *terrain.Analysis, conflict func(model.Pos, model.StructureType) (string, bool)) *candidates {
	c := &candidates{
		an:       an,
		plan:     plan,
		counts:   plan.Counts(),
		taken:    make(map[model.Pos]model.StructureType, len(plan.Buildings)),
		claimed:  map[model.Pos]bool{},
		conflict: conflict,
	}
	for _, b := range plan.Buildings {
		c.taken[b.Pos] = b.Type
	}
	return c
}

func (c *candidates) take(t model.StructureType, pos model.Pos) {
	c.counts[t]++
	c.taken[pos] = t
}

// spawnAccess counts walkable tiles around the anchor not covered by an
// obstructing planned building.
func (c *candidates) spawnAccess() int {
	n := 0
	for _, p := range model.Neighbors8(c.an.Keys.Anchor) {
		if !c.an.WalkableAt(p) {
			continue
		}
		if t, ok := c.taken[p]; ok && t.Obstructs() {
			continue
		}
		n++
	}
	return n
}

func (c *candidates) resolve(e templates.Entry) (model.Pos, bool) {
	keys := c.an.Keys
	switch e.Relative {
	case templates.RelAnchor:
		return keys.Anchor.Add(e.Offset.DX, e.Offset.DY), true
	case templates.RelSource:
		if e.Index >= len(keys.Sources) {
			return model.Pos{}, false
		}
		return c.near(keys.Sources[e.Index], e.Range, e.Type, e.Slot())
	case templates.RelController:
		if keys.Controller.Room == "" {
			return model.Pos{}, false
		}
		return c.near(keys.Controller, e.Range, e.Type, e.Slot())
	case templates.RelMineral:
		if keys.Mineral == nil {
			return model.Pos{}, false
		}
		if e.Range == 0 {
			return *keys.Mineral, true
		}
		return c.near(*keys.Mineral, e.Range, e.Type, e.Slot())
	}
	return model.Pos{}, false
}

// near picks a free tile at exactly rng from landmark, closest to the anchor.
// The building already planned for slot is reused so repeated passes resolve
// to the same tile. Plans stored without slots adopt an unclaimed building of
// the same type on the ring.
func (c *candidates) near(landmark model.Pos, rng int, t model.StructureType, slot string) (model.Pos, bool) {
	for _, b := range c.plan.Buildings {
		if b.Slot == slot && b.Type == t {
			c.claimed[b.Pos] = true
			return b.Pos, true
		}
	}
	anchor := c.an.Keys.Anchor
	for i := range c.plan.Buildings {
		b := &c.plan.Buildings[i]
		if b.Slot != "" || b.Type != t || c.claimed[b.Pos] || model.Range(b.Pos, landmark) != rng {
			continue
		}
		if templates.Reserved(templates.Offset{DX: b.Pos.X - anchor.X, DY: b.Pos.Y - anchor.Y}) {
			continue
		}
		b.Slot = slot
		c.claimed[b.Pos] = true
		return b.Pos, true
	}

	var best model.Pos
	found := false
	for dy := -rng; dy <= rng; dy++ {
		for dx := -rng; dx <= rng; dx++ {
			p := landmark.Add(dx, dy)
			if model.Range(p, landmark) != rng {
				continue
			}
			if !p.Buildable() || !c.an.WalkableAt(p) {
				continue
			}
			if _, ok := c.taken[p]; ok {
				continue
			}
			if model.Range(p, anchor) <= 1 {
				continue
			}
			if templates.Reserved(templates.Offset{DX: p.X - anchor.X, DY: p.Y - anchor.Y}) {
				continue
			}
			if c.conflict != nil {
				if _, bad := c.conflict(p, t); bad {
					continue
				}
			}
			if !found || closer(p, best, anchor) {
				best = p
				found = true
			}
		}
	}
	if found {
		c.claimed[best] = true
	}
	return best, found
}

func closer(a, b, anchor model.Pos) bool {
	ra, rb := model.Range(a, anchor), model.Range(b, anchor)
	if ra != rb {
		return ra < rb
	}
	ma, mb := model.Manhattan(a, anchor), model.Manhattan(b, anchor)
	if ma != mb {
		return ma < mb
	}
	return model.Less(a, b)
}
