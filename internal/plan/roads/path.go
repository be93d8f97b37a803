package roads

import (
	"container/heap"

	"github.com/mrskaggs/cline-ai-sub002/internal/plan/model"
	"github.com/mrskaggs/cline-ai-sub002/internal/plan/terrain"
)

// Tile costs for road pathing. Zero means impassable.
const (
	CostRoad  = 1
	CostPlain = 2
	CostSwamp = 10
)

// CostMatrix holds per-tile movement costs for one room.
type CostMatrix struct {
	room  string
	costs [model.RoomSize * model.RoomSize]uint8
}

// NewCostMatrix derives costs from terrain: walls are impassable, swamps
// expensive, everything else plain.
func NewCostMatrix(an *terrain.Analysis) *CostMatrix {
	m := &CostMatrix{room: an.Room}
	for i := range m.costs {
		p := model.FromIndex(an.Room, i)
		switch {
		case !an.WalkableAt(p):
			m.costs[i] = 0
		case an.SwampAt(p):
			m.costs[i] = CostSwamp
		default:
			m.costs[i] = CostPlain
		}
	}
	return m
}

func (m *CostMatrix) Set(p model.Pos, cost uint8) {
	if p.Room == m.room && p.InRoom() {
		m.costs[p.Index()] = cost
	}
}

func (m *CostMatrix) Cost(p model.Pos) uint8 {
	if p.Room != m.room || !p.InRoom() {
		return 0
	}
	return m.costs[p.Index()]
}

// Block marks p impassable.
func (m *CostMatrix) Block(p model.Pos) { m.Set(p, 0) }

// Prefer marks p as an existing or planned road, unless it is impassable.
func (m *CostMatrix) Prefer(p model.Pos) {
	if m.Cost(p) != 0 {
		m.Set(p, CostRoad)
	}
}

type pathNode struct {
	pos    model.Pos
	g, h   int
	seq    int
	parent *pathNode
	index  int
}

type openList []*pathNode

func (ol openList) Len() int { return len(ol) }
func (ol openList) Less(i, j int) bool {
	fi, fj := ol[i].g+ol[i].h, ol[j].g+ol[j].h
	if fi != fj {
		return fi < fj
	}
	if ol[i].h != ol[j].h {
		return ol[i].h < ol[j].h
	}
	return ol[i].seq < ol[j].seq
}
func (ol openList) Swap(i, j int) { ol[i], ol[j] = ol[j], ol[i]; ol[i].index = i; ol[j].index = j }
func (ol *openList) Push(x any)   { n := x.(*pathNode); n.index = len(*ol); *ol = append(*ol, n) }
func (ol *openList) Pop() any {
	old := *ol
	n := old[len(old)-1]
	old[len(old)-1] = nil
	*ol = old[:len(old)-1]
	return n
}

// FindPath returns the cheapest 8-connected path from start to any tile within
// rng of goal. The start tile is excluded from the result and may itself be
// impassable (a spawn). Returns nil when the goal is unreachable.
func FindPath(m *CostMatrix, start, goal model.Pos, rng int) []model.Pos {
	if start.Room != m.room || goal.Room != m.room {
		return nil
	}
	if model.Range(start, goal) <= rng {
		return []model.Pos{}
	}
	h := func(p model.Pos) int {
		d := model.Range(p, goal) - rng
		if d < 0 {
			return 0
		}
		return d * CostRoad
	}
	seq := 0
	first := &pathNode{pos: start, h: h(start)}
	ol := &openList{first}
	heap.Init(ol)
	var closed [model.RoomSize * model.RoomSize]bool
	best := map[int]int{start.Index(): 0}

	for ol.Len() > 0 {
		cur := heap.Pop(ol).(*pathNode)
		k := cur.pos.Index()
		if closed[k] {
			continue
		}
		if model.Range(cur.pos, goal) <= rng {
			return buildPath(cur)
		}
		closed[k] = true
		for _, n := range model.Neighbors8(cur.pos) {
			c := m.Cost(n)
			if c == 0 {
				continue
			}
			nk := n.Index()
			if closed[nk] {
				continue
			}
			g := cur.g + int(c)
			if prev, ok := best[nk]; ok && g >= prev {
				continue
			}
			best[nk] = g
			seq++
			heap.Push(ol, &pathNode{pos: n, g: g, h: h(n), seq: seq, parent: cur})
		}
	}
	return nil
}

func buildPath(end *pathNode) []model.Pos {
	var out []model.Pos
	for n := end; n != nil && n.parent != nil; n = n.parent {
		out = append(out, n.pos)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
