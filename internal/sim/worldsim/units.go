package worldsim

import "github.com/mrskaggs/cline-ai-sub002/internal/plan/model"

type unit struct {
	name   string
	pos    model.Pos
	target int
}

// detourStep finds a passable neighbour of start from which target can be
// approached within maxDepth steps. The search is breadth-first over a fixed
// neighbour order so unit movement is reproducible.
func detourStep(start, target model.Pos, maxDepth int, passable func(model.Pos) bool) (model.Pos, bool) {
	if maxDepth <= 0 {
		return model.Pos{}, false
	}
	startDist := model.Range(start, target)

	type qItem struct {
		p     model.Pos
		depth int
		first model.Pos
	}

	visited := make(map[model.Pos]bool, 256)
	visited[start] = true

	queue := make([]qItem, 0, 256)
	for _, np := range model.Neighbors8(start) {
		if !passable(np) {
			continue
		}
		visited[np] = true
		queue = append(queue, qItem{p: np, depth: 1, first: np})
	}

	bestDist := startDist
	bestDepth := 0
	var bestFirst model.Pos
	found := false

	better := func(dist, depth int, first model.Pos) bool {
		if !found {
			return true
		}
		if dist != bestDist {
			return dist < bestDist
		}
		if depth != bestDepth {
			return depth < bestDepth
		}
		return model.Less(first, bestFirst)
	}

	for head := 0; head < len(queue); head++ {
		it := queue[head]

		d := model.Range(it.p, target)
		if d < startDist && better(d, it.depth, it.first) {
			found = true
			bestDist = d
			bestDepth = it.depth
			bestFirst = it.first
		}

		if it.depth >= maxDepth {
			continue
		}
		for _, np := range model.Neighbors8(it.p) {
			if visited[np] || !passable(np) {
				continue
			}
			visited[np] = true
			queue = append(queue, qItem{p: np, depth: it.depth + 1, first: it.first})
		}
	}

	if !found {
		return model.Pos{}, false
	}
	return bestFirst, true
}
