package worldsim

import (
	"github.com/mrskaggs/cline-ai-sub002/internal/plan/model"
	"github.com/mrskaggs/cline-ai-sub002/internal/plan/worldapi"
	"github.com/mrskaggs/cline-ai-sub002/internal/sim/gen"
)

const tiles = model.RoomSize * model.RoomSize

// landmarkClear is the radius kept free of walls around landmarks and the
// room centre so every generated room can host a base.
const landmarkClear = 2

type layout struct {
	walls     [tiles]bool
	swamps    [tiles]bool
	landmarks worldapi.Landmarks
}

// generate builds the static layout of one room from the world seed.
func generate(seed int64, room string, wallDensity, swampDensity float64) layout {
	rs := gen.RoomSeed(seed, room)
	var l layout

	wallP := gen.Permille(wallDensity * 5)
	swampP := gen.Permille(swampDensity * 5)
	for y := 0; y < model.RoomSize; y++ {
		for x := 0; x < model.RoomSize; x++ {
			i := y*model.RoomSize + x
			p := model.P(room, x, y)
			if p.OnEdge() {
				l.walls[i] = true
				continue
			}
			if gen.InCluster(rs, x, y, 9, 2, wallP) {
				l.walls[i] = true
				continue
			}
			l.swamps[i] = gen.InCluster(rs^0x5a5a, x, y, 7, 2, swampP)
		}
	}
	openExits(&l, rs, room)

	pick := func(salt int) model.Pos {
		h := gen.Hash2(rs, salt, 0x1d)
		return model.P(room, 5+int(h%40), 5+int((h>>16)%40))
	}
	nSources := 1 + int(gen.Hash2(rs, 1, 1)%2)
	for i := 0; i < nSources; i++ {
		l.landmarks.Sources = append(l.landmarks.Sources, pick(10+i))
	}
	l.landmarks.Controller = pick(20)
	m := pick(30)
	l.landmarks.Mineral = &m

	keep := append([]model.Pos{l.landmarks.Controller, m, model.P(room, 25, 25)}, l.landmarks.Sources...)
	for _, c := range keep {
		for dy := -landmarkClear; dy <= landmarkClear; dy++ {
			for dx := -landmarkClear; dx <= landmarkClear; dx++ {
				p := c.Add(dx, dy)
				if p.Buildable() {
					l.walls[p.Index()] = false
				}
			}
		}
	}
	return l
}

// openExits cuts one or two gaps into every room edge.
func openExits(l *layout, rs int64, room string) {
	for side := 0; side < 4; side++ {
		gaps := 1 + int(gen.Hash2(rs, side, 0x2e)%2)
		for g := 0; g < gaps; g++ {
			h := gen.Hash2(rs, side, 0x30+g)
			width := 2 + int(h%4)
			start := 3 + int((h>>8)%uint64(model.MaxCoord-width-5))
			for k := start; k < start+width; k++ {
				var p model.Pos
				switch side {
				case 0:
					p = model.P(room, k, 0)
				case 1:
					p = model.P(room, model.MaxCoord, k)
				case 2:
					p = model.P(room, k, model.MaxCoord)
				default:
					p = model.P(room, 0, k)
				}
				l.walls[p.Index()] = false
			}
		}
	}
}
