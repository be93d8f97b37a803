package model

import "fmt"

// Room dimensions. Tiles 0 and RoomSize-1 on either axis are exit/border tiles.
const (
	RoomSize = 50
	MaxCoord = RoomSize - 1
)

// Pos is a tile position inside a room. It is a plain value: it carries no
// capability to query the world (see worldapi.Rehydrate).
type Pos struct {
	X    int    `json:"x"`
	Y    int    `json:"y"`
	Room string `json:"room"`
}

func P(room string, x, y int) Pos { return Pos{X: x, Y: y, Room: room} }

func (p Pos) String() string { return fmt.Sprintf("%s[%d,%d]", p.Room, p.X, p.Y) }

func (p Pos) Add(dx, dy int) Pos { return Pos{X: p.X + dx, Y: p.Y + dy, Room: p.Room} }

// InRoom reports whether the position lies on the 50x50 grid.
func (p Pos) InRoom() bool {
	return p.X >= 0 && p.X <= MaxCoord && p.Y >= 0 && p.Y <= MaxCoord
}

// OnEdge reports whether the position is an exit/border tile.
func (p Pos) OnEdge() bool {
	return p.X == 0 || p.Y == 0 || p.X == MaxCoord || p.Y == MaxCoord
}

// Buildable reports whether construction may be requested here (not on the border).
func (p Pos) Buildable() bool {
	return p.X >= 1 && p.X <= MaxCoord-1 && p.Y >= 1 && p.Y <= MaxCoord-1
}

func (p Pos) Index() int { return p.Y*RoomSize + p.X }

func FromIndex(room string, i int) Pos { return Pos{X: i % RoomSize, Y: i / RoomSize, Room: room} }

// Range is the Chebyshev distance (diagonal moves cost one step).
func Range(a, b Pos) int {
	dx := absInt(a.X - b.X)
	dy := absInt(a.Y - b.Y)
	if dx > dy {
		return dx
	}
	return dy
}

func Manhattan(a, b Pos) int { return absInt(a.X-b.X) + absInt(a.Y-b.Y) }

// Less orders positions by y then x, used for deterministic tie breaks.
func Less(a, b Pos) bool {
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.X < b.X
}

// Neighbors8 lists the in-room positions adjacent to p in a fixed order.
func Neighbors8(p Pos) []Pos {
	out := make([]Pos, 0, 8)
	for _, d := range Dirs8 {
		n := p.Add(d[0], d[1])
		if n.InRoom() {
			out = append(out, n)
		}
	}
	return out
}

// Dirs8 is the fixed neighbor order: orthogonal first, then diagonals.
var Dirs8 = [8][2]int{{0, -1}, {1, 0}, {0, 1}, {-1, 0}, {1, -1}, {1, 1}, {-1, 1}, {-1, -1}}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
