// Package gen holds the deterministic hashing used to generate simulated
// rooms. Everything is a pure function of the seed and coordinates.
package gen

import "hash/fnv"

func FloorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

func Mod(a, b int) int {
	// b > 0
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func Hash2(seed int64, x, y int) uint64 {
	ux := uint64(uint32(int32(x)))
	uy := uint64(uint32(int32(y)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uy * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

func Hash3(seed int64, x, y, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uy := uint64(uint32(int32(y)))
	uz := uint64(uint32(int32(z)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uy * 0xc2b2ae3d27d4eb4f) ^ (uz * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

// RoomSeed derives a per-room seed so rooms differ under one world seed.
func RoomSeed(seed int64, room string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(room))
	return int64(mix64(uint64(seed) ^ h.Sum64()))
}

// Permille converts a probability to the 0..1000 scale used by Roll.
func Permille(p float64) uint64 {
	switch {
	case p <= 0:
		return 0
	case p >= 1:
		return 1000
	}
	return uint64(p*1000 + 0.5)
}

// Roll reports whether the hashed (x, y, salt) falls under permille.
func Roll(seed int64, x, y, salt int, permille uint64) bool {
	if permille == 0 {
		return false
	}
	return Hash3(seed, x, y, salt)%1000 < permille
}

// InCluster reports whether (x, y) lies within radius of a cluster centre.
// Centres are placed at most one per grid cell with probability probPermille.
func InCluster(seed int64, x, y, grid, radius int, probPermille uint64) bool {
	if grid <= 0 || radius <= 0 || probPermille == 0 {
		return false
	}
	gx := FloorDiv(x, grid)
	gy := FloorDiv(y, grid)
	r2 := radius * radius

	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			cgx := gx + dx
			cgy := gy + dy
			h := Hash2(seed, cgx, cgy)
			if h%1000 >= probPermille {
				continue
			}

			ox := int((h >> 10) % uint64(grid))
			oy := int((h >> 20) % uint64(grid))
			cx := cgx*grid + ox
			cy := cgy*grid + oy

			ddx := x - cx
			ddy := y - cy
			if ddx*ddx+ddy*ddy <= r2 {
				return true
			}
		}
	}
	return false
}
