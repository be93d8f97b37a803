// Package worldapi is the narrow boundary between the planner and the world
// layer. Stored positions are plain values; every query goes through a Tile
// obtained from Rehydrate.
package worldapi

import (
	"errors"
	"fmt"

	"github.com/mrskaggs/cline-ai-sub002/internal/plan/model"
)

var (
	// ErrOutOfBounds is a permanent rejection: the position is not buildable.
	ErrOutOfBounds = errors.New("position out of bounds")
	// ErrInvalidTarget means the tile cannot host the structure right now.
	ErrInvalidTarget = errors.New("invalid construction target")
	// ErrLevelTooLow means the world's own ceiling for the type is reached.
	ErrLevelTooLow = errors.New("controller level too low")
	// ErrFull means the world refuses more construction markers.
	ErrFull = errors.New("too many construction sites")
	ErrNotOwner = errors.New("room not owned")
)

// IsCapacity reports whether err is a world-enforced capacity rejection.
func IsCapacity(err error) bool {
	return errors.Is(err, ErrLevelTooLow) || errors.Is(err, ErrFull)
}

type TerrainInfo struct {
	Walkable bool
	Swamp    bool
}

// Landmarks are the static room objects the layout is anchored on.
type Landmarks struct {
	Sources    []model.Pos
	Controller model.Pos
	Mineral    *model.Pos
}

// World is implemented by the game layer.
type World interface {
	Rooms() []string
	ControllerLevel(room string) int
	Landmarks(room string) Landmarks

	TerrainAt(pos model.Pos) TerrainInfo
	StructuresAt(pos model.Pos) []model.StructureType
	MarkersAt(pos model.Pos) []model.StructureType
	UnitsAt(pos model.Pos) []string
	RequestConstruction(pos model.Pos, t model.StructureType) (string, error)
	UnitPositionsSample(room string) []model.Pos
}

// Tile is a queryable handle for one position.
type Tile struct {
	w   World
	pos model.Pos
}

// Rehydrate turns a stored position back into a queryable tile.
func Rehydrate(w World, pos model.Pos) (Tile, error) {
	if w == nil {
		return Tile{}, errors.New("rehydrate: nil world")
	}
	if pos.Room == "" || !pos.InRoom() {
		return Tile{}, fmt.Errorf("rehydrate %s: %w", pos, ErrOutOfBounds)
	}
	return Tile{w: w, pos: pos}, nil
}

func (t Tile) Pos() model.Pos { return t.pos }

func (t Tile) Terrain() TerrainInfo { return t.w.TerrainAt(t.pos) }

func (t Tile) Walkable() bool { return t.w.TerrainAt(t.pos).Walkable }

func (t Tile) Structures() []model.StructureType { return t.w.StructuresAt(t.pos) }

func (t Tile) Markers() []model.StructureType { return t.w.MarkersAt(t.pos) }

func (t Tile) Units() []string { return t.w.UnitsAt(t.pos) }

func (t Tile) HasStructure(st model.StructureType) bool {
	for _, s := range t.w.StructuresAt(t.pos) {
		if s == st {
			return true
		}
	}
	return false
}

func (t Tile) HasMarker(st model.StructureType) bool {
	for _, s := range t.w.MarkersAt(t.pos) {
		if s == st {
			return true
		}
	}
	return false
}

// RequestConstruction asks the world for a construction marker. Border tiles
// are rejected locally with ErrOutOfBounds.
func (t Tile) RequestConstruction(st model.StructureType) (string, error) {
	if !t.pos.Buildable() {
		return "", fmt.Errorf("construct %s at %s: %w", st, t.pos, ErrOutOfBounds)
	}
	id, err := t.w.RequestConstruction(t.pos, st)
	if err != nil {
		return "", fmt.Errorf("construct %s at %s: %w", st, t.pos, err)
	}
	return id, nil
}
