package model

// StructureType names a buildable structure. Values match the wire names used
// by the world layer.
type StructureType string

const (
	Spawn       StructureType = "spawn"
	Extension   StructureType = "extension"
	Road        StructureType = "road"
	Wall        StructureType = "constructedWall"
	Rampart     StructureType = "rampart"
	Link        StructureType = "link"
	Storage     StructureType = "storage"
	Tower       StructureType = "tower"
	Observer    StructureType = "observer"
	PowerSpawn  StructureType = "powerSpawn"
	Extractor   StructureType = "extractor"
	Lab         StructureType = "lab"
	Terminal    StructureType = "terminal"
	Container   StructureType = "container"
	Nuker       StructureType = "nuker"
	Factory     StructureType = "factory"
)

// AllStructureTypes lists every known type in a stable order.
var AllStructureTypes = []StructureType{
	Spawn, Extension, Road, Wall, Rampart, Link, Storage, Tower, Observer,
	PowerSpawn, Extractor, Lab, Terminal, Container, Nuker, Factory,
}

func (t StructureType) Valid() bool {
	for _, k := range AllStructureTypes {
		if k == t {
			return true
		}
	}
	return false
}

// Obstructs reports whether units cannot walk over the structure.
func (t StructureType) Obstructs() bool {
	switch t {
	case Road, Container, Rampart:
		return false
	default:
		return true
	}
}

// CanShareTile reports whether two structure types may occupy the same tile.
// Ramparts cover anything; roads may sit under ramparts and containers.
func CanShareTile(a, b StructureType) bool {
	if a == b {
		return false
	}
	if a == Rampart || b == Rampart {
		return true
	}
	if (a == Road && b == Container) || (a == Container && b == Road) {
		return true
	}
	return false
}
