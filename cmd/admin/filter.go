package main

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/mrskaggs/cline-ai-sub002/internal/plan/model"
	"github.com/mrskaggs/cline-ai-sub002/internal/plan/room"
)

// EntryEnv is the environment of a -where expression over plan entries.
type EntryEnv struct {
	Room       string
	Type       string
	X          int
	Y          int
	Priority   int
	Level      int
	Placed     bool
	EverPlaced bool
	Requested  bool
	Road       bool
	PathType   string
	Traffic    float64
}

// EventEnv is the environment of a -where expression over logged events.
type EventEnv struct {
	Tick   uint64
	Room   string
	Kind   string
	Count  int
	Code   string
	Detail string
}

type filter struct{ program *vm.Program }

// compileFilter compiles src against env. An empty source matches everything.
func compileFilter(src string, env any) (*filter, error) {
	if strings.TrimSpace(src) == "" {
		return &filter{}, nil
	}
	program, err := expr.Compile(src, expr.Env(env), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile -where: %w", err)
	}
	return &filter{program: program}, nil
}

func (f *filter) match(env any) (bool, error) {
	if f.program == nil {
		return true, nil
	}
	out, err := vm.Run(f.program, env)
	if err != nil {
		return false, err
	}
	ok, _ := out.(bool)
	return ok, nil
}

func buildingEnv(b model.Building) EntryEnv {
	return EntryEnv{
		Room:       b.Pos.Room,
		Type:       string(b.Type),
		X:          b.Pos.X,
		Y:          b.Pos.Y,
		Priority:   b.Priority,
		Level:      b.LevelRequired,
		Placed:     b.Placed,
		EverPlaced: b.EverPlaced,
		Requested:  b.RequestID != "",
	}
}

func roadEnv(r model.RoadSegment) EntryEnv {
	return EntryEnv{
		Room:       r.Pos.Room,
		Type:       string(model.Road),
		X:          r.Pos.X,
		Y:          r.Pos.Y,
		Priority:   r.Priority,
		Placed:     r.Placed,
		EverPlaced: r.EverPlaced,
		Requested:  r.RequestID != "",
		Road:       true,
		PathType:   r.PathType.String(),
		Traffic:    r.TrafficScore,
	}
}

func eventEnv(ev room.Event) EventEnv {
	return EventEnv{Tick: ev.Tick, Room: ev.Room, Kind: ev.Kind, Count: ev.Count, Code: ev.Code, Detail: ev.Detail}
}
