package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/mrskaggs/cline-ai-sub002/internal/persistence/archive"
	"github.com/mrskaggs/cline-ai-sub002/internal/persistence/indexdb"
	persistlog "github.com/mrskaggs/cline-ai-sub002/internal/persistence/log"
	"github.com/mrskaggs/cline-ai-sub002/internal/persistence/snapshot"
	"github.com/mrskaggs/cline-ai-sub002/internal/plan/room"
	"github.com/mrskaggs/cline-ai-sub002/internal/sim/worldsim"
	"github.com/mrskaggs/cline-ai-sub002/internal/transport/observer"
	"github.com/mrskaggs/cline-ai-sub002/internal/tuning"
)

type runtimeConfig struct {
	DataDir   string
	DisableDB bool
	// Snapshot is loaded when set; otherwise LoadLatest picks the newest one.
	Snapshot   string
	LoadLatest bool
}

// plannerRuntime owns the simulated world, the room manager and every sink
// that records what the manager does. All planning happens on the goroutine
// calling step or run.
type plannerRuntime struct {
	tune tuning.Tuning
	log  *log.Logger

	world *worldsim.World
	store *room.MemoryStore
	mgr   *room.Manager

	tickLog *persistlog.TickLogger
	events  *persistlog.EventLogger
	idx     *indexdb.SQLiteIndex
	obs     *observer.Server

	dataDir string
	snapDir string
	// base offsets the world tick after resuming from a snapshot.
	base uint64

	lastTick  atomic.Uint64
	lastStep  atomic.Int64
	roomErrs  atomic.Uint64
	snapReq   chan chan snapResult
	snapshots atomic.Uint64
}

type snapResult struct {
	tick uint64
	path string
	err  error
}

func newRuntime(rc runtimeConfig, tune tuning.Tuning, logger *log.Logger) (*plannerRuntime, error) {
	rt := &plannerRuntime{
		tune:    tune,
		log:     logger,
		world:   worldsim.New(tune.Sim.WorldConfig()),
		store:   room.NewMemoryStore(),
		dataDir: rc.DataDir,
		snapDir: filepath.Join(rc.DataDir, "snapshots"),
		snapReq: make(chan chan snapResult),
	}

	path := rc.Snapshot
	if path == "" && rc.LoadLatest {
		p, _, err := snapshot.Latest(rt.snapDir)
		switch {
		case err == nil:
			path = p
		case !errors.Is(err, snapshot.ErrNoSnapshot):
			return nil, err
		}
	}
	if path != "" {
		snap, err := snapshot.ReadSnapshot(path)
		if err != nil {
			return nil, fmt.Errorf("read snapshot: %w", err)
		}
		if snap.Header.Seed != tune.Sim.Seed {
			logger.Printf("snapshot seed %d differs from tuning seed %d; plans will be reconciled", snap.Header.Seed, tune.Sim.Seed)
		}
		snapshot.Restore(snap, rt.store)
		for name, level := range snap.Levels {
			rt.world.SetLevel(name, level)
		}
		rt.base = snap.Header.Tick
		logger.Printf("resumed from snapshot=%s tick=%d rooms=%d", filepath.Base(path), snap.Header.Tick, len(snap.Header.Rooms))
	}

	rt.tickLog = persistlog.NewTickLogger(rc.DataDir)
	rt.events = persistlog.NewEventLogger(rc.DataDir)
	rt.obs = observer.NewServer(rt.store, logger)
	sinks := room.Fanout{rt.events, rt.obs}
	if !rc.DisableDB {
		idx, err := indexdb.OpenSQLite(filepath.Join(rc.DataDir, "index", "planner.sqlite"))
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("open index: %w", err)
		}
		rt.idx = idx
		sinks = append(sinks, idx)
		if err := idx.UpsertConfig("tuning", tune); err != nil {
			logger.Printf("index: upsert tuning: %v", err)
		}
	}
	rt.mgr = room.NewManager(rt.world, rt.store, tune.Planner.RoomConfig(), sinks, logger)
	return rt, nil
}

// step advances the world one tick and runs the manager over every room.
func (rt *plannerRuntime) step() room.TickReport {
	start := time.Now()
	sr := rt.world.Step()
	for _, name := range sr.LevelUps {
		rt.log.Printf("room %s: controller level %d", name, rt.world.ControllerLevel(name))
	}
	tick := rt.base + sr.Tick
	rep := rt.mgr.Tick(tick)

	sum := rep.Summary()
	if err := rt.tickLog.WriteTick(sum); err != nil {
		rt.log.Printf("tick log: %v", err)
	}
	_ = rt.idx.WriteTick(sum)
	rt.obs.Publish(sum)

	rt.roomErrs.Add(uint64(len(rep.Errors())))
	rt.lastTick.Store(tick)
	rt.lastStep.Store(int64(time.Since(start)))

	if every := uint64(rt.tune.SnapshotEveryTicks); every > 0 && tick%every == 0 {
		if _, err := rt.writeSnapshot(tick); err != nil {
			rt.log.Printf("snapshot write: %v", err)
		}
	}
	return rep
}

func (rt *plannerRuntime) writeSnapshot(tick uint64) (string, error) {
	snap := snapshot.New(tick, rt.tune.Sim.Seed, rt.store)
	path := snapshot.PathFor(rt.snapDir, tick)
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		return "", err
	}
	rt.snapshots.Add(1)
	rt.idx.RecordSnapshot(path, snap)
	if dst, ok, err := archive.ArchiveLevelSnapshot(rt.dataDir, path, snap); err != nil {
		rt.log.Printf("archive snapshot %d: %v", tick, err)
	} else if ok {
		rt.log.Printf("archived level %d milestone: %s", archive.MilestoneLevel(snap), dst)
	}
	return path, nil
}

// requestSnapshot asks the loop goroutine for a snapshot of the current state.
func (rt *plannerRuntime) requestSnapshot(ctx context.Context) (snapResult, error) {
	ch := make(chan snapResult, 1)
	select {
	case rt.snapReq <- ch:
	case <-ctx.Done():
		return snapResult{}, ctx.Err()
	}
	select {
	case res := <-ch:
		return res, res.err
	case <-ctx.Done():
		return snapResult{}, ctx.Err()
	}
}

// run steps every tickDur until ctx ends or maxTicks steps were taken
// (0 runs forever). A final snapshot is written on the way out.
func (rt *plannerRuntime) run(ctx context.Context, tickDur time.Duration, maxTicks uint64) error {
	ticker := time.NewTicker(tickDur)
	defer ticker.Stop()
	var n uint64
	for {
		select {
		case <-ctx.Done():
			return rt.finish()
		case ch := <-rt.snapReq:
			tick := rt.lastTick.Load()
			path, err := rt.writeSnapshot(tick)
			ch <- snapResult{tick: tick, path: path, err: err}
		case <-ticker.C:
			rep := rt.step()
			if errs := rep.Errors(); len(errs) > 0 {
				rt.log.Printf("tick %d: %d room(s) failed", rep.Tick, len(errs))
			}
			n++
			if maxTicks > 0 && n >= maxTicks {
				return rt.finish()
			}
		}
	}
}

func (rt *plannerRuntime) finish() error {
	if rt.lastTick.Load() == 0 {
		return nil
	}
	_, err := rt.writeSnapshot(rt.lastTick.Load())
	return err
}

func (rt *plannerRuntime) close() {
	if rt.tickLog != nil {
		_ = rt.tickLog.Close()
	}
	if rt.events != nil {
		_ = rt.events.Close()
	}
	if rt.idx != nil {
		_ = rt.idx.Close()
	}
}
