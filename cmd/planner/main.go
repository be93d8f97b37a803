package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mrskaggs/cline-ai-sub002/internal/tuning"
)

func main() {
	var (
		addr       = flag.String("addr", "127.0.0.1:8080", "http listen address (empty to disable)")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		seed       = flag.Int64("seed", 0, "override sim.seed (0 keeps the tuning value)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite history index")
		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
		maxTicks   = flag.Uint64("ticks", 0, "stop after this many ticks (0 runs until interrupted)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[planner] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", *tuningPath)
		tune = tuning.Defaults()
	}
	if *seed != 0 {
		tune.Sim.Seed = *seed
	}

	rt, err := newRuntime(runtimeConfig{
		DataDir:    *dataDir,
		DisableDB:  *disableDB,
		Snapshot:   strings.TrimSpace(*snapPath),
		LoadLatest: *loadLatest,
	}, tune, logger)
	if err != nil {
		logger.Fatalf("init: %v", err)
	}
	defer rt.close()

	ctx, cancel := signalContext()
	defer cancel()

	var srv *http.Server
	if a := strings.TrimSpace(*addr); a != "" {
		srv = &http.Server{
			Addr:              a,
			Handler:           rt.httpHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Printf("listening on %s", a)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("ListenAndServe: %v", err)
				cancel()
			}
		}()
	}

	logger.Printf("planning rooms=%v seed=%d tick=%dms", tune.Sim.Rooms, tune.Sim.Seed, tune.TickDurationMs)
	if err := rt.run(ctx, time.Duration(tune.TickDurationMs)*time.Millisecond, *maxTicks); err != nil {
		logger.Printf("final snapshot: %v", err)
	}

	if srv != nil {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}
	logger.Printf("stopped at tick %d", rt.lastTick.Load())
}

func (rt *plannerRuntime) httpHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", rt.metricsHandler)
	mux.HandleFunc("POST /admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		res, err := rt.requestSnapshot(ctx)
		rw.Header().Set("Content-Type", "application/json")
		if err != nil {
			rw.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "tick": res.tick, "error": err.Error()})
			return
		}
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": res.tick, "path": res.path})
	})
	mux.Handle("/v1/", rt.obs.Handler())
	return mux
}

func (rt *plannerRuntime) metricsHandler(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

	fmt.Fprintf(rw, "# HELP planner_tick Last planner tick.\n")
	fmt.Fprintf(rw, "# TYPE planner_tick gauge\n")
	fmt.Fprintf(rw, "planner_tick %d\n", rt.lastTick.Load())

	fmt.Fprintf(rw, "# HELP planner_step_ms Duration of the last tick in milliseconds.\n")
	fmt.Fprintf(rw, "# TYPE planner_step_ms gauge\n")
	fmt.Fprintf(rw, "planner_step_ms %.3f\n", float64(rt.lastStep.Load())/float64(time.Millisecond))

	fmt.Fprintf(rw, "# HELP planner_room_errors_total Rooms that failed a tick.\n")
	fmt.Fprintf(rw, "# TYPE planner_room_errors_total counter\n")
	fmt.Fprintf(rw, "planner_room_errors_total %d\n", rt.roomErrs.Load())

	fmt.Fprintf(rw, "# HELP planner_snapshots_total Snapshots written.\n")
	fmt.Fprintf(rw, "# TYPE planner_snapshots_total counter\n")
	fmt.Fprintf(rw, "planner_snapshots_total %d\n", rt.snapshots.Load())

	fmt.Fprintf(rw, "# HELP planner_observer_sessions Connected observers.\n")
	fmt.Fprintf(rw, "# TYPE planner_observer_sessions gauge\n")
	fmt.Fprintf(rw, "planner_observer_sessions %d\n", rt.obs.Sessions())
	fmt.Fprintf(rw, "planner_observer_dropped_total %d\n", rt.obs.Dropped())

	fmt.Fprintf(rw, "planner_event_log_failed_total %d\n", rt.events.Failed())
	if rt.idx != nil {
		st := rt.idx.Stats()
		fmt.Fprintf(rw, "# HELP planner_index_queue_depth Sqlite index writer backlog.\n")
		fmt.Fprintf(rw, "# TYPE planner_index_queue_depth gauge\n")
		fmt.Fprintf(rw, "planner_index_queue_depth %d\n", st.QueueDepth)
		fmt.Fprintf(rw, "planner_index_dropped_total{kind=%q} %d\n", "tick", st.DropTickTotal)
		fmt.Fprintf(rw, "planner_index_dropped_total{kind=%q} %d\n", "event", st.DropEventTotal)
		fmt.Fprintf(rw, "planner_index_dropped_total{kind=%q} %d\n", "snapshot", st.DropSnapshotTotal)
	}

	for _, name := range rt.world.Rooms() {
		built, pending := rt.world.Counts(name)
		var b, p int
		for _, n := range built {
			b += n
		}
		for _, n := range pending {
			p += n
		}
		fmt.Fprintf(rw, "planner_room_level{room=%q} %d\n", name, rt.world.ControllerLevel(name))
		fmt.Fprintf(rw, "planner_room_structures{room=%q,state=%q} %d\n", name, "built", b)
		fmt.Fprintf(rw, "planner_room_structures{room=%q,state=%q} %d\n", name, "pending", p)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
