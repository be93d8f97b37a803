package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	persistlog "github.com/mrskaggs/cline-ai-sub002/internal/persistence/log"
	"github.com/mrskaggs/cline-ai-sub002/internal/persistence/snapshot"
	"github.com/mrskaggs/cline-ai-sub002/internal/plan/model"
	"github.com/mrskaggs/cline-ai-sub002/internal/plan/room"
)

var (
	titleColor = color.New(color.FgCyan, color.Bold)
	okColor    = color.New(color.FgGreen)
	warnColor  = color.New(color.FgYellow)
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "plan":
			planCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "events":
			eventsCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		}
	}
	roomsCmd(os.Args[1:])
}

func fail(code int, format string, args ...any) {
	color.Red(format, args...)
	os.Exit(code)
}

// loadSnapshot reads path, or the newest snapshot under dataDir.
func loadSnapshot(dataDir, path string) (snapshot.SnapshotV1, string) {
	if strings.TrimSpace(path) == "" {
		p, _, err := snapshot.Latest(filepath.Join(dataDir, "snapshots"))
		if err != nil {
			fail(1, "latest snapshot: %v", err)
		}
		path = p
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fail(1, "read snapshot: %v", err)
	}
	return snap, path
}

func roomsCmd(args []string) {
	fs := flag.NewFlagSet("rooms", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	snapPath := fs.String("snapshot", "", "snapshot path (defaults to latest)")
	_ = fs.Parse(args)

	snap, path := loadSnapshot(*dataDir, *snapPath)
	titleColor.Printf("%s (tick %d, seed %d)\n", filepath.Base(path), snap.Header.Tick, snap.Header.Seed)
	renderRooms(os.Stdout, snap)
}

func renderRooms(w io.Writer, snap snapshot.SnapshotV1) {
	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"Room", "Level", "Status", "Priority", "Buildings", "Roads", "Traffic Samples", "Updated"}),
	)
	for _, name := range snap.Header.Rooms {
		rec := snap.Records[name]
		if rec == nil || rec.Plan == nil {
			continue
		}
		p := rec.Plan
		var placed, roadsPlaced int
		for _, b := range p.Buildings {
			if b.Placed {
				placed++
			}
		}
		for _, r := range p.Roads {
			if r.Placed {
				roadsPlaced++
			}
		}
		var samples uint64
		if rec.Traffic != nil {
			samples = rec.Traffic.Samples
		}
		table.Append([]string{
			name,
			strconv.Itoa(p.PlanLevel),
			statusText(p.Status),
			strconv.Itoa(p.Priority),
			fmt.Sprintf("%d/%d", placed, len(p.Buildings)),
			fmt.Sprintf("%d/%d", roadsPlaced, len(p.Roads)),
			strconv.FormatUint(samples, 10),
			strconv.FormatUint(p.LastUpdated, 10),
		})
	}
	table.Render()
}

func statusText(s model.Status) string {
	switch s {
	case model.StatusReady:
		return okColor.Sprint(s.String())
	case model.StatusBuilding:
		return warnColor.Sprint(s.String())
	}
	return s.String()
}

func planCmd(args []string) {
	fs := flag.NewFlagSet("plan", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	snapPath := fs.String("snapshot", "", "snapshot path (defaults to latest)")
	roomName := fs.String("room", "", "room name (required)")
	where := fs.String("where", "", `filter expression, e.g. 'Type == "extension" && !Placed'`)
	withRoads := fs.Bool("roads", false, "include road segments")
	asJSON := fs.Bool("json", false, "print matching entries as JSON")
	_ = fs.Parse(args)

	if strings.TrimSpace(*roomName) == "" {
		fail(2, "missing -room")
	}
	f, err := compileFilter(*where, EntryEnv{})
	if err != nil {
		fail(2, "%v", err)
	}
	snap, _ := loadSnapshot(*dataDir, *snapPath)
	rec := snap.Records[*roomName]
	if rec == nil || rec.Plan == nil {
		fail(1, "room %s not in snapshot", *roomName)
	}

	entries, err := selectEntries(rec.Plan, f, *withRoads)
	if err != nil {
		fail(1, "filter: %v", err)
	}
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(entries)
		return
	}
	titleColor.Printf("%s level %d %s: %d of %d entries\n", *roomName, rec.Plan.PlanLevel, statusText(rec.Plan.Status),
		len(entries), len(rec.Plan.Buildings)+roadCount(rec.Plan, *withRoads))
	renderEntries(os.Stdout, entries)
}

func roadCount(p *model.Plan, withRoads bool) int {
	if !withRoads {
		return 0
	}
	return len(p.Roads)
}

func selectEntries(p *model.Plan, f *filter, withRoads bool) ([]EntryEnv, error) {
	var out []EntryEnv
	for _, b := range p.Buildings {
		env := buildingEnv(b)
		ok, err := f.match(env)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, env)
		}
	}
	if !withRoads {
		return out, nil
	}
	for _, r := range p.Roads {
		env := roadEnv(r)
		ok, err := f.match(env)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, env)
		}
	}
	return out, nil
}

func renderEntries(w io.Writer, entries []EntryEnv) {
	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"Type", "Pos", "Priority", "Level", "State", "Path", "Traffic"}),
	)
	for _, e := range entries {
		state := "planned"
		switch {
		case e.Placed:
			state = okColor.Sprint("placed")
		case e.Requested:
			state = "requested"
		case e.EverPlaced:
			state = warnColor.Sprint("rebuild")
		}
		traffic := ""
		if e.Road {
			traffic = strconv.FormatFloat(e.Traffic, 'f', 1, 64)
		}
		table.Append([]string{
			e.Type,
			fmt.Sprintf("%d,%d", e.X, e.Y),
			strconv.Itoa(e.Priority),
			strconv.Itoa(e.Level),
			state,
			e.PathType,
			traffic,
		})
	}
	table.Render()
}

func eventsCmd(args []string) {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	where := fs.String("where", "", `filter expression, e.g. 'Kind == "rejected" && Room == "W1N1"'`)
	limit := fs.Int("limit", 50, "print at most the last N matching events")
	_ = fs.Parse(args)

	f, err := compileFilter(*where, EventEnv{})
	if err != nil {
		fail(2, "%v", err)
	}
	evs, err := readEvents(filepath.Join(*dataDir, "events"), f)
	if err != nil {
		fail(1, "read events: %v", err)
	}
	if *limit > 0 && len(evs) > *limit {
		evs = evs[len(evs)-*limit:]
	}
	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"Tick", "Room", "Kind", "Count", "Code", "Detail"}),
	)
	for _, ev := range evs {
		kind := ev.Kind
		if ev.Kind == room.EventError || ev.Kind == room.EventRejected {
			kind = color.RedString(ev.Kind)
		}
		table.Append([]string{strconv.FormatUint(ev.Tick, 10), ev.Room, kind, strconv.Itoa(ev.Count), ev.Code, ev.Detail})
	}
	table.Render()
}

func readEvents(dir string, f *filter) ([]room.Event, error) {
	var out []room.Event
	err := persistlog.ReadJSONL(dir, "events", func(line []byte) error {
		var ev room.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return err
		}
		ok, err := f.match(eventEnv(ev))
		if err != nil {
			return err
		}
		if ok {
			out = append(out, ev)
		}
		return nil
	})
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return out, err
}
