package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/mrskaggs/cline-ai-sub002/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	roomName := fs.String("room", "", "room filter (events)")
	kind := fs.String("kind", "", "event kind filter (events)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "events"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "planner.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fail(1, "open %s: %v", path, err)
	}
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		fail(1, "open: %v", err)
	}
	defer idx.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch q {
	case "events":
		rows, err := idx.Events(ctx, indexdb.EventFilter{Room: *roomName, Kind: *kind, Limit: *limit})
		if err != nil {
			fail(1, "query: %v", err)
		}
		table := tablewriter.NewTable(os.Stdout,
			tablewriter.WithHeader([]string{"Tick", "Room", "Kind", "Count", "Code", "Detail"}),
		)
		for _, r := range rows {
			table.Append([]string{strconv.FormatUint(r.Tick, 10), r.Room, r.Kind, strconv.Itoa(r.Count), r.Code, r.Detail})
		}
		table.Render()

	case "replans":
		rows, err := idx.Replans(ctx, *limit)
		if err != nil {
			fail(1, "query: %v", err)
		}
		table := tablewriter.NewTable(os.Stdout,
			tablewriter.WithHeader([]string{"Tick", "Room", "Reason", "Buildings"}),
		)
		for _, r := range rows {
			table.Append([]string{strconv.FormatUint(r.Tick, 10), r.Room, r.Reason, strconv.Itoa(r.Buildings)})
		}
		table.Render()

	case "snapshots":
		rows, err := idx.Snapshots(ctx, *limit)
		if err != nil {
			fail(1, "query: %v", err)
		}
		table := tablewriter.NewTable(os.Stdout,
			tablewriter.WithHeader([]string{"Tick", "Rooms", "Buildings", "Roads", "Seed", "Path"}),
		)
		for _, r := range rows {
			table.Append([]string{
				strconv.FormatUint(r.Tick, 10),
				strconv.Itoa(r.Rooms),
				strconv.Itoa(r.Buildings),
				strconv.Itoa(r.Roads),
				strconv.FormatInt(r.Seed, 10),
				r.Path,
			})
		}
		table.Render()

	default:
		fail(2, "unknown query %q (events|replans|snapshots)", q)
	}
}
