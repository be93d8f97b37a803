package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/mrskaggs/cline-ai-sub002/internal/protocol"
)

// stateCmd prints the live plan summaries of a running planner.
func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "planner base url")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/v1/plans"
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(u)
	if err != nil {
		fail(1, "request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		fail(1, "%s: %s", resp.Status, strings.TrimSpace(string(b)))
	}
	var plans []protocol.PlanSummary
	if err := json.NewDecoder(resp.Body).Decode(&plans); err != nil {
		fail(1, "decode: %v", err)
	}
	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"Room", "Level", "Status", "Placed", "Pending", "Roads", "Counts"}),
	)
	for _, p := range plans {
		var counts []string
		for _, k := range p.SortedCounts() {
			counts = append(counts, fmt.Sprintf("%s=%d", k, p.Counts[k]))
		}
		table.Append([]string{
			p.Room,
			strconv.Itoa(p.PlanLevel),
			p.Status,
			strconv.Itoa(p.Placed),
			strconv.Itoa(p.Pending),
			fmt.Sprintf("%d/%d", p.RoadsPlaced, p.RoadsTotal),
			strings.Join(counts, " "),
		})
	}
	table.Render()
}

func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "planner base url")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/snapshot"
	req, _ := http.NewRequest(http.MethodPost, u, nil)
	cl := &http.Client{Timeout: 10 * time.Second}
	resp, err := cl.Do(req)
	if err != nil {
		fail(1, "request: %v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}
