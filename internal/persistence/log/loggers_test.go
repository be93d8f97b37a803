package log

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mrskaggs/cline-ai-sub002/internal/plan/room"
	"github.com/mrskaggs/cline-ai-sub002/internal/protocol"
)

func TestEventLogger_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := NewEventLogger(dir)
	var sink room.EventSink = l
	sink.Emit(room.Event{Tick: 1, Room: "W1N1", Kind: room.EventReplan, Detail: "level 0->1"})
	sink.Emit(room.Event{Tick: 2, Room: "W1N1", Kind: room.EventRoads, Count: 5})
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if l.Failed() != 0 {
		t.Fatalf("failed writes: %d", l.Failed())
	}

	var got []room.Event
	err := ReadJSONL(filepath.Join(dir, "events"), "events", func(line []byte) error {
		var ev room.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return err
		}
		got = append(got, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 || got[0].Kind != room.EventReplan || got[1].Count != 5 {
		t.Fatalf("events: %+v", got)
	}
}

func TestJSONLZstdWriter_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "ticks")
	now := time.Date(2024, 3, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	if err := w.Write(protocol.TickSummary{Type: protocol.TypeTickSummary, Tick: 1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if err := w.Write(protocol.TickSummary{Type: protocol.TypeTickSummary, Tick: 2}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	for _, name := range []string{"ticks-2024-03-01-10.jsonl.zst", "ticks-2024-03-01-11.jsonl.zst"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
	}
	var ticks []uint64
	err := ReadJSONL(dir, "ticks", func(line []byte) error {
		var s protocol.TickSummary
		if err := json.Unmarshal(line, &s); err != nil {
			return err
		}
		ticks = append(ticks, s.Tick)
		return nil
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(ticks) != 2 || ticks[0] != 1 || ticks[1] != 2 {
		t.Fatalf("ticks: got %v want [1 2]", ticks)
	}
}
