package traffic

import (
	"testing"

	"github.com/mrskaggs/cline-ai-sub002/internal/plan/model"
	"github.com/mrskaggs/cline-ai-sub002/internal/plan/worldapi/worldtest"
)

func TestRecordAndScore(t *testing.T) {
	a := NewAnalyzer(worldtest.New(), Config{DecayFactor: 0.5})
	d := NewData("W1N1")
	p := model.P("W1N1", 10, 10)
	for i := 0; i < 3; i++ {
		a.RecordSample(d, p, uint64(i))
	}
	a.RecordSample(d, model.P("W9N9", 10, 10), 3)
	if got := a.ScoreAt(d, p); got != 3 {
		t.Fatalf("score: got %v want 3", got)
	}
	if d.Samples != 3 {
		t.Fatalf("samples: got %d want 3 (foreign room ignored)", d.Samples)
	}
}

func TestSampleRoom_BoundedPerTick(t *testing.T) {
	w := worldtest.New()
	r := w.AddRoom("W1N1", 3)
	for x := 1; x <= 20; x++ {
		r.Samples = append(r.Samples, model.P("W1N1", x, 5))
	}
	a := NewAnalyzer(w, Config{SamplesPerTick: 5})
	d := NewData("W1N1")
	if n := a.SampleRoom(d, 1); n != 5 {
		t.Fatalf("sampled: got %d want 5", n)
	}
	if len(d.Cells) != 5 {
		t.Fatalf("distinct cells: got %d want 5", len(d.Cells))
	}
	if a.ScoreAt(d, model.P("W1N1", 1, 5)) != 1 || a.ScoreAt(d, model.P("W1N1", 5, 5)) != 1 {
		t.Fatalf("expected strided sampling starting at first position")
	}
}

func TestDecayAndPrune(t *testing.T) {
	a := NewAnalyzer(worldtest.New(), Config{DecayFactor: 0.5, PruneBelow: 0.3, PruneAfterTicks: 10})
	d := NewData("W1N1")
	busy := model.P("W1N1", 5, 5)
	quiet := model.P("W1N1", 6, 6)
	for i := 0; i < 8; i++ {
		a.RecordSample(d, busy, 0)
	}
	a.RecordSample(d, quiet, 0)

	a.Decay(d, 5)
	if got := a.ScoreAt(d, busy); got != 4 {
		t.Fatalf("busy after decay: got %v want 4", got)
	}
	a.Decay(d, 6) // quiet: 0.25, below threshold but seen recently
	if _, ok := d.Cells[quiet]; !ok {
		t.Fatalf("quiet cell pruned before PruneAfterTicks")
	}
	a.Decay(d, 20)
	if _, ok := d.Cells[quiet]; ok {
		t.Fatalf("quiet cell should be pruned")
	}
	if _, ok := d.Cells[busy]; !ok {
		t.Fatalf("busy cell must survive")
	}
}

func TestHighTrafficPositions_Ordered(t *testing.T) {
	a := NewAnalyzer(worldtest.New(), Config{})
	d := NewData("W1N1")
	add := func(x, y, n int) {
		for i := 0; i < n; i++ {
			a.RecordSample(d, model.P("W1N1", x, y), 1)
		}
	}
	add(3, 3, 2)
	add(4, 4, 7)
	add(1, 1, 7)
	add(9, 9, 1)
	got := a.HighTrafficPositions(d, 2)
	want := []model.Pos{model.P("W1N1", 1, 1), model.P("W1N1", 4, 4), model.P("W1N1", 3, 3)}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("at %d: got %s want %s", i, got[i], want[i])
		}
	}
}
