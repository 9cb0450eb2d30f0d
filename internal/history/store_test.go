package history

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"dark-forest/internal/host"
	"dark-forest/internal/sim"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreRunsAndSamples(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	params := sim.DefaultParams()
	params.MaxCivs = 123
	runID, err := s.StartRun(ctx, 42, params)
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}

	for _, step := range []uint64{30, 10, 20} {
		snap := sim.Snapshot{Step: step, Radius: 1 + float64(step)/100, Alive: int(step / 10), RevealsS: step, TotalKills: 1}
		if err := s.Record(ctx, runID, snap); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	runs, err := s.Runs(ctx, 10)
	if err != nil {
		t.Fatalf("Runs failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("Expected 1 run, got %d", len(runs))
	}
	if runs[0].ID != runID || runs[0].Seed != 42 {
		t.Errorf("Unexpected run %+v", runs[0])
	}
	if runs[0].Samples != 3 {
		t.Errorf("Expected 3 samples counted, got %d", runs[0].Samples)
	}
	if runs[0].Params.MaxCivs != 123 {
		t.Errorf("Expected params to round-trip, got maxCivs %d", runs[0].Params.MaxCivs)
	}

	samples, err := s.Samples(ctx, runID, 2)
	if err != nil {
		t.Fatalf("Samples failed: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("Expected 2 samples with limit, got %d", len(samples))
	}
	if samples[0].Step != 10 || samples[1].Step != 20 {
		t.Errorf("Expected step order 10,20, got %d,%d", samples[0].Step, samples[1].Step)
	}
	if samples[0].Reveals != 10 || samples[0].Alive != 1 {
		t.Errorf("Unexpected sample %+v", samples[0])
	}
}

func TestStoreUnknownRun(t *testing.T) {
	s := openTestStore(t)
	samples, err := s.Samples(context.Background(), uuid.New(), 10)
	if err != nil {
		t.Fatalf("Samples failed: %v", err)
	}
	if len(samples) != 0 {
		t.Errorf("Expected no samples, got %d", len(samples))
	}
}

func TestRecorderSampling(t *testing.T) {
	s := openTestStore(t)
	rec := NewRecorder(s, 10)

	// Before BeginRun nothing is recorded
	rec.Observe(host.StepReport{Snapshot: sim.Snapshot{Step: 1}, Run: 1})

	rec.BeginRun(1, 7, sim.DefaultParams())
	runID := rec.RunID()
	if runID == uuid.Nil {
		t.Fatal("Expected a run id after BeginRun")
	}

	for step := uint64(1); step <= 35; step++ {
		rec.Observe(host.StepReport{Snapshot: sim.Snapshot{Step: step}, Steps: 1, Run: 1})
	}

	samples, err := s.Samples(context.Background(), runID, 100)
	if err != nil {
		t.Fatalf("Samples failed: %v", err)
	}
	var steps []uint64
	for _, smp := range samples {
		steps = append(steps, smp.Step)
	}
	want := []uint64{1, 11, 21, 31}
	if len(steps) != len(want) {
		t.Fatalf("Expected steps %v, got %v", want, steps)
	}
	for i := range want {
		if steps[i] != want[i] {
			t.Errorf("Expected steps %v, got %v", want, steps)
			break
		}
	}

	// A new run restarts sampling from its first batch
	rec.BeginRun(2, 7, sim.DefaultParams())
	rec.Observe(host.StepReport{Snapshot: sim.Snapshot{Step: 1}, Run: 2})
	runs, err := s.Runs(context.Background(), 10)
	if err != nil {
		t.Fatalf("Runs failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != rec.RunID() || runs[0].Samples != 1 {
		t.Errorf("Expected newest run first with 1 sample, got %+v", runs[0])
	}
}

// TestRecorderIgnoresOtherRuns verifies late reports and late run starts
// from an earlier generation leave the current run alone
func TestRecorderIgnoresOtherRuns(t *testing.T) {
	s := openTestStore(t)
	rec := NewRecorder(s, 10)

	rec.BeginRun(1, 7, sim.DefaultParams())
	rec.Observe(host.StepReport{Snapshot: sim.Snapshot{Step: 1}, Run: 1})

	rec.BeginRun(2, 7, sim.DefaultParams())
	current := rec.RunID()

	// A batch from run 1 arriving after the switch must not count toward run 2
	rec.Observe(host.StepReport{Snapshot: sim.Snapshot{Step: 500}, Run: 1})
	rec.Observe(host.StepReport{Snapshot: sim.Snapshot{Step: 1}, Run: 2})
	rec.Observe(host.StepReport{Snapshot: sim.Snapshot{Step: 11}, Run: 2})

	// Restarts and out-of-order notifications do not open new runs
	rec.BeginRun(2, 7, sim.DefaultParams())
	rec.BeginRun(1, 7, sim.DefaultParams())
	if rec.RunID() != current {
		t.Fatal("Expected the current run to survive stale BeginRun calls")
	}

	samples, err := s.Samples(context.Background(), current, 100)
	if err != nil {
		t.Fatalf("Samples failed: %v", err)
	}
	if len(samples) != 2 || samples[0].Step != 1 || samples[1].Step != 11 {
		t.Errorf("Expected samples at steps 1 and 11, got %+v", samples)
	}

	runs, err := s.Runs(context.Background(), 10)
	if err != nil {
		t.Fatalf("Runs failed: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("Expected 2 runs, got %d", len(runs))
	}
}
