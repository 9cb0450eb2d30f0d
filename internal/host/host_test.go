package host

import (
	"errors"
	"testing"
	"time"

	"dark-forest/internal/sim"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Params.MaxStars = 500
	cfg.Params.MaxCivs = 40
	cfg.Params.CivSpawnProb = 0.5
	cfg.Seed = 42
	return cfg
}

func mustHost(t *testing.T, cfg Config) *Host {
	t.Helper()
	h, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return h
}

// TestNewValidation verifies bad configs are rejected
func TestNewValidation(t *testing.T) {
	cfg := testConfig()
	cfg.TickRate = 0
	if _, err := New(cfg); err == nil {
		t.Error("Expected error for zero tick rate")
	}

	cfg = testConfig()
	cfg.StepsPerSecond = -1
	if _, err := New(cfg); err == nil {
		t.Error("Expected error for negative steps per second")
	}

	cfg = testConfig()
	cfg.Params.PKillBase = 2
	_, err := New(cfg)
	if !errors.Is(err, sim.ErrInvalidParams) {
		t.Errorf("Expected ErrInvalidParams, got %v", err)
	}
}

// TestAdvanceClock verifies the fractional step budget
func TestAdvanceClock(t *testing.T) {
	h := mustHost(t, testConfig())
	if got := h.StepsPerSecond(); got != 4 {
		t.Fatalf("Expected 4 steps/s from SurveyTickHz, got %v", got)
	}

	total := 0
	pattern := []int{0, 1, 0, 1, 0, 1, 0, 1}
	for i, want := range pattern {
		got := h.advanceClock(0.125)
		if got != want {
			t.Errorf("Tick %d: expected %d steps, got %d", i, want, got)
		}
		total += got
	}
	if snap := h.Snapshot(); snap.Step != uint64(total) {
		t.Errorf("Expected step %d, got %d", total, snap.Step)
	}
}

// TestAdvanceClockCustomRate verifies an explicit step rate overrides the default
func TestAdvanceClockCustomRate(t *testing.T) {
	cfg := testConfig()
	cfg.StepsPerSecond = 60
	h := mustHost(t, cfg)

	if got := h.advanceClock(0.5); got != 30 {
		t.Errorf("Expected 30 steps, got %d", got)
	}
}

// TestAdvanceClockCapsBacklog verifies a stall does not trigger a burst
func TestAdvanceClockCapsBacklog(t *testing.T) {
	cfg := testConfig()
	cfg.MaxStepsPerTick = 3
	h := mustHost(t, cfg)

	if got := h.advanceClock(10); got != 3 {
		t.Errorf("Expected capped 3 steps, got %d", got)
	}
	if got := h.advanceClock(0.125); got != 0 {
		t.Errorf("Expected backlog dropped, got %d steps", got)
	}
}

// TestPausedSkipsSteps verifies the loop honors Paused but Advance does not
func TestPausedSkipsSteps(t *testing.T) {
	h := mustHost(t, testConfig())
	c := h.Controls()
	c.Paused = true
	h.SetControls(c)

	if got := h.advanceClock(5); got != 0 {
		t.Errorf("Expected no steps while paused, got %d", got)
	}
	if snap := h.Advance(3); snap.Step != 3 {
		t.Errorf("Expected explicit advance to step 3, got %d", snap.Step)
	}
}

// TestResetReplays verifies a reset host replays the same run
func TestResetReplays(t *testing.T) {
	h := mustHost(t, testConfig())
	first := h.Advance(40)

	var seeds []uint32
	var runs []uint64
	var reported uint64
	h.SetCallbacks(Callbacks{
		OnRun: func(run uint64, seed uint32, p sim.Params) {
			runs = append(runs, run)
			seeds = append(seeds, seed)
		},
		OnStep: func(r StepReport) { reported = r.Run },
	})

	if snap := h.Reset(); snap.Step != 0 || snap.TotalCivs != 0 {
		t.Errorf("Expected empty world after reset, got %+v", snap)
	}
	if again := h.Advance(40); again != first {
		t.Errorf("Replay diverged: %+v vs %+v", again, first)
	}
	if len(seeds) != 1 || seeds[0] != 42 {
		t.Errorf("Expected one OnRun with seed 42, got %v", seeds)
	}
	if len(runs) != 1 || runs[0] != 2 || h.Run() != 2 {
		t.Errorf("Expected reset to begin run 2, got %v (host %d)", runs, h.Run())
	}
	if reported != 2 {
		t.Errorf("Expected step report stamped with run 2, got %d", reported)
	}
}

// TestStepReport verifies OnStep receives batch deltas
func TestStepReport(t *testing.T) {
	cfg := testConfig()
	cfg.Params.CivSpawnProb = 1
	h := mustHost(t, cfg)

	var reports []StepReport
	kills := 0
	h.SetCallbacks(Callbacks{
		OnStep: func(r StepReport) { reports = append(reports, r) },
		OnKill: func(step uint64, killer, victim int) { kills++ },
	})

	h.Advance(30)
	h.Advance(30)

	if len(reports) != 2 {
		t.Fatalf("Expected 2 reports, got %d", len(reports))
	}
	var sumKills uint64
	for _, r := range reports {
		if r.Steps != 30 {
			t.Errorf("Expected 30 steps in report, got %d", r.Steps)
		}
		sumKills += r.Kills
	}
	last := reports[1].Snapshot
	if last.Step != 60 {
		t.Errorf("Expected step 60, got %d", last.Step)
	}
	if sumKills != last.TotalKills || uint64(kills) != last.TotalKills {
		t.Errorf("Kill deltas %d / hooks %d disagree with total %d", sumKills, kills, last.TotalKills)
	}
}

// TestFrameLimits verifies frames are capped and list living civs first
func TestFrameLimits(t *testing.T) {
	cfg := testConfig()
	cfg.Params.CivSpawnProb = 0
	cfg.Params.PKillBase = 0
	cfg.Limits = Limits{MaxFrameCivs: 2, MaxFrameStars: 10}
	h := mustHost(t, cfg)

	for i := 0; i < 5; i++ {
		if idx := h.SpawnCiv(); idx != i {
			t.Fatalf("Expected civ index %d, got %d", i, idx)
		}
	}
	h.View(func(e *sim.Engine) { e.CivAlive[0] = false })
	h.Advance(1)

	h.Frame(func(f *Frame) {
		if len(f.Civs) != 2 {
			t.Fatalf("Expected 2 civs in frame, got %d", len(f.Civs))
		}
		if f.Civs[0].Index != 1 || !f.Civs[0].Alive {
			t.Errorf("Expected living civ 1 first, got %+v", f.Civs[0])
		}
		if len(f.Stars) != 10 {
			t.Errorf("Expected 10 stars in frame, got %d", len(f.Stars))
		}
		if f.Snapshot.Step != 1 || f.Snapshot.TotalCivs != 5 {
			t.Errorf("Unexpected frame snapshot %+v", f.Snapshot)
		}
		if f.Seed != 42 {
			t.Errorf("Expected seed 42, got %d", f.Seed)
		}
	})
}

// TestFrameSequence verifies each publish advances the sequence
func TestFrameSequence(t *testing.T) {
	h := mustHost(t, testConfig())

	var prev uint64
	h.Frame(func(f *Frame) { prev = f.Sequence })
	for i := 0; i < 5; i++ {
		h.Advance(1)
		var seq uint64
		var clone Frame
		h.Frame(func(f *Frame) {
			seq = f.Sequence
			clone = f.Clone()
		})
		if seq <= prev {
			t.Fatalf("Sequence did not advance: %d -> %d", prev, seq)
		}
		if clone.Snapshot.Step != uint64(i+1) {
			t.Errorf("Expected cloned step %d, got %d", i+1, clone.Snapshot.Step)
		}
		prev = seq
	}
}

// TestSpawnCommands verifies manual spawns and saturation
func TestSpawnCommands(t *testing.T) {
	cfg := testConfig()
	cfg.Params.MaxCivs = 2
	cfg.Params.MaxStars = 20
	cfg.Params.StarDensityPerVol = 0
	h := mustHost(t, cfg)

	h.SpawnCiv()
	h.SpawnCiv()
	if idx := h.SpawnCiv(); idx != -1 {
		t.Errorf("Expected -1 at capacity, got %d", idx)
	}
	if added := h.SpawnStars(15); added != 15 {
		t.Errorf("Expected 15 stars, got %d", added)
	}
	if added := h.SpawnStars(15); added != 5 {
		t.Errorf("Expected 5 stars before capacity, got %d", added)
	}
}

// TestApplyParams verifies engine replacement and error handling
func TestApplyParams(t *testing.T) {
	h := mustHost(t, testConfig())
	h.Advance(10)
	h.SetControls(sim.Controls{Violence: false, Expansion: true})

	bad := sim.DefaultParams()
	bad.SurveyTickHz = 0
	if err := h.ApplyParams(bad, 7); !errors.Is(err, sim.ErrInvalidParams) {
		t.Errorf("Expected ErrInvalidParams, got %v", err)
	}
	if h.Snapshot().Step != 10 || h.Seed() != 42 || h.Run() != 1 {
		t.Error("Failed apply should keep the running engine")
	}

	good := sim.DefaultParams()
	good.MaxStars = 100
	good.SurveyTickHz = 8
	if err := h.ApplyParams(good, 7); err != nil {
		t.Fatalf("ApplyParams failed: %v", err)
	}
	if h.Seed() != 7 || h.Snapshot().Step != 0 || h.Run() != 2 {
		t.Error("Expected fresh engine with seed 7 in run 2")
	}
	if h.Params().MaxStars != 100 {
		t.Errorf("Expected maxStars 100, got %d", h.Params().MaxStars)
	}
	if h.Controls().Violence {
		t.Error("Expected controls to carry over")
	}
	if h.StepsPerSecond() != 8 {
		t.Errorf("Expected step rate to follow new SurveyTickHz, got %v", h.StepsPerSecond())
	}
}

// TestHostStartStop verifies the loop runs and stops cleanly
func TestHostStartStop(t *testing.T) {
	cfg := testConfig()
	cfg.TickRate = 100
	cfg.StepsPerSecond = 200
	h := mustHost(t, cfg)

	if err := h.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.Sleep(150 * time.Millisecond)
	h.Stop()

	if h.Snapshot().Step == 0 {
		t.Error("Expected the loop to advance the engine")
	}

	// Should not panic on double stop
	h.Stop()
}

// TestHostRestart verifies a stopped host can be started again and keeps stepping
func TestHostRestart(t *testing.T) {
	cfg := testConfig()
	cfg.TickRate = 100
	cfg.StepsPerSecond = 200
	h := mustHost(t, cfg)

	var starts []uint64
	h.SetCallbacks(Callbacks{OnRun: func(run uint64, seed uint32, p sim.Params) { starts = append(starts, run) }})

	if err := h.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	h.Stop()
	stopped := h.Snapshot().Step

	if err := h.Start(); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for h.Snapshot().Step <= stopped && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	h.Stop()

	if got := h.Snapshot().Step; got <= stopped {
		t.Errorf("Expected steps after restart, stuck at %d", got)
	}
	if len(starts) != 2 || starts[0] != 1 || starts[1] != 1 {
		t.Errorf("Expected OnRun for run 1 on each start, got %v", starts)
	}
	h.Stop()
}

// TestSpawnCivWith verifies the callback sees the new slot
func TestSpawnCivWith(t *testing.T) {
	h := mustHost(t, testConfig())

	seen := -1
	var alive bool
	idx := h.SpawnCivWith(func(e *sim.Engine, i int) {
		seen = i
		alive = e.CivAlive[i] && e.CivCount == i+1
	})
	if idx != 0 || seen != 0 || !alive {
		t.Errorf("Expected callback on live slot 0, got idx=%d seen=%d alive=%v", idx, seen, alive)
	}
}

// BenchmarkAdvance measures a host step including frame publication
func BenchmarkAdvance(b *testing.B) {
	cfg := DefaultConfig()
	cfg.Params.MaxCivs = 300
	cfg.Params.CivSpawnProb = 1
	h, err := New(cfg)
	if err != nil {
		b.Fatal(err)
	}
	h.Advance(200)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h.Advance(1)
	}
}
