// Package host drives a sim.Engine in real time and serializes every access
// to it. Viewers read published frames; commands go through Host methods.
package host

import (
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"dark-forest/internal/sim"
)

// Config configures a Host
type Config struct {
	Params sim.Params
	Seed   uint32

	// TickRate is how many times per second the loop wakes up
	TickRate int
	// StepsPerSecond is the simulated step budget per real second.
	// Zero means Params.SurveyTickHz, so simulated time tracks wall time.
	StepsPerSecond float64
	// MaxStepsPerTick bounds catch-up work after a stall
	MaxStepsPerTick int

	Limits       Limits
	EventLogPath string
}

// DefaultConfig returns a host config for the stock params
func DefaultConfig() Config {
	return Config{
		Params:          sim.DefaultParams(),
		Seed:            1,
		TickRate:        30,
		MaxStepsPerTick: 64,
		Limits:          DefaultLimits,
	}
}

// StepReport summarizes one batch of steps
type StepReport struct {
	Snapshot sim.Snapshot
	Steps    int
	Elapsed  time.Duration
	Reveals  uint64 // Reveals during the batch
	Kills    uint64 // Kills during the batch
	// Run is the generation the batch belongs to; see Callbacks.OnRun
	Run uint64
}

// Callbacks are invoked by the host. OnStep and OnRun run outside the host
// lock, so a step report may arrive before the OnRun of its run; compare
// StepReport.Run with the run passed to OnRun. OnKill runs inside the lock
// and must not call back into the Host.
type Callbacks struct {
	OnStep func(r StepReport)
	OnKill func(step uint64, killer, victim int)
	// OnRun fires on Start and whenever Reset or ApplyParams begins a new
	// run. run increases by one per new run.
	OnRun func(run uint64, seed uint32, params sim.Params)
}

// Host owns one engine and the loop that advances it
type Host struct {
	mu     sync.Mutex
	engine *sim.Engine
	cfg    Config

	stepsPerSecond float64
	acc            float64
	run            uint64

	running  bool
	ticker   *time.Ticker
	stopChan chan struct{}

	frames    *FramePool
	eventLog  *EventLog
	callbacks Callbacks
}

// New builds the engine and publishes an initial frame
func New(cfg Config) (*Host, error) {
	if cfg.TickRate <= 0 {
		return nil, fmt.Errorf("host: tick rate must be positive, got %d", cfg.TickRate)
	}
	if cfg.StepsPerSecond < 0 || math.IsNaN(cfg.StepsPerSecond) {
		return nil, fmt.Errorf("host: steps per second must be >= 0, got %v", cfg.StepsPerSecond)
	}
	if cfg.MaxStepsPerTick <= 0 {
		cfg.MaxStepsPerTick = DefaultConfig().MaxStepsPerTick
	}

	engine, err := sim.New(cfg.Params, cfg.Seed)
	if err != nil {
		return nil, fmt.Errorf("host: %w", err)
	}

	h := &Host{
		cfg:      cfg,
		run:      1,
		frames:   NewFramePool(cfg.Limits),
		eventLog: NewEventLog(),
	}
	h.install(engine)
	h.publishLocked()
	return h, nil
}

// install swaps in an engine and wires its hooks. Caller holds mu or owns h.
func (h *Host) install(e *sim.Engine) {
	e.OnReveal = func(step uint64, observer, target int) {
		h.eventLog.EmitSimple(EventTypeReveal, step, RevealPayload{Observer: observer, Target: target})
	}
	e.OnKill = func(step uint64, killer, victim int) {
		h.eventLog.EmitSimple(EventTypeKill, step, KillPayload{
			Killer:         killer,
			Victim:         victim,
			KillerStrategy: e.CivStrat[killer].String(),
			VictimStrategy: e.CivStrat[victim].String(),
		})
		if h.callbacks.OnKill != nil {
			h.callbacks.OnKill(step, killer, victim)
		}
	}
	h.engine = e
	h.stepsPerSecond = h.cfg.StepsPerSecond
	if h.stepsPerSecond == 0 {
		h.stepsPerSecond = e.Params().SurveyTickHz
	}
	h.acc = 0
}

// SetCallbacks sets event callbacks. Call before Start.
func (h *Host) SetCallbacks(cb Callbacks) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.callbacks = cb
}

// Start begins the event log and the tick loop. A stopped host may be
// started again.
func (h *Host) Start() error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return nil
	}
	if err := h.eventLog.Start(h.cfg.EventLogPath); err != nil {
		h.mu.Unlock()
		return fmt.Errorf("host: start event log: %w", err)
	}
	h.running = true
	ticker := time.NewTicker(time.Second / time.Duration(h.cfg.TickRate))
	stop := make(chan struct{})
	h.ticker, h.stopChan = ticker, stop
	run, seed, params := h.run, h.engine.Seed(), h.engine.Params()
	onRun := h.callbacks.OnRun
	h.mu.Unlock()

	if onRun != nil {
		onRun(run, seed, params)
	}

	dt := 1.0 / float64(h.cfg.TickRate)
	go func() {
		for {
			select {
			case <-ticker.C:
				h.advanceClock(dt)
			case <-stop:
				return
			}
		}
	}()

	log.Printf("🌌 Survey host started at %d TPS (%.1f steps/s, seed %d)", h.cfg.TickRate, h.stepsPerSecond, seed)
	return nil
}

// Stop stops the loop and flushes the event log
func (h *Host) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.ticker.Stop()
	close(h.stopChan)
	h.mu.Unlock()

	h.eventLog.Stop()
	log.Println("🛑 Survey host stopped")
}

// advanceClock adds dt seconds of wall time to the step budget and runs the
// whole steps it buys. Returns the number of steps taken.
func (h *Host) advanceClock(dt float64) int {
	h.mu.Lock()
	if h.engine.Controls.Paused {
		h.acc = 0
		h.mu.Unlock()
		return 0
	}

	h.acc += dt
	steps := int(math.Floor(h.acc * h.stepsPerSecond))
	if steps > h.cfg.MaxStepsPerTick {
		// Drop the backlog rather than spiral after a stall
		steps = h.cfg.MaxStepsPerTick
		h.acc = 0
	} else {
		h.acc -= float64(steps) / h.stepsPerSecond
	}
	if steps == 0 {
		h.mu.Unlock()
		return 0
	}

	report := h.stepLocked(steps)
	onStep := h.callbacks.OnStep
	h.mu.Unlock()

	if onStep != nil {
		onStep(report)
	}
	return steps
}

// stepLocked runs n steps and publishes a frame. Caller holds mu.
func (h *Host) stepLocked(n int) StepReport {
	before := h.engine.Snapshot()
	start := time.Now()
	for i := 0; i < n; i++ {
		h.engine.Step()
	}
	elapsed := time.Since(start)
	h.publishLocked()

	after := h.engine.Snapshot()
	return StepReport{
		Snapshot: after,
		Steps:    n,
		Elapsed:  elapsed,
		Reveals:  after.RevealsS - before.RevealsS,
		Kills:    after.TotalKills - before.TotalKills,
		Run:      h.run,
	}
}

// publishLocked copies engine state into the next frame slot
func (h *Host) publishLocked() {
	f := h.frames.AcquireWrite()
	fillFrame(f, h.engine, h.frames.GetLimits())
	h.frames.PublishWrite()
}

// Advance runs n steps synchronously, ignoring Paused
func (h *Host) Advance(n int) sim.Snapshot {
	if n <= 0 {
		return h.Snapshot()
	}
	h.mu.Lock()
	report := h.stepLocked(n)
	onStep := h.callbacks.OnStep
	h.mu.Unlock()

	if onStep != nil {
		onStep(report)
	}
	return report.Snapshot
}

// Reset restarts the run from step 0 with the same seed
func (h *Host) Reset() sim.Snapshot {
	h.mu.Lock()
	h.engine.Reset()
	h.acc = 0
	h.run++
	h.eventLog.EmitSimple(EventTypeReset, 0, h.runPayloadLocked())
	h.publishLocked()
	snap := h.engine.Snapshot()
	run, seed, params := h.run, h.engine.Seed(), h.engine.Params()
	onRun := h.callbacks.OnRun
	h.mu.Unlock()

	if onRun != nil {
		onRun(run, seed, params)
	}
	log.Printf("🔄 World reset (seed %d)", seed)
	return snap
}

// ApplyParams replaces the engine with one built from p and seed. Controls
// carry over. On error the current engine keeps running.
func (h *Host) ApplyParams(p sim.Params, seed uint32) error {
	engine, err := sim.New(p, seed)
	if err != nil {
		return err
	}

	h.mu.Lock()
	engine.Controls = h.engine.Controls
	h.install(engine)
	h.run++
	h.eventLog.EmitSimple(EventTypeParams, 0, h.runPayloadLocked())
	h.publishLocked()
	run := h.run
	onRun := h.callbacks.OnRun
	h.mu.Unlock()

	if onRun != nil {
		onRun(run, seed, p)
	}
	log.Printf("⚙️  Params applied (seed %d, maxStars %d, maxCivs %d)", seed, p.MaxStars, p.MaxCivs)
	return nil
}

func (h *Host) runPayloadLocked() RunPayload {
	p := h.engine.Params()
	return RunPayload{Seed: h.engine.Seed(), MaxStars: p.MaxStars, MaxCivs: p.MaxCivs}
}

// SpawnCiv places one civilization now. Returns -1 when at capacity.
func (h *Host) SpawnCiv() int {
	return h.SpawnCivWith(nil)
}

// SpawnCivWith is SpawnCiv that also calls fn with the new slot under the
// same lock hold, so fn sees the civilization exactly as spawned. fn is not
// called when at capacity.
func (h *Host) SpawnCivWith(fn func(e *sim.Engine, idx int)) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	idx := h.engine.SpawnRandomCiv()
	if idx < 0 {
		return idx
	}
	h.eventLog.EmitSimple(EventTypeSpawn, h.engine.StepN, SpawnPayload{Kind: "civ", Index: idx, Count: 1})
	h.publishLocked()
	if fn != nil {
		fn(h.engine, idx)
	}
	return idx
}

// SpawnStars places up to n stars now and returns how many were added
func (h *Host) SpawnStars(n int) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	before := h.engine.StarCount
	h.engine.SpawnRandomStars(n)
	added := h.engine.StarCount - before
	if added > 0 {
		h.eventLog.EmitSimple(EventTypeSpawn, h.engine.StepN, SpawnPayload{Kind: "stars", Count: added})
		h.publishLocked()
	}
	return added
}

// SetControls replaces the engine controls
func (h *Host) SetControls(c sim.Controls) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.engine.Controls == c {
		return
	}
	h.engine.Controls = c
	if c.Paused {
		h.acc = 0
	}
	h.eventLog.EmitSimple(EventTypeControls, h.engine.StepN, c)
	h.publishLocked()
}

// Controls returns the current engine controls
func (h *Host) Controls() sim.Controls {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.engine.Controls
}

// Snapshot returns the current engine snapshot
func (h *Host) Snapshot() sim.Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.engine.Snapshot()
}

// Params returns the params of the running engine
func (h *Host) Params() sim.Params {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.engine.Params()
}

// Seed returns the seed of the running engine
func (h *Host) Seed() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.engine.Seed()
}

// View runs fn against the engine under the host lock. fn must not retain
// the engine or its slices.
func (h *Host) View(fn func(e *sim.Engine)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(h.engine)
}

// Frame calls fn with the latest published frame
func (h *Host) Frame(fn func(f *Frame)) {
	h.frames.Read(fn)
}

// Run returns the current run generation
func (h *Host) Run() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.run
}

// StepsPerSecond returns the simulated step budget per real second
func (h *Host) StepsPerSecond() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stepsPerSecond
}

// GetEventLogStats returns event log statistics for monitoring
func (h *Host) GetEventLogStats() map[string]interface{} {
	return h.eventLog.GetStats()
}
