// Package sim implements the Dark Forest survey engine: an expanding spherical
// volume that fills with stars, spawns civilizations, and resolves pairwise
// detection and elimination from a single seeded random stream.
//
// Entities live in flat parallel arrays (struct-of-arrays). Indices are
// stable for the lifetime of a run: dead civilizations are tombstoned through
// CivAlive and never compacted.
//
// An Engine is not safe for concurrent use. Callers that read while another
// goroutine steps must synchronize externally.
package sim

import (
	"fmt"
	"math"
)

// Strategy is a civilization archetype drawn once at spawn time
type Strategy uint8

const (
	StrategySilent Strategy = iota
	StrategyBroadcast
	StrategyCautious
	StrategyPreemptive
)

// String returns the archetype name
func (s Strategy) String() string {
	switch s {
	case StrategySilent:
		return "silent"
	case StrategyBroadcast:
		return "broadcast"
	case StrategyCautious:
		return "cautious"
	case StrategyPreemptive:
		return "preemptive"
	default:
		return "unknown"
	}
}

// Controls are host switches, each gating one named part of Step.
type Controls struct {
	// Paused is honored by the host loop; Step itself never reads it.
	Paused bool `json:"paused"`
	// Violence gates the kill trial that follows a successful detection.
	Violence bool `json:"violence"`
	// Expansion gates radius growth.
	Expansion bool `json:"expansion"`
}

// DefaultControls returns running, violent, expanding
func DefaultControls() Controls {
	return Controls{Violence: true, Expansion: true}
}

// Engine owns all world state for one run
type Engine struct {
	params Params
	seed   uint32
	rng    *Rand

	// Controls may be changed between steps
	Controls Controls

	// OnReveal is called synchronously after each successful detection
	OnReveal func(step uint64, observer, target int)
	// OnKill is called synchronously after each successful kill trial
	OnKill func(step uint64, killer, victim int)

	StepN  uint64
	Time   float64
	Radius float64

	// Stars: StarPos is row-major xyz, only the first StarCount entries are valid
	StarPos   []float32
	StarLum   []float32
	StarCount int

	// Civilizations: only the first CivCount slots are valid
	CivPos      []float32
	CivStrat    []Strategy
	CivAlive    []bool
	CivTech     []float32
	CivRevealed []bool
	CivCount    int

	RevealsB      uint64
	RevealsS      uint64
	RevealsR      uint64
	KillsThisStep uint64
	TotalKills    uint64
}

// New validates params, allocates fixed-capacity buffers and resets the world
func New(params Params, seed uint32) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("sim.New: %w", err)
	}

	e := &Engine{
		params:      params,
		seed:        seed,
		rng:         NewRand(seed),
		Controls:    DefaultControls(),
		StarPos:     make([]float32, params.MaxStars*3),
		StarLum:     make([]float32, params.MaxStars),
		CivPos:      make([]float32, params.MaxCivs*3),
		CivStrat:    make([]Strategy, params.MaxCivs),
		CivAlive:    make([]bool, params.MaxCivs),
		CivTech:     make([]float32, params.MaxCivs),
		CivRevealed: make([]bool, params.MaxCivs),
	}
	e.Reset()
	return e, nil
}

// Params returns the run's parameters
func (e *Engine) Params() Params {
	return e.params
}

// Seed returns the construction seed
func (e *Engine) Seed() uint32 {
	return e.seed
}

// Reset returns the world to its initial empty state and re-seeds the random
// stream with the construction seed, so the run after a reset replays a
// freshly constructed engine exactly. Buffers are reused; contents past the
// zeroed counts are stale.
func (e *Engine) Reset() {
	e.rng.Seed(e.seed)
	e.StepN = 0
	e.Time = 0
	e.Radius = e.params.RadiusStart
	e.StarCount = 0
	e.CivCount = 0
	e.RevealsB, e.RevealsS, e.RevealsR = 0, 0, 0
	e.KillsThisStep = 0
	e.TotalKills = 0
}

// Step advances the world by one tick of 1/SurveyTickHz simulated seconds.
// Growth and spawning always precede conflict resolution.
func (e *Engine) Step() {
	p := &e.params
	dt := 1 / p.SurveyTickHz
	e.KillsThisStep = 0

	if e.Controls.Expansion {
		e.Radius += p.RadiusGrowthPerSec * dt
	}

	desired := e.desiredStars()
	for e.StarCount < desired {
		e.spawnStar()
	}

	if e.rng.Float64() < p.CivSpawnProb {
		e.spawnCiv()
	}

	e.resolveConflicts()

	for i := 0; i < e.CivCount; i++ {
		if e.CivAlive[i] {
			e.CivTech[i] += float32(dt)
		}
	}

	e.StepN++
	e.Time += dt
}

// StepMany advances n ticks
func (e *Engine) StepMany(n int) {
	for i := 0; i < n; i++ {
		e.Step()
	}
}

// SpawnRandomCiv places one civilization outside the per-step probability
// gate. Returns its index, or -1 when the civ buffer is saturated.
func (e *Engine) SpawnRandomCiv() int {
	return e.spawnCiv()
}

// SpawnRandomStars places up to n stars inside the current sphere
func (e *Engine) SpawnRandomStars(n int) {
	for i := 0; i < n; i++ {
		if !e.spawnStar() {
			return
		}
	}
}

// Volume returns the current survey sphere volume
func (e *Engine) Volume() float64 {
	return 4.0 / 3.0 * math.Pi * e.Radius * e.Radius * e.Radius
}

func (e *Engine) desiredStars() int {
	want := math.Floor(e.Volume() * e.params.StarDensityPerVol)
	if want >= float64(e.params.MaxStars) {
		return e.params.MaxStars
	}
	return int(want)
}

// samplePoint draws a point uniformly inside the current sphere: cube-root
// radius for volumetric uniformity, inverse-cosine polar angle, uniform azimuth.
func (e *Engine) samplePoint() (x, y, z float64) {
	r := e.Radius * math.Cbrt(e.rng.Float64())
	theta := math.Acos(1 - 2*e.rng.Float64())
	phi := 2 * math.Pi * e.rng.Float64()
	sinT := math.Sin(theta)
	return r * sinT * math.Cos(phi), r * sinT * math.Sin(phi), r * math.Cos(theta)
}

func (e *Engine) spawnStar() bool {
	if e.StarCount >= e.params.MaxStars {
		return false
	}
	x, y, z := e.samplePoint()
	i := e.StarCount * 3
	e.StarPos[i] = float32(x)
	e.StarPos[i+1] = float32(y)
	e.StarPos[i+2] = float32(z)
	e.StarLum[e.StarCount] = float32(0.7 + 0.3*e.rng.Float64())
	e.StarCount++
	return true
}

func (e *Engine) spawnCiv() int {
	if e.CivCount >= e.params.MaxCivs {
		return -1
	}
	idx := e.CivCount
	x, y, z := e.samplePoint()
	i := idx * 3
	e.CivPos[i] = float32(x)
	e.CivPos[i+1] = float32(y)
	e.CivPos[i+2] = float32(z)
	e.CivStrat[idx] = e.drawStrategy()
	e.CivAlive[idx] = true
	e.CivTech[idx] = 0
	e.CivRevealed[idx] = false
	e.CivCount++
	return idx
}

// drawStrategy partitions [0,1) by the cumulative mix. Comparisons are strict
// so a variate equal to a boundary falls into the later bucket.
func (e *Engine) drawStrategy() Strategy {
	m := e.params.Mix
	s := e.rng.Float64()
	switch {
	case s < m.Silent:
		return StrategySilent
	case s < m.Silent+m.Broadcast:
		return StrategyBroadcast
	case s < m.Silent+m.Broadcast+m.Cautious:
		return StrategyCautious
	default:
		return StrategyPreemptive
	}
}

// resolveConflicts runs one detection trial per ordered pair of living
// civilizations, in index order.
func (e *Engine) resolveConflicts() {
	n := e.CivCount
	for i := 0; i < n; i++ {
		if !e.CivAlive[i] {
			continue
		}
		for j := 0; j < n; j++ {
			if i == j || !e.CivAlive[j] {
				continue
			}
			if !e.detect(i, j) {
				continue
			}
			e.RevealsS++
			e.CivRevealed[j] = true
			if e.OnReveal != nil {
				e.OnReveal(e.StepN, i, j)
			}
			if e.Controls.Violence {
				e.kill(i, j)
			}
		}
	}
}

// DetectProbability is the exponential detection curve, bounded in
// [PDetectBaseMin, PDetectBaseMax]
func (p Params) DetectProbability(rng float64) float64 {
	return p.PDetectBaseMin + (p.PDetectBaseMax-p.PDetectBaseMin)*math.Exp(-rng*p.RDetectBase)
}

// detect perturbs the a→b displacement with uniform noise of scale
// NavScaleRad on each axis and draws against the detection curve.
func (e *Engine) detect(a, b int) bool {
	ai, bi := a*3, b*3
	nav := e.params.NavScaleRad
	dx := float64(e.CivPos[ai]-e.CivPos[bi]) + e.rng.Symmetric(nav)
	dy := float64(e.CivPos[ai+1]-e.CivPos[bi+1]) + e.rng.Symmetric(nav)
	dz := float64(e.CivPos[ai+2]-e.CivPos[bi+2]) + e.rng.Symmetric(nav)
	rng := math.Sqrt(dx*dx + dy*dy + dz*dz)
	return e.rng.Float64() < e.params.DetectProbability(rng)
}

func (e *Engine) kill(killer, victim int) {
	if !e.CivAlive[victim] {
		return
	}
	if e.rng.Float64() < e.params.PKillBase {
		e.CivAlive[victim] = false
		e.KillsThisStep++
		e.TotalKills++
		if e.OnKill != nil {
			e.OnKill(e.StepN, killer, victim)
		}
	}
}

// AliveCount scans the alive flags
func (e *Engine) AliveCount() int {
	alive := 0
	for i := 0; i < e.CivCount; i++ {
		if e.CivAlive[i] {
			alive++
		}
	}
	return alive
}

// CivPosition returns the xyz of civilization i
func (e *Engine) CivPosition(i int) (x, y, z float32) {
	return e.CivPos[i*3], e.CivPos[i*3+1], e.CivPos[i*3+2]
}

// StarPosition returns the xyz of star i
func (e *Engine) StarPosition(i int) (x, y, z float32) {
	return e.StarPos[i*3], e.StarPos[i*3+1], e.StarPos[i*3+2]
}
