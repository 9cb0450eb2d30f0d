package host

import (
	"sync"
	"sync/atomic"
	"time"

	"dark-forest/internal/sim"
)

// Limits caps how much of the world is copied into each published frame
type Limits struct {
	MaxFrameCivs  int // Civilizations per frame, living ones first
	MaxFrameStars int // Stars per frame, lowest indices first
}

// DefaultLimits keeps a frame under ~200KB of JSON
var DefaultLimits = Limits{
	MaxFrameCivs:  4000,
	MaxFrameStars: 2000,
}

// CivFrame is an immutable copy of one civilization
type CivFrame struct {
	Index    int32        `json:"i"`
	X        float32      `json:"x"`
	Y        float32      `json:"y"`
	Z        float32      `json:"z"`
	Strat    sim.Strategy `json:"s"`
	Alive    bool         `json:"alive"`
	Revealed bool         `json:"revealed"`
	Tech     float32      `json:"tech"`
}

// StarFrame is an immutable copy of one star
type StarFrame struct {
	X   float32 `json:"x"`
	Y   float32 `json:"y"`
	Z   float32 `json:"z"`
	Lum float32 `json:"lum"`
}

// Frame is a complete, capped copy of engine state for viewers.
// Slices are preallocated by the pool and never grow beyond Limits.
type Frame struct {
	Sequence  uint64       `json:"sequence"` // Monotonic across the pool
	Timestamp time.Time    `json:"timestamp"`
	Seed      uint32       `json:"seed"`
	Controls  sim.Controls `json:"controls"`
	Snapshot  sim.Snapshot `json:"snapshot"`

	Civs  []CivFrame  `json:"civs"`
	Stars []StarFrame `json:"stars"`
}

// Clone returns a deep copy that outlives the pool slot
func (f *Frame) Clone() Frame {
	out := *f
	out.Civs = append([]CivFrame(nil), f.Civs...)
	out.Stars = append([]StarFrame(nil), f.Stars...)
	return out
}

// FramePool pre-allocates frames to avoid GC pressure.
// Triple buffering lets the producer fill one slot while readers hold another;
// each slot carries its own lock so a reader never sees a half-written frame.
type FramePool struct {
	frames   [3]Frame
	locks    [3]sync.RWMutex
	limits   Limits
	writeIdx uint32 // atomic - producer index
	readIdx  uint32 // atomic - consumer index
	sequence uint64 // atomic - monotonic sequence
	writing  uint32 // slot held by AcquireWrite
}

// NewFramePool creates a pool with pre-allocated slices
func NewFramePool(limits Limits) *FramePool {
	pool := &FramePool{limits: limits}
	for i := 0; i < 3; i++ {
		pool.frames[i] = Frame{
			Civs:  make([]CivFrame, 0, limits.MaxFrameCivs),
			Stars: make([]StarFrame, 0, limits.MaxFrameStars),
		}
	}
	return pool
}

// AcquireWrite locks the next write slot and resets it, keeping capacity.
// Producer only; must be followed by PublishWrite.
func (p *FramePool) AcquireWrite() *Frame {
	idx := atomic.AddUint32(&p.writeIdx, 1) % 3
	p.locks[idx].Lock()
	p.writing = idx

	f := &p.frames[idx]
	f.Civs = f.Civs[:0]
	f.Stars = f.Stars[:0]
	f.Sequence = atomic.AddUint64(&p.sequence, 1)
	f.Timestamp = time.Now()
	return f
}

// PublishWrite releases the write slot and makes it the latest frame
func (p *FramePool) PublishWrite() {
	idx := p.writing
	p.locks[idx].Unlock()
	atomic.StoreUint32(&p.readIdx, idx)
}

// Read calls fn with the latest published frame. fn must not retain it;
// use Clone to keep a copy.
func (p *FramePool) Read(fn func(f *Frame)) {
	idx := atomic.LoadUint32(&p.readIdx) % 3
	p.locks[idx].RLock()
	defer p.locks[idx].RUnlock()
	fn(&p.frames[idx])
}

// GetLimits returns the frame limits
func (p *FramePool) GetLimits() Limits {
	return p.limits
}

// fillFrame copies engine state into f. Living civilizations are copied
// before tombstones so a capped frame keeps the interesting ones.
func fillFrame(f *Frame, e *sim.Engine, limits Limits) {
	f.Seed = e.Seed()
	f.Controls = e.Controls
	f.Snapshot = e.Snapshot()

	for pass := 0; pass < 2; pass++ {
		wantAlive := pass == 0
		for i := 0; i < e.CivCount && len(f.Civs) < limits.MaxFrameCivs; i++ {
			if e.CivAlive[i] != wantAlive {
				continue
			}
			x, y, z := e.CivPosition(i)
			f.Civs = append(f.Civs, CivFrame{
				Index:    int32(i),
				X:        x,
				Y:        y,
				Z:        z,
				Strat:    e.CivStrat[i],
				Alive:    e.CivAlive[i],
				Revealed: e.CivRevealed[i],
				Tech:     e.CivTech[i],
			})
		}
	}

	n := e.StarCount
	if n > limits.MaxFrameStars {
		n = limits.MaxFrameStars
	}
	for i := 0; i < n; i++ {
		x, y, z := e.StarPosition(i)
		f.Stars = append(f.Stars, StarFrame{X: x, Y: y, Z: z, Lum: e.StarLum[i]})
	}
}
