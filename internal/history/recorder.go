package history

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"dark-forest/internal/host"
	"dark-forest/internal/sim"
)

const writeTimeout = 2 * time.Second

// Recorder samples host step reports into a Store, at most once every
// SampleEvery steps per run. Reports are matched to runs by the host's run
// generation, so a late batch from a previous run is never recorded under the
// current one.
type Recorder struct {
	store       *Store
	sampleEvery uint64

	beginMu sync.Mutex // serializes BeginRun

	mu       sync.Mutex
	run      uint64
	runID    uuid.UUID
	lastStep uint64
	sampled  bool
}

// NewRecorder creates a recorder. sampleEvery below 1 records every batch.
func NewRecorder(store *Store, sampleEvery int) *Recorder {
	if sampleEvery < 1 {
		sampleEvery = 1
	}
	return &Recorder{store: store, sampleEvery: uint64(sampleEvery)}
}

// BeginRun opens a new archive run for host run generation run. A run at or
// below the current one (a restart, or a notification delivered late) is
// ignored. Samples observed before the first BeginRun are discarded.
func (r *Recorder) BeginRun(run uint64, seed uint32, params sim.Params) {
	r.beginMu.Lock()
	defer r.beginMu.Unlock()

	r.mu.Lock()
	stale := r.runID != uuid.Nil && run <= r.run
	r.mu.Unlock()
	if stale {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	id, err := r.store.StartRun(ctx, seed, params)
	if err != nil {
		log.Printf("⚠️ History: failed to start run: %v", err)
		return
	}

	r.mu.Lock()
	r.run = run
	r.runID = id
	r.lastStep = 0
	r.sampled = false
	r.mu.Unlock()

	log.Printf("📼 History: run %s (seed %d)", id, seed)
}

// Observe records the batch snapshot when enough steps have passed
func (r *Recorder) Observe(rep host.StepReport) {
	snap := rep.Snapshot

	r.mu.Lock()
	if r.runID == uuid.Nil || rep.Run != r.run || (r.sampled && snap.Step < r.lastStep+r.sampleEvery) {
		r.mu.Unlock()
		return
	}
	runID := r.runID
	r.lastStep = snap.Step
	r.sampled = true
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.store.Record(ctx, runID, snap); err != nil {
		log.Printf("⚠️ History: %v", err)
	}
}

// RunID returns the current run, or uuid.Nil before the first BeginRun
func (r *Recorder) RunID() uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runID
}
