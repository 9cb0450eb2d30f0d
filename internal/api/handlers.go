package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"dark-forest/internal/host"
	"dark-forest/internal/minimap"
	"dark-forest/internal/sim"
)

const (
	defaultListLimit    = 100
	defaultHistoryLimit = 200
	defaultSpawnStars   = 100
	defaultDensestCells = 8
	maxDensestCells     = 64
)

// CivView is the API representation of one civilization
type CivView struct {
	Index    int       `json:"index"`
	Position []float32 `json:"position"`
	Strategy string    `json:"strategy"`
	Alive    bool      `json:"alive"`
	Revealed bool      `json:"revealed"`
	Tech     float32   `json:"tech"`
}

func civView(e *sim.Engine, i int) CivView {
	x, y, z := e.CivPosition(i)
	return CivView{
		Index:    i,
		Position: []float32{x, y, z},
		Strategy: e.CivStrat[i].String(),
		Alive:    e.CivAlive[i],
		Revealed: e.CivRevealed[i],
		Tech:     e.CivTech[i],
	}
}

// Read-only views

func (h *routerHandlers) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.host.Snapshot())
}

func (h *routerHandlers) handleGetStats(w http.ResponseWriter, r *http.Request) {
	var snap sim.Snapshot
	var controls sim.Controls
	var sequence uint64
	h.host.Frame(func(f *host.Frame) {
		snap = f.Snapshot
		controls = f.Controls
		sequence = f.Sequence
	})

	writeJSON(w, map[string]interface{}{
		"snapshot":       snap,
		"controls":       controls,
		"seed":           h.host.Seed(),
		"stepsPerSecond": h.host.StepsPerSecond(),
		"frameSequence":  sequence,
		"events":         h.host.GetEventLogStats(),
		"history":        h.history != nil,
	})
}

func (h *routerHandlers) handleGetParams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"seed":   h.host.Seed(),
		"params": h.host.Params(),
	})
}

func (h *routerHandlers) handleListCivs(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r, defaultListLimit)
	if !ok {
		return
	}

	var civs []host.CivFrame
	var total int
	h.host.Frame(func(f *host.Frame) {
		n := min(limit, len(f.Civs))
		civs = append(make([]host.CivFrame, 0, n), f.Civs[:n]...)
		total = f.Snapshot.TotalCivs
	})

	writeJSON(w, map[string]interface{}{
		"total": total,
		"civs":  civs,
	})
}

func (h *routerHandlers) handleGetCiv(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id < 0 {
		writeError(w, "Invalid civilization id", http.StatusBadRequest)
		return
	}

	var view CivView
	found := false
	h.host.View(func(e *sim.Engine) {
		if id < e.CivCount {
			view = civView(e, id)
			found = true
		}
	})
	if !found {
		writeError(w, "Civilization not found", http.StatusNotFound)
		return
	}
	writeJSON(w, view)
}

func (h *routerHandlers) handleListStars(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r, defaultListLimit)
	if !ok {
		return
	}

	var stars []host.StarFrame
	var total int
	h.host.Frame(func(f *host.Frame) {
		n := min(limit, len(f.Stars))
		stars = append(make([]host.StarFrame, 0, n), f.Stars[:n]...)
		total = f.Snapshot.Stars
	})

	writeJSON(w, map[string]interface{}{
		"total": total,
		"stars": stars,
	})
}

func (h *routerHandlers) handleGetPOI(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")

	var pick func(e *sim.Engine) int
	switch kind {
	case "strongest":
		pick = sim.PickStrongest
	case "frontier":
		pick = sim.PickFrontier
	case "nearest":
		x, errX := queryFloat(r, "x")
		y, errY := queryFloat(r, "y")
		z, errZ := queryFloat(r, "z")
		if err := errors.Join(errX, errY, errZ); err != nil {
			writeError(w, "Invalid coordinates", http.StatusBadRequest)
			return
		}
		pick = func(e *sim.Engine) int { return sim.PickNearest(e, x, y, z) }
	case "densest":
		cells := defaultDensestCells
		if v := r.URL.Query().Get("cells"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > maxDensestCells {
				writeError(w, "cells must be between 1 and 64", http.StatusBadRequest)
				return
			}
			cells = n
		}
		pick = func(e *sim.Engine) int { return sim.PickDensest(e, cells) }
	default:
		writeError(w, "Unknown point of interest: "+kind, http.StatusBadRequest)
		return
	}

	idx := -1
	var view CivView
	h.host.View(func(e *sim.Engine) {
		if idx = pick(e); idx >= 0 {
			view = civView(e, idx)
		}
	})
	if idx < 0 {
		writeError(w, "No living civilizations", http.StatusNotFound)
		return
	}

	writeJSON(w, map[string]interface{}{
		"kind": kind,
		"civ":  view,
	})
}

func (h *routerHandlers) handleMinimap(w http.ResponseWriter, r *http.Request) {
	opts := minimap.DefaultOptions()
	opts.Size = h.limits.MinimapSize
	if v := r.URL.Query().Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 16 || n > 1024 {
			writeError(w, "size must be between 16 and 1024", http.StatusBadRequest)
			return
		}
		opts.Size = n
	}

	var points []sim.MapPoint
	var radius float64
	h.host.View(func(e *sim.Engine) {
		points = sim.SampleCivs(e, h.limits.MaxMapPoints)
		radius = e.Radius
	})

	var buf bytes.Buffer
	if err := minimap.EncodePNG(&buf, minimap.Render(points, radius, opts)); err != nil {
		log.Printf("❌ Minimap encode failed: %v", err)
		writeError(w, "Failed to render minimap", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

func (h *routerHandlers) handleHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, "History archive disabled", http.StatusServiceUnavailable)
		return
	}
	limit, ok := queryLimit(w, r, defaultHistoryLimit)
	if !ok {
		return
	}

	run := r.URL.Query().Get("run")
	if run == "" {
		runs, err := h.history.Runs(r.Context(), limit)
		if err != nil {
			log.Printf("❌ History runs query failed: %v", err)
			writeError(w, "History query failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]interface{}{"runs": runs})
		return
	}

	runID, err := uuid.Parse(run)
	if err != nil {
		writeError(w, "Invalid run id", http.StatusBadRequest)
		return
	}
	samples, err := h.history.Samples(r.Context(), runID, limit)
	if err != nil {
		log.Printf("❌ History samples query failed: %v", err)
		writeError(w, "History query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]interface{}{
		"run":     runID,
		"samples": samples,
	})
}

// Commands

func (h *routerHandlers) handleStep(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Count int `json:"count"`
	}
	if !decodeOptional(w, r, &req) {
		return
	}

	count := req.Count
	if count <= 0 {
		count = 1
	}
	if count > h.limits.MaxStepsPerRequest {
		count = h.limits.MaxStepsPerRequest
	}

	writeJSON(w, map[string]interface{}{
		"steps":    count,
		"snapshot": h.host.Advance(count),
	})
}

func (h *routerHandlers) handleReset(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.host.Reset())
}

func (h *routerHandlers) handleSpawnCiv(w http.ResponseWriter, r *http.Request) {
	var view CivView
	idx := h.host.SpawnCivWith(func(e *sim.Engine, i int) { view = civView(e, i) })
	if idx < 0 {
		writeError(w, "Civilization capacity reached", http.StatusConflict)
		return
	}
	writeJSON(w, view)
}

func (h *routerHandlers) handleSpawnStars(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Count int `json:"count"`
	}
	if !decodeOptional(w, r, &req) {
		return
	}

	count := req.Count
	if count <= 0 {
		count = defaultSpawnStars
	}
	if count > h.limits.MaxSpawnPerRequest {
		count = h.limits.MaxSpawnPerRequest
	}

	added := h.host.SpawnStars(count)
	writeJSON(w, map[string]interface{}{
		"requested": count,
		"added":     added,
		"stars":     h.host.Snapshot().Stars,
	})
}

func (h *routerHandlers) handleSetControls(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Paused    *bool `json:"paused"`
		Violence  *bool `json:"violence"`
		Expansion *bool `json:"expansion"`
	}
	if !decodeOptional(w, r, &req) {
		return
	}

	c := h.host.Controls()
	if req.Paused != nil {
		c.Paused = *req.Paused
	}
	if req.Violence != nil {
		c.Violence = *req.Violence
	}
	if req.Expansion != nil {
		c.Expansion = *req.Expansion
	}
	h.host.SetControls(c)

	writeJSON(w, c)
}

func (h *routerHandlers) handleApplyParams(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Seed   *uint32         `json:"seed"`
		Params json.RawMessage `json:"params"`
	}
	if !decodeOptional(w, r, &req) {
		return
	}

	// Unspecified fields keep their current values
	p := h.host.Params()
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &p); err != nil {
			writeError(w, "Invalid params: "+err.Error(), http.StatusBadRequest)
			return
		}
	}
	if p.MaxStars > h.limits.MaxParamsStars || p.MaxCivs > h.limits.MaxParamsCivs {
		writeError(w, fmt.Sprintf("Capacities above limit (maxStars <= %d, maxCivs <= %d)",
			h.limits.MaxParamsStars, h.limits.MaxParamsCivs), http.StatusBadRequest)
		return
	}
	seed := h.host.Seed()
	if req.Seed != nil {
		seed = *req.Seed
	}

	if err := h.host.ApplyParams(p, seed); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, map[string]interface{}{
		"seed":     seed,
		"params":   p,
		"snapshot": h.host.Snapshot(),
	})
}

// Helper functions (package-level for reuse)

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// decodeOptional decodes a JSON body into dst. An empty body leaves dst
// untouched. Writes a 400 and returns false on malformed input.
func decodeOptional(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return false
	}
	return true
}

// queryLimit parses ?limit=, writing a 400 on bad input
func queryLimit(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		writeError(w, "limit must be a non-negative integer", http.StatusBadRequest)
		return 0, false
	}
	return n, true
}

// queryFloat parses an optional float query parameter, defaulting to 0
func queryFloat(r *http.Request, key string) (float64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	return strconv.ParseFloat(v, 64)
}
