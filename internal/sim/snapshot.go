package sim

// Snapshot is a read-only summary of engine state after the latest step
type Snapshot struct {
	Step          uint64  `json:"step"`
	Time          float64 `json:"time"`
	Radius        float64 `json:"radius"`
	Alive         int     `json:"alive"`
	TotalCivs     int     `json:"totalCivs"`
	Stars         int     `json:"stars"`
	RevealsB      uint64  `json:"revealsB"`
	RevealsS      uint64  `json:"revealsS"`
	RevealsR      uint64  `json:"revealsR"`
	KillsThisStep uint64  `json:"killsThisStep"`
	TotalKills    uint64  `json:"totalKills"`
}

// Snapshot computes the summary. It never mutates the engine.
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		Step:          e.StepN,
		Time:          e.Time,
		Radius:        e.Radius,
		Alive:         e.AliveCount(),
		TotalCivs:     e.CivCount,
		Stars:         e.StarCount,
		RevealsB:      e.RevealsB,
		RevealsS:      e.RevealsS,
		RevealsR:      e.RevealsR,
		KillsThisStep: e.KillsThisStep,
		TotalKills:    e.TotalKills,
	}
}
