package host

import (
	"encoding/json"
	"time"
)

// EventType enum for event classification
type EventType uint8

const (
	EventTypeUnknown EventType = iota
	EventTypeReveal            // A civilization detected another
	EventTypeKill              // A detection ended in elimination
	EventTypeSpawn             // Manual spawn command
	EventTypeReset             // World reset to step 0
	EventTypeParams            // Engine rebuilt from new params
	EventTypeControls          // Paused/violence/expansion changed

	numEventTypes
)

// EventVersion for backwards compatibility of the log format
const EventVersion uint8 = 1

// Event is the core event structure for the event log
type Event struct {
	Version   uint8           `json:"version"`
	Type      EventType       `json:"type"`
	Name      string          `json:"name"`
	Timestamp int64           `json:"timestamp"` // Unix nano
	Sequence  uint64          `json:"sequence"`
	Step      uint64          `json:"step"` // Engine step this occurred in
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// String returns human-readable event type
func (t EventType) String() string {
	switch t {
	case EventTypeReveal:
		return "reveal"
	case EventTypeKill:
		return "kill"
	case EventTypeSpawn:
		return "spawn"
	case EventTypeReset:
		return "reset"
	case EventTypeParams:
		return "params"
	case EventTypeControls:
		return "controls"
	default:
		return "unknown"
	}
}

// Typed payloads for different event types

// RevealPayload names the observer and the civilization it detected
type RevealPayload struct {
	Observer int `json:"observer"`
	Target   int `json:"target"`
}

// KillPayload contains kill event details
type KillPayload struct {
	Killer         int    `json:"killer"`
	Victim         int    `json:"victim"`
	KillerStrategy string `json:"killerStrategy"`
	VictimStrategy string `json:"victimStrategy"`
}

// SpawnPayload describes a manual spawn
type SpawnPayload struct {
	Kind  string `json:"kind"` // "civ" or "stars"
	Index int    `json:"index,omitempty"`
	Count int    `json:"count"`
}

// RunPayload describes a new or restarted run
type RunPayload struct {
	Seed     uint32 `json:"seed"`
	MaxStars int    `json:"maxStars"`
	MaxCivs  int    `json:"maxCivs"`
}

// EncodePayload marshals a payload to JSON bytes
func EncodePayload(payload interface{}) json.RawMessage {
	if payload == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}

// NewEvent creates a new event with the current timestamp
func NewEvent(eventType EventType, step uint64, payload interface{}) Event {
	return Event{
		Version:   EventVersion,
		Type:      eventType,
		Name:      eventType.String(),
		Timestamp: time.Now().UnixNano(),
		Step:      step,
		Payload:   EncodePayload(payload),
	}
}
