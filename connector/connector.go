// Package connector defines the lifecycle contract shared by all Flare
// network sub-connections, along with the entities every service reports
// through: connection status snapshots and submission outcomes.
package connector

import (
	"context"
	"time"
)

// State is the lifecycle state of a sub-connection.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Disconnecting
	// Errored marks a connection whose transport is live but whose last
	// operation could not complete. Data operations are still permitted and
	// a later success restores Connected.
	Errored
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

// Connection is the lifecycle every sub-connection implements. Status never
// returns an error: a failed health probe degrades to an Error field inside
// an otherwise valid Status.
type Connection interface {
	Name() string
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Status(ctx context.Context) Status
}

// Status is a health snapshot of one sub-connection. When Connected is
// false every other field is zero.
type Status struct {
	Connected  bool              `json:"connected"`
	Latency    time.Duration     `json:"latency,omitempty"`
	LastUpdate time.Time         `json:"lastUpdate,omitempty"`
	Error      string            `json:"error,omitempty"`
	Counters   map[string]uint64 `json:"counters,omitempty"`
}

// SubmissionResult is the outcome of relaying a data point, record or proof
// to the network. Success=false always carries a non-empty Error.
type SubmissionResult struct {
	Success     bool      `json:"success"`
	Epoch       int64     `json:"epoch"`
	SubmittedAt time.Time `json:"submittedAt"`
	TxHash      string    `json:"txHash,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// EpochDuration is the fixed consensus round length used to bucket price
// submissions across the network.
const EpochDuration = 3 * time.Minute

// EpochAt returns the consensus epoch index containing t.
func EpochAt(t time.Time) int64 {
	return t.Unix() / int64(EpochDuration/time.Second)
}
