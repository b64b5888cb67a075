package queue

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a queued build.
type Status string

const (
	StatusPending  Status = "pending"
	StatusReleased Status = "released"
)

// Parameter is a build parameter as stored in the queue.
type Parameter struct {
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// Build is a queued build.
type Build struct {
	ID          string      `json:"id"`
	Job         string      `json:"job"`
	Parameters  []Parameter `json:"parameters"`
	Fingerprint string      `json:"fingerprint"`
	Cause       string      `json:"cause,omitempty"`
	SubmittedBy string      `json:"submitted_by"`
	Status      Status      `json:"status"`
	// Triggers counts the requests coalesced into this build.
	Triggers  int       `json:"triggers"`
	CreatedAt time.Time `json:"created_at"`
	NotBefore time.Time `json:"not_before"`
}

// ScheduleRequest asks for a build of Job with the given parameters.
type ScheduleRequest struct {
	Job        string
	Parameters []Parameter
	// QuietPeriod is how long, in seconds, the build waits before it may start.
	QuietPeriod int
	Cause       string
	SubmittedBy string
}

// ScheduleResult reports where a request ended up in the queue.
type ScheduleResult struct {
	ID string
	// Coalesced is true when an identical pending build absorbed the request.
	Coalesced bool
	NotBefore time.Time
}

// ErrBuildNotFound is returned by Get for an unknown build id.
var ErrBuildNotFound = errors.New("build not found")
