package webhook

import (
	"context"

	"github.com/mattjoyce/gwtrigger/internal/jobs"
	"github.com/mattjoyce/gwtrigger/internal/queue"
)

//go:generate mockgen -destination=mocks/mock_queue.go -package=mocks github.com/mattjoyce/gwtrigger/internal/webhook BuildQueue

// BuildQueue is the queue used to schedule and inspect builds.
type BuildQueue interface {
	Schedule(ctx context.Context, req queue.ScheduleRequest) (queue.ScheduleResult, error)
	Get(ctx context.Context, id string) (*queue.Build, error)
	Pending(ctx context.Context, job string) ([]*queue.Build, error)
	Depth(ctx context.Context) (int, error)
}

// JobSource selects the jobs a request applies to.
type JobSource interface {
	Match(token string, hasToken bool) []*jobs.Job
	All() []*jobs.Job
}

// Config holds webhook server configuration.
type Config struct {
	Listen string
	// Path prefixes every trigger route, e.g. "/generic-webhook-trigger".
	Path        string
	MaxBodySize int64
	// SubmittedBy is recorded on every scheduled build.
	SubmittedBy string
	CORSOrigins []string
}

// JobResult reports what happened to one matched job.
type JobResult struct {
	Triggered         bool              `json:"triggered"`
	ID                string            `json:"id,omitempty"`
	URL               string            `json:"url,omitempty"`
	Coalesced         bool              `json:"coalesced,omitempty"`
	ResolvedVariables map[string]string `json:"resolved_variables,omitempty"`
	RegexpFilter      *FilterResult     `json:"regexp_filter,omitempty"`
	Error             string            `json:"error,omitempty"`
}

// FilterResult shows the expanded filter text and the expression it was tested against.
type FilterResult struct {
	Text       string `json:"text"`
	Expression string `json:"expression"`
}

// TriggerResponse is the JSON response for an invoke request.
type TriggerResponse struct {
	Jobs    map[string]JobResult `json:"jobs"`
	Message string               `json:"message"`
}

// PendingResponse lists queued builds.
type PendingResponse struct {
	Builds []*queue.Build `json:"builds"`
}

// HealthResponse is returned by /healthz.
type HealthResponse struct {
	Status     string `json:"status"`
	Jobs       int    `json:"jobs"`
	QueueDepth int    `json:"queue_depth"`
}

// ErrorResponse is the JSON response for webhook errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

const (
	MessageTriggered = "Triggered jobs."
	MessageDryRun    = "Dry run, no jobs triggered."
)
