// Package progress provides filesystem-backed progress tracking for agent
// invocations. Every run writes a record under
// {root}/{project}/.progress/{run_id}.json during execution; consumers poll
// these files to monitor progress without blocking the owning process.
package progress

import (
	"time"
)

// Status is the lifecycle state of an agent invocation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	// StatusStalled is never written to disk. It is a read-time judgment
	// derived from heartbeat age; see EffectiveStatus.
	StatusStalled Status = "stalled"
)

// Terminal reports whether the status is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is one of the five known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusStalled:
		return true
	}
	return false
}

// Record is the durable progress document for one run.
type Record struct {
	RunID             string    `json:"run_id"`
	Agent             string    `json:"agent"`
	Project           string    `json:"project"`
	StartedAt         time.Time `json:"started_at"`
	Status            Status    `json:"status"`
	LastHeartbeat     time.Time `json:"last_heartbeat"`
	Phase             string    `json:"phase"`
	MessagesProcessed int       `json:"messages_processed"`
	EstimatedRemain   string    `json:"estimated_remaining,omitempty"`
	Error             string    `json:"error,omitempty"`
	ResultSummary     string    `json:"result_summary,omitempty"`
	ArtifactsCreated  []string  `json:"artifacts_created"`
}

// StaleAt reports whether the record's heartbeat is older than threshold at
// the given instant. The boundary is strict: exactly threshold old is fresh.
func (r *Record) StaleAt(now time.Time, threshold time.Duration) bool {
	return now.Sub(r.LastHeartbeat) > threshold
}

// EffectiveStatus returns the status a reader should display: running or
// pending records whose heartbeat is older than threshold are reported as
// stalled. The on-disk status is never rewritten.
func EffectiveStatus(r *Record, now time.Time, threshold time.Duration) Status {
	if (r.Status == StatusRunning || r.Status == StatusPending) && r.StaleAt(now, threshold) {
		return StatusStalled
	}
	return r.Status
}

func cloneRecord(in *Record) *Record {
	if in == nil {
		return nil
	}
	out := *in
	if in.ArtifactsCreated != nil {
		out.ArtifactsCreated = append([]string(nil), in.ArtifactsCreated...)
	}
	return &out
}
