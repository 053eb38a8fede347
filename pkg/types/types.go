package types

import (
	"fmt"
	"strings"
	"time"
)

// TaskPriority orders queued tasks; higher values dispatch first.
type TaskPriority int

const (
	PriorityLow    TaskPriority = 1
	PriorityNormal TaskPriority = 2
	PriorityHigh   TaskPriority = 3
	PriorityUrgent TaskPriority = 4
)

// String returns the lowercase name of the priority.
func (p TaskPriority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// Valid reports whether p is one of the four defined levels.
func (p TaskPriority) Valid() bool {
	return p >= PriorityLow && p <= PriorityUrgent
}

// ParsePriority resolves a priority from its name ("low", "NORMAL", ...).
func ParsePriority(name string) (TaskPriority, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "low":
		return PriorityLow, nil
	case "normal":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	case "urgent":
		return PriorityUrgent, nil
	default:
		return 0, fmt.Errorf("unknown priority %q", name)
	}
}

// AgentState is one step of the agent lifecycle.
type AgentState string

const (
	StateQueued     AgentState = "queued"
	StateSpawning   AgentState = "spawning"
	StateGenerating AgentState = "generating"
	StateExecuting  AgentState = "executing"
	StateSubmitting AgentState = "submitting"
	StateReviewing  AgentState = "reviewing"
	StateAccepted   AgentState = "accepted"
	StateRejected   AgentState = "rejected"
	StateErrored    AgentState = "errored"
)

// Terminal reports whether the lifecycle cannot progress past s.
func (s AgentState) Terminal() bool {
	return s == StateAccepted || s == StateRejected || s == StateErrored
}

// Reviewed reports whether a human has already decided on s.
// Errored agents stay visible in active listings until cleaned up,
// accepted/rejected ones do not.
func (s AgentState) Reviewed() bool {
	return s == StateAccepted || s == StateRejected
}

// Running reports whether an agent in s occupies a worker slot.
func (s AgentState) Running() bool {
	switch s {
	case StateSpawning, StateGenerating, StateExecuting, StateSubmitting:
		return true
	}
	return false
}

// QueuedTask is one entry in the priority queue.
type QueuedTask struct {
	AgentID    string
	Priority   TaskPriority
	EnqueuedAt time.Time
}

// Submission is the script's self-reported result, surfaced to the reviewer.
type Submission struct {
	Summary      string   `json:"summary"`
	ChangedFiles []string `json:"changed_files"`
}

// LifecycleRecord is the persisted, authoritative state of one agent.
// Exactly one record exists per agent_id; every state transition rewrites
// the whole record.
type LifecycleRecord struct {
	AgentID         string       `json:"agent_id"`
	Task            string       `json:"task"`
	Priority        TaskPriority `json:"priority"`
	State           AgentState   `json:"state"`
	CreatedAt       time.Time    `json:"created_at"`
	StateChangedAt  time.Time    `json:"state_changed_at"`
	OverlayLocation string       `json:"overlay_location,omitempty"`
	Submission      *Submission  `json:"submission,omitempty"`
	Error           string       `json:"error,omitempty"`
}

// Validate checks the record's internal consistency.
func (r *LifecycleRecord) Validate() error {
	if r.AgentID == "" {
		return fmt.Errorf("lifecycle record missing agent_id")
	}
	if r.Task == "" {
		return fmt.Errorf("lifecycle record %s missing task", r.AgentID)
	}
	if !r.Priority.Valid() {
		return fmt.Errorf("lifecycle record %s has invalid priority %d", r.AgentID, int(r.Priority))
	}
	if r.StateChangedAt.Before(r.CreatedAt) {
		return fmt.Errorf("lifecycle record %s changed before it was created", r.AgentID)
	}
	return nil
}

// CommandResult carries a submitted command's answer back to its
// adapter. Which field is set depends on the command kind: queue
// yields AgentID, status yields Record, list_agents yields Records,
// accept/reject yield nothing.
type CommandResult struct {
	AgentID string
	Record  *LifecycleRecord
	Records []LifecycleRecord
}

// FileInfo is the merged stat view of one overlay path.
type FileInfo struct {
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mtime"`
	IsFile  bool      `json:"is_file"`
	IsDir   bool      `json:"is_dir"`
}

// TrashRecord notes a trashed overlay in the bin store for later cleanup.
type TrashRecord struct {
	AgentID    string     `json:"agent_id"`
	Task       string     `json:"task"`
	FinalState AgentState `json:"final_state"`
	TrashedAt  time.Time  `json:"trashed_at"`
}
