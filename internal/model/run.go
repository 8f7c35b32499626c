package model

import (
	"strings"
	"time"
)

// Stage identifies one step of the pipeline state machine, in execution order.
type Stage string

const (
	StageRaw     Stage = "raw"
	StageMerged  Stage = "merged"
	StageTrimmed Stage = "trimmed"
	StageExtract Stage = "extract"
	StageSpots   Stage = "spots"
)

// Stages lists all pipeline stages in execution order.
var Stages = []Stage{StageRaw, StageMerged, StageTrimmed, StageExtract, StageSpots}

// StageIndex returns the position of s in the pipeline order, or -1.
func StageIndex(s Stage) int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

// StageStatus is the durable status of one stage within a run manifest.
type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageRunning   StageStatus = "running"
	StageCompleted StageStatus = "completed"
	StageSkipped   StageStatus = "skipped"
	StageFailed    StageStatus = "failed"
)

// StageRecord holds the manifest entry for one stage.
type StageRecord struct {
	Status     StageStatus `json:"status"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// RunStatus is the overall status of a pipeline run.
type RunStatus string

const (
	RunStatusIdle      RunStatus = "idle"
	RunStatusCompleted RunStatus = "completed_successfully"
	RunStatusRefused   RunStatus = "refused_lock_held"
)

// RunningStatus returns the running_<stage> status for a stage.
func RunningStatus(s Stage) RunStatus {
	return RunStatus("running_" + string(s))
}

// FailedStatus returns the failed_at_<stage> terminal status for a stage.
func FailedStatus(s Stage) RunStatus {
	return RunStatus("failed_at_" + string(s))
}

// FailedStage extracts the stage from a failed_at_<stage> status. The second
// return is false when the status is not a failure status.
func FailedStage(status RunStatus) (Stage, bool) {
	const prefix = "failed_at_"
	if !strings.HasPrefix(string(status), prefix) {
		return "", false
	}
	s := Stage(strings.TrimPrefix(string(status), prefix))
	if StageIndex(s) < 0 {
		return "", false
	}
	return s, true
}

// PipelineRun is a single execution instance with its persisted manifest.
type PipelineRun struct {
	ID         string                 `json:"id"`
	RunDate    string                 `json:"run_date"` // YYYYMMDD
	Area       string                 `json:"area,omitempty"`
	Status     RunStatus              `json:"status"`
	Stages     map[Stage]StageRecord  `json:"stages"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt *time.Time             `json:"finished_at,omitempty"`
	Stats      map[string]interface{} `json:"stats,omitempty"`
}

// NewManifest returns a stage map with every stage pending.
func NewManifest() map[Stage]StageRecord {
	m := make(map[Stage]StageRecord, len(Stages))
	for _, s := range Stages {
		m[s] = StageRecord{Status: StagePending}
	}
	return m
}
