package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTrackingSimulate runs a technician tracking simulation.
	TaskTrackingSimulate = "tracking:simulate"
	// TaskTrackingPrune drops old technician positions.
	TaskTrackingPrune = "tracking:prune"
)

// TrackingSimulatePayload identifies who asked for a simulation.
type TrackingSimulatePayload struct {
	RequestedAt time.Time `json:"requested_at"`
}

// NewTrackingSimulateTask constructs an Asynq task.
func NewTrackingSimulateTask(payload TrackingSimulatePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTrackingSimulate, data), nil
}

// TrackingPrunePayload carries the retention for a prune run.
type TrackingPrunePayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewTrackingPruneTask constructs an Asynq task.
func NewTrackingPruneTask(payload TrackingPrunePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTrackingPrune, data), nil
}
