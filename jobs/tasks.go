package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLoanStatusRefresh recomputes loan statuses against the current date.
	TaskLoanStatusRefresh = "loan:status_refresh"
)

// StatusRefreshPayload parameterizes a status refresh run. AsOf is an
// RFC 3339 timestamp; empty means "now".
type StatusRefreshPayload struct {
	AsOf string `json:"as_of,omitempty"`
}

// NewStatusRefreshTask constructs an Asynq task for a status refresh run.
func NewStatusRefreshTask(payload StatusRefreshPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLoanStatusRefresh, data), nil
}
