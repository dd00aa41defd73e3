package queue

import "fmt"

type TaskType string

const (
	TaskTypeAnalysisRun TaskType = "analysis_run"
)

type Task struct {
	TaskType TaskType
	RunID    int64
	UserID   int64
	TraceID  *string
	Attempt  int
}

// RunStatusStreamName is the per-run stream carrying section and run status events.
func RunStatusStreamName(runID int64) string {
	return fmt.Sprintf("analysis-status:run-%d", runID)
}
