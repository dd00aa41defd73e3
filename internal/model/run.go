package model

import "time"

type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusCached    RunStatus = "cached"
	RunStatusFailed    RunStatus = "failed"
)

func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusCached || s == RunStatusFailed
}

// AnalysisRun tracks one requested analysis from enqueue to completion.
type AnalysisRun struct {
	ID          int64       `json:"id"`
	UserID      int64       `json:"user_id"`
	SubjectKind SubjectKind `json:"subject_kind"`
	SubjectID   string      `json:"subject_id"`
	IdeaText    *string     `json:"idea_text,omitempty"`
	IdeaName    *string     `json:"idea_name,omitempty"`
	Country     string      `json:"country"`
	Status      RunStatus   `json:"status"`
	AnalysisID  *int64      `json:"analysis_id,omitempty"`
	Error       *string     `json:"error,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	FinishedAt  *time.Time  `json:"finished_at,omitempty"`
}

// Subject rebuilds the subject the run was requested for.
func (r AnalysisRun) Subject() Subject {
	s := Subject{Kind: r.SubjectKind, Country: r.Country}
	if r.SubjectKind == SubjectKindApp {
		s.AppID = r.SubjectID
		return s
	}
	if r.IdeaText != nil {
		s.IdeaText = *r.IdeaText
	}
	if r.IdeaName != nil {
		s.IdeaName = *r.IdeaName
	}
	return s
}

type RunEventType string

const (
	RunEventSection RunEventType = "section"
	RunEventRun     RunEventType = "run"
)

// RunEvent is a progress notification published while a run executes.
type RunEvent struct {
	Type       RunEventType  `json:"type"`
	RunID      int64         `json:"run_id"`
	Section    SectionKey    `json:"section,omitempty"`
	Status     SectionStatus `json:"status,omitempty"`
	RunStatus  RunStatus     `json:"run_status,omitempty"`
	AnalysisID *int64        `json:"analysis_id,omitempty"`
	ShareSlug  string        `json:"share_slug,omitempty"`
	Error      string        `json:"error,omitempty"`
	At         time.Time     `json:"at"`
}
