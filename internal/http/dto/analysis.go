package dto

import (
	"time"

	"appideas.app/engine/internal/model"
)

type SubmitAppRequest struct {
	AppID   string `json:"app_id" binding:"required,max=32"`
	Country string `json:"country,omitempty" binding:"omitempty,len=2"`
}

type SubmitIdeaRequest struct {
	Idea string `json:"idea" binding:"required,max=5000"`
	Name string `json:"name,omitempty" binding:"omitempty,max=120"`
}

type RunResponse struct {
	ID          int64             `json:"id,string"`
	SubjectKind model.SubjectKind `json:"subject_kind"`
	SubjectID   string            `json:"subject_id"`
	Status      model.RunStatus   `json:"status"`
	AnalysisID  *int64            `json:"analysis_id,omitempty,string"`
	Error       *string           `json:"error,omitempty"`
	Statuses    model.Statuses    `json:"statuses,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	FinishedAt  *time.Time        `json:"finished_at,omitempty"`
}

func ToRunResponse(run *model.AnalysisRun, statuses model.Statuses) *RunResponse {
	return &RunResponse{
		ID:          run.ID,
		SubjectKind: run.SubjectKind,
		SubjectID:   run.SubjectID,
		Status:      run.Status,
		AnalysisID:  run.AnalysisID,
		Error:       run.Error,
		Statuses:    statuses,
		CreatedAt:   run.CreatedAt,
		StartedAt:   run.StartedAt,
		FinishedAt:  run.FinishedAt,
	}
}

type TokenUsageResponse struct {
	CallNumber   int       `json:"call_number"`
	Stage        string    `json:"stage"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	SystemTokens int       `json:"system_tokens"`
	CostUSD      float64   `json:"cost_usd"`
	Timestamp    time.Time `json:"timestamp"`
}

type AnalysisResponse struct {
	ID             int64                `json:"id,string"`
	ShareSlug      string               `json:"share_slug"`
	SubjectKind    model.SubjectKind    `json:"subject_kind"`
	SubjectID      string               `json:"subject_id"`
	SubjectName    string               `json:"subject_name"`
	App            *model.AppMetadata   `json:"app,omitempty"`
	Sections       model.Sections       `json:"sections"`
	Statuses       model.Statuses       `json:"statuses"`
	ReviewCount    int                  `json:"review_count"`
	ElapsedSeconds float64              `json:"elapsed_seconds"`
	TotalCostUSD   float64              `json:"total_cost_usd"`
	TokenUsage     []TokenUsageResponse `json:"token_usage,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}

func ToAnalysisResponse(a *model.Analysis) *AnalysisResponse {
	resp := &AnalysisResponse{
		ID:             a.ID,
		ShareSlug:      a.ShareSlug,
		SubjectKind:    a.SubjectKind,
		SubjectID:      a.SubjectID,
		SubjectName:    a.SubjectName,
		App:            a.App,
		Sections:       a.Sections,
		Statuses:       a.Statuses,
		ReviewCount:    a.ReviewCount,
		ElapsedSeconds: a.ElapsedSeconds,
		TotalCostUSD:   a.TotalCost.USD(),
		CreatedAt:      a.CreatedAt,
	}
	for _, rec := range a.TokenUsage {
		resp.TokenUsage = append(resp.TokenUsage, TokenUsageResponse{
			CallNumber:   rec.CallNumber,
			Stage:        rec.Stage,
			InputTokens:  rec.InputTokens,
			OutputTokens: rec.OutputTokens,
			SystemTokens: rec.SystemTokens,
			CostUSD:      rec.Cost.USD(),
			Timestamp:    rec.Timestamp,
		})
	}
	return resp
}

// SharedAnalysisResponse omits owner-only cost details.
type SharedAnalysisResponse struct {
	ShareSlug   string             `json:"share_slug"`
	SubjectKind model.SubjectKind  `json:"subject_kind"`
	SubjectName string             `json:"subject_name"`
	App         *model.AppMetadata `json:"app,omitempty"`
	Sections    model.Sections     `json:"sections"`
	Statuses    model.Statuses     `json:"statuses"`
	ReviewCount int                `json:"review_count"`
	CreatedAt   time.Time          `json:"created_at"`
}

func ToSharedAnalysisResponse(a *model.Analysis) *SharedAnalysisResponse {
	return &SharedAnalysisResponse{
		ShareSlug:   a.ShareSlug,
		SubjectKind: a.SubjectKind,
		SubjectName: a.SubjectName,
		App:         a.App,
		Sections:    a.Sections,
		Statuses:    a.Statuses,
		ReviewCount: a.ReviewCount,
		CreatedAt:   a.CreatedAt,
	}
}

type AnalysisSummary struct {
	ID           int64             `json:"id,string"`
	ShareSlug    string            `json:"share_slug"`
	SubjectKind  model.SubjectKind `json:"subject_kind"`
	SubjectName  string            `json:"subject_name"`
	TotalCostUSD float64           `json:"total_cost_usd"`
	CreatedAt    time.Time         `json:"created_at"`
}

type ListAnalysesResponse struct {
	Analyses []AnalysisSummary `json:"analyses"`
}

func ToListAnalysesResponse(analyses []model.Analysis) *ListAnalysesResponse {
	resp := &ListAnalysesResponse{Analyses: make([]AnalysisSummary, 0, len(analyses))}
	for _, a := range analyses {
		resp.Analyses = append(resp.Analyses, AnalysisSummary{
			ID:           a.ID,
			ShareSlug:    a.ShareSlug,
			SubjectKind:  a.SubjectKind,
			SubjectName:  a.SubjectName,
			TotalCostUSD: a.TotalCost.USD(),
			CreatedAt:    a.CreatedAt,
		})
	}
	return resp
}
