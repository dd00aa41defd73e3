package model

import (
	"fmt"
	"time"
)

// Cost is an amount of US dollars in nano-dollar units. Integer units keep
// the sum of per-call costs exactly equal to a run's total.
type Cost int64

const NanosPerUSD = 1_000_000_000

func (c Cost) USD() float64 {
	return float64(c) / NanosPerUSD
}

func (c Cost) String() string {
	return fmt.Sprintf("$%.6f", c.USD())
}

// TokenUsageRecord is one model call's accounting entry. Records are append-only.
type TokenUsageRecord struct {
	CallNumber   int       `json:"call_number"`
	Stage        string    `json:"stage"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	SystemTokens int       `json:"system_tokens"`
	Cost         Cost      `json:"cost_nanos"`
	Timestamp    time.Time `json:"timestamp"`
}

// Analysis is the persisted, flattened result of a run.
type Analysis struct {
	ID             int64              `json:"id"`
	ShareSlug      string             `json:"share_slug"`
	UserID         int64              `json:"user_id"`
	SubjectKind    SubjectKind        `json:"subject_kind"`
	SubjectID      string             `json:"subject_id"`
	SubjectName    string             `json:"subject_name"`
	App            *AppMetadata       `json:"app,omitempty"`
	Sections       Sections           `json:"sections"`
	Statuses       Statuses           `json:"statuses"`
	Fallbacks      []string           `json:"fallbacks,omitempty"` // stages whose strict parse failed
	ReviewCount    int                `json:"review_count"`
	ElapsedSeconds float64            `json:"elapsed_seconds"`
	TotalCost      Cost               `json:"total_cost_nanos"`
	TokenUsage     []TokenUsageRecord `json:"token_usage,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
}

// SaveResult identifies a persisted analysis.
type SaveResult struct {
	ID        int64  `json:"id"`
	ShareSlug string `json:"share_slug"`
}

// ReportRef points at a rendered report written to a report store.
type ReportRef struct {
	Backend   string    `json:"backend"`
	Path      string    `json:"path"`
	Format    string    `json:"format"`
	SHA256    string    `json:"sha256"`
	UpdatedAt time.Time `json:"updated_at"`
}
