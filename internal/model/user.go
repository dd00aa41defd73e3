package model

import "time"

type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

type User struct {
	ID           int64     `json:"id"`
	Email        *string   `json:"email,omitempty"`
	Plan         Plan      `json:"plan"`
	RunsUsed     int       `json:"runs_used"`
	UsageResetAt time.Time `json:"usage_reset_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Usage summarizes a user's consumption against their plan for the current period.
type Usage struct {
	Plan         Plan      `json:"plan"`
	RunsUsed     int       `json:"runs_used"`
	Limit        int       `json:"limit"`
	UsageResetAt time.Time `json:"usage_reset_at"`
}

func (u Usage) Remaining() int {
	if u.RunsUsed >= u.Limit {
		return 0
	}
	return u.Limit - u.RunsUsed
}
