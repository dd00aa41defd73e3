package dto

import (
	"time"

	"appideas.app/engine/internal/model"
)

type UsageResponse struct {
	Plan         model.Plan `json:"plan"`
	RunsUsed     int        `json:"runs_used"`
	Limit        int        `json:"limit"`
	Remaining    int        `json:"remaining"`
	UsageResetAt time.Time  `json:"usage_reset_at"`
}

func ToUsageResponse(u *model.Usage) *UsageResponse {
	return &UsageResponse{
		Plan:         u.Plan,
		RunsUsed:     u.RunsUsed,
		Limit:        u.Limit,
		Remaining:    u.Remaining(),
		UsageResetAt: u.UsageResetAt,
	}
}

type ResetUsageResponse struct {
	UsersReset int64 `json:"users_reset"`
}
