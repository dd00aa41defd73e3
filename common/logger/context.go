package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// A run enriches its context once (run_id, user_id, subject_id) and each stage adds
// its own section key, so every log line inside the pipeline carries both.
type LogFields struct {
	RunID      *int64  // Analysis run ID
	AnalysisID *int64  // Persisted analysis ID (set once saved)
	UserID     *int64  // Requesting user
	SubjectID  *string // App Store ID or idea hash
	Stage      *string // Section key currently being produced
	MessageID  *string // Redis stream message ID
	Component  string  // Component name, e.g. "engine.pipeline"
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, next LogFields) LogFields {
	result := existing

	if next.RunID != nil {
		result.RunID = next.RunID
	}
	if next.AnalysisID != nil {
		result.AnalysisID = next.AnalysisID
	}
	if next.UserID != nil {
		result.UserID = next.UserID
	}
	if next.SubjectID != nil {
		result.SubjectID = next.SubjectID
	}
	if next.Stage != nil {
		result.Stage = next.Stage
	}
	if next.MessageID != nil {
		result.MessageID = next.MessageID
	}
	if next.Component != "" {
		result.Component = next.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{RunID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen bytes, appending "..." if truncated.
// Used for logging prompts and provider error bodies.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
