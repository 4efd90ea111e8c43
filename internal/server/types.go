package server

// ErrorResponse is the uniform JSON error envelope
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Details any    `json:"details,omitempty"`
}

// HealthResponse is returned by the health endpoint
type HealthResponse struct {
	OK bool `json:"ok"`
}

// StatusResponse reports the pipeline's durable progress
type StatusResponse struct {
	CursorHeight uint64 `json:"cursor_height"`
	HasCursor    bool   `json:"has_cursor"`
}

// FlagUpsertRequest creates or replaces a feature flag
type FlagUpsertRequest struct {
	Key   string `json:"key"`
	Value bool   `json:"value"`
}

// FlagUpdateRequest updates an existing flag's value
type FlagUpdateRequest struct {
	Value bool `json:"value"`
}

// AskRequest is a natural language question over the aggregate tables
type AskRequest struct {
	Question string `json:"question"`
	Model    string `json:"model,omitempty"`
}

// AskResponse carries the generated SQL and the summarised answer
type AskResponse struct {
	SQL    string `json:"sql"`
	Answer string `json:"answer"`
}
