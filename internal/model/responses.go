package model

import "time"

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Database  string            `json:"database"`
	Loops     map[string]string `json:"loops,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// Pagination is attached to list responses
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
}

// EmailListResponse is a page of stored emails
type EmailListResponse struct {
	Emails     []Email    `json:"emails"`
	Pagination Pagination `json:"pagination"`
}

// ActionListResponse is a page of queued actions
type ActionListResponse struct {
	Actions    []ActionEntry `json:"actions"`
	Pagination Pagination    `json:"pagination"`
}

// CheckpointResponse reports the fetcher's lower bound
type CheckpointResponse struct {
	LastFetchedTimestamp time.Time `json:"last_fetched_timestamp"`
}
