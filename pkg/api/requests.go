package api

// ContextCheckRequest is the HTTP request body for POST /api/context/check.
type ContextCheckRequest struct {
	ThreadID string `json:"thread_id"`
}
