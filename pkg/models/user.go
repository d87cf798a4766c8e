package models

// User identifies the caller behind an authenticated HTTP request — either
// a JWT subject or a static API key holder. It exists purely for
// internal/auth and internal/httpapi/auth; nothing downstream of the
// worker/task-queue boundary needs an identity.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}
