package client

import (
	"fmt"

	"github.com/loykin/upscalr/internal/auth"
	"github.com/loykin/upscalr/internal/batch"
)

type (
	Job       = batch.Job
	JobStatus = batch.JobStatus
	Phase     = batch.Phase
	Token     = auth.Token
)

// APIError is a non-2xx reply from the server.
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.Status)
	}
	return fmt.Sprintf("API error (HTTP %d): %s", e.Status, e.Message)
}

type submitResponse struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}
