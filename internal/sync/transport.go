// Package sync implements the offline-first synchronization core: the queue
// processor that drains pending mutations against the backend, and the
// manager that schedules processing cycles.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Transport performs the network call for one queued mutation. The backend
// annotation API is an external collaborator; the engine only needs these
// three operations.
type Transport interface {
	// CreateAnnotation creates an annotation on an episode's collection.
	CreateAnnotation(ctx context.Context, datasetID, episodeID string, payload json.RawMessage) error

	// UpdateAnnotation replaces an annotation by ID.
	UpdateAnnotation(ctx context.Context, annotationID string, payload json.RawMessage) error

	// DeleteAnnotation removes an annotation by ID.
	DeleteAnnotation(ctx context.Context, annotationID string) error
}

// TransportError is a non-2xx response from the backend.
type TransportError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("transport error: status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("transport error: status %d", e.StatusCode)
}

// IsConflict reports whether err is a server rejection carrying HTTP 409,
// meaning the local base version is stale relative to the server's current
// version. Conflicts are never retried.
func IsConflict(err error) bool {
	var terr *TransportError
	return errors.As(err, &terr) && terr.StatusCode == http.StatusConflict
}
