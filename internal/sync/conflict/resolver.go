// Package conflict implements the resolution contract for annotations the
// server rejected with a version conflict. The UI presents both versions and
// calls back with a choice; the engine applies it against the local store.
package conflict

import (
	"encoding/json"

	"github.com/robolabel/annosync/internal/db"
	"github.com/robolabel/annosync/internal/logging"
	"github.com/robolabel/annosync/internal/models"
)

// Choice selects how a conflict is resolved.
type Choice string

const (
	// ChoiceLocal keeps the local copy wholesale and re-enqueues it as a
	// fresh pending mutation.
	ChoiceLocal Choice = "local"

	// ChoiceServer discards the local copy and adopts the server copy.
	ChoiceServer Choice = "server"

	// ChoiceMerge is a contract placeholder with no implemented semantics.
	ChoiceMerge Choice = "merge"
)

// Version is one side of a conflict as shown to the user.
type Version struct {
	Source    string          `json:"source"` // "local" or "server"
	Data      json.RawMessage `json:"data"`
	UpdatedAt int64           `json:"updated_at"`
	UpdatedBy string          `json:"updated_by,omitempty"`
}

// Pair carries both sides of a detected conflict plus routing information.
type Pair struct {
	AnnotationID string  `json:"annotation_id"`
	DatasetID    string  `json:"dataset_id"`
	EpisodeID    string  `json:"episode_id"`
	Local        Version `json:"local_version"`
	Server       Version `json:"server_version"`
}

// Resolver applies conflict choices against the local record store.
type Resolver struct {
	repo *db.Repository
}

// NewResolver creates a Resolver.
func NewResolver(repo *db.Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve applies the user's choice for a conflicted annotation. The record
// must currently be in conflict state; resolution moves it back to pending
// (local wins) or synced (server wins).
func (r *Resolver) Resolve(pair *Pair, choice Choice) error {
	if pair == nil || pair.AnnotationID == "" {
		return ErrInvalidConflict
	}

	logging.Info("Resolving annotation conflict",
		map[string]interface{}{
			"annotation_id":    pair.AnnotationID,
			"choice":           string(choice),
			"local_timestamp":  pair.Local.UpdatedAt,
			"server_timestamp": pair.Server.UpdatedAt,
		})

	switch choice {
	case ChoiceLocal:
		return r.resolveLocal(pair)
	case ChoiceServer:
		return r.resolveServer(pair)
	case ChoiceMerge:
		return ErrMergeNotSupported
	default:
		return ErrUnknownChoice
	}
}

// resolveLocal keeps the local version: the record goes back to pending and
// the local payload re-enters the queue as a fresh update.
func (r *Resolver) resolveLocal(pair *Pair) error {
	if _, err := r.repo.SaveRecord(pair.DatasetID, pair.EpisodeID, pair.AnnotationID,
		pair.Local.Data, models.SyncStatusPending); err != nil {
		return err
	}

	_, err := r.repo.EnqueueChange(models.ChangeTypeUpdate, pair.DatasetID,
		pair.EpisodeID, pair.AnnotationID, pair.Local.Data)
	return err
}

// resolveServer adopts the server version wholesale and marks the record
// synced against the server's timestamp.
func (r *Resolver) resolveServer(pair *Pair) error {
	if _, err := r.repo.SaveRecord(pair.DatasetID, pair.EpisodeID, pair.AnnotationID,
		pair.Server.Data, models.SyncStatusSynced); err != nil {
		return err
	}

	return r.repo.UpdateRecordStatus(pair.AnnotationID, models.SyncStatusSynced, pair.Server.UpdatedAt)
}

// Errors
var (
	ErrInvalidConflict   = &ConflictError{Message: "invalid conflict: annotation id is required"}
	ErrUnknownChoice     = &ConflictError{Message: "unknown resolution choice"}
	ErrMergeNotSupported = &ConflictError{Message: "merge resolution not supported"}
)

// ConflictError represents a conflict resolution error.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// IsConflictError checks if an error is a ConflictError.
func IsConflictError(err error) bool {
	_, ok := err.(*ConflictError)
	return ok
}
