// Package models provides data model definitions for the AnnoSync engine.
package models

import (
	"encoding/json"
	"time"
)

// ChangeType represents the kind of mutation a queue item carries.
type ChangeType string

const (
	ChangeTypeCreate ChangeType = "create"
	ChangeTypeUpdate ChangeType = "update"
	ChangeTypeDelete ChangeType = "delete"
)

// IsValid reports whether the change type is one of the known kinds.
func (t ChangeType) IsValid() bool {
	switch t {
	case ChangeTypeCreate, ChangeTypeUpdate, ChangeTypeDelete:
		return true
	}
	return false
}

// SyncQueueItem is a durable descriptor of one pending mutation awaiting
// transmission. Items are drained strictly in creation order; Seq breaks ties
// between items created within the same second.
type SyncQueueItem struct {
	ID           UUID            `db:"id" json:"id"`
	Seq          int64           `db:"seq" json:"seq"`
	Type         ChangeType      `db:"type" json:"type"`
	DatasetID    string          `db:"dataset_id" json:"dataset_id"`
	EpisodeID    string          `db:"episode_id" json:"episode_id"`
	AnnotationID string          `db:"annotation_id" json:"annotation_id"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	CreatedAt    int64           `db:"created_at" json:"created_at"`
	RetryCount   int             `db:"retry_count" json:"retry_count"`
	LastError    string          `db:"last_error" json:"last_error,omitempty"`
}

// TableName returns the table name for SyncQueueItem.
func (SyncQueueItem) TableName() string {
	return "sync_queue"
}

// CreatedAtTime returns CreatedAt as time.Time.
func (i *SyncQueueItem) CreatedAtTime() time.Time {
	return time.Unix(i.CreatedAt, 0)
}
