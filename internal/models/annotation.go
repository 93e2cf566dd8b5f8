// Package models provides data model definitions for the AnnoSync engine.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// UUID is a wrapper around string for UUID v4 type safety.
type UUID string

// Value implements driver.Valuer for UUID.
func (u UUID) Value() (driver.Value, error) {
	return string(u), nil
}

// Scan implements sql.Scanner for UUID.
func (u *UUID) Scan(value interface{}) error {
	if value == nil {
		*u = ""
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*u = UUID(v)
	case string:
		*u = UUID(v)
	}
	return nil
}

// String returns the string representation of the UUID.
func (u UUID) String() string {
	return string(u)
}

// SyncStatus represents the synchronization state of an annotation record.
type SyncStatus string

const (
	SyncStatusSynced   SyncStatus = "synced"
	SyncStatusPending  SyncStatus = "pending"
	SyncStatusConflict SyncStatus = "conflict"
)

// IsValid reports whether the status is one of the known sync states.
func (s SyncStatus) IsValid() bool {
	switch s {
	case SyncStatusSynced, SyncStatusPending, SyncStatusConflict:
		return true
	}
	return false
}

// AnnotationRecord is the local durable representation of one episode
// annotation. The Data payload is opaque to the engine; its schema is owned
// by the annotation UI.
type AnnotationRecord struct {
	ID              UUID            `db:"id" json:"id"`
	DatasetID       string          `db:"dataset_id" json:"dataset_id"`
	EpisodeID       string          `db:"episode_id" json:"episode_id"`
	Data            json.RawMessage `db:"data" json:"data"`
	LocalUpdatedAt  int64           `db:"local_updated_at" json:"local_updated_at"`
	ServerUpdatedAt int64           `db:"server_updated_at" json:"server_updated_at,omitempty"` // 0 = no server-confirmed version yet
	SyncStatus      SyncStatus      `db:"sync_status" json:"sync_status"`
}

// TableName returns the table name for AnnotationRecord.
func (AnnotationRecord) TableName() string {
	return "annotation_records"
}

// LocalUpdatedAtTime returns LocalUpdatedAt as time.Time.
func (r *AnnotationRecord) LocalUpdatedAtTime() time.Time {
	return time.Unix(r.LocalUpdatedAt, 0)
}

// ServerUpdatedAtTime returns ServerUpdatedAt as time.Time.
// The zero time is returned when no server version is known.
func (r *AnnotationRecord) ServerUpdatedAtTime() time.Time {
	if r.ServerUpdatedAt == 0 {
		return time.Time{}
	}
	return time.Unix(r.ServerUpdatedAt, 0)
}
