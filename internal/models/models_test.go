package models

import (
	"encoding/json"
	"testing"
	"time"
)

// TestSyncStatusIsValid verifies known and unknown statuses.
func TestSyncStatusIsValid(t *testing.T) {
	for _, status := range []SyncStatus{SyncStatusSynced, SyncStatusPending, SyncStatusConflict} {
		if !status.IsValid() {
			t.Errorf("Expected %s to be valid", status)
		}
	}
	for _, status := range []SyncStatus{"", "done", "SYNCED"} {
		if status.IsValid() {
			t.Errorf("Expected %q to be invalid", status)
		}
	}
}

// TestChangeTypeIsValid verifies known and unknown change types.
func TestChangeTypeIsValid(t *testing.T) {
	for _, ct := range []ChangeType{ChangeTypeCreate, ChangeTypeUpdate, ChangeTypeDelete} {
		if !ct.IsValid() {
			t.Errorf("Expected %s to be valid", ct)
		}
	}
	for _, ct := range []ChangeType{"", "rename", "UPDATE"} {
		if ct.IsValid() {
			t.Errorf("Expected %q to be invalid", ct)
		}
	}
}

// TestUUIDScan verifies the sql.Scanner accepts the driver's value kinds.
func TestUUIDScan(t *testing.T) {
	var u UUID
	if err := u.Scan("abc"); err != nil {
		t.Fatalf("Scan string failed: %v", err)
	}
	if u != "abc" {
		t.Errorf("Expected abc, got %s", u)
	}

	if err := u.Scan([]byte("def")); err != nil {
		t.Fatalf("Scan bytes failed: %v", err)
	}
	if u != "def" {
		t.Errorf("Expected def, got %s", u)
	}

	if err := u.Scan(nil); err != nil {
		t.Fatalf("Scan nil failed: %v", err)
	}
	if u != "" {
		t.Errorf("Expected empty after nil scan, got %s", u)
	}
}

// TestUUIDValue verifies the driver.Valuer round trip.
func TestUUIDValue(t *testing.T) {
	u := UUID("abc")
	v, err := u.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	if v != "abc" {
		t.Errorf("Expected abc, got %v", v)
	}
	if u.String() != "abc" {
		t.Errorf("Expected abc, got %s", u.String())
	}
}

// TestAnnotationRecordTimestamps verifies the time helpers, including the
// zero server timestamp meaning no confirmed version.
func TestAnnotationRecordTimestamps(t *testing.T) {
	record := &AnnotationRecord{LocalUpdatedAt: 1700000000}

	if got := record.LocalUpdatedAtTime(); got != time.Unix(1700000000, 0) {
		t.Errorf("Unexpected local time: %v", got)
	}
	if !record.ServerUpdatedAtTime().IsZero() {
		t.Error("Expected zero time when no server version is known")
	}

	record.ServerUpdatedAt = 1700000100
	if got := record.ServerUpdatedAtTime(); got != time.Unix(1700000100, 0) {
		t.Errorf("Unexpected server time: %v", got)
	}
}

// TestAnnotationRecordJSON verifies the wire shape the localhost API serves,
// and that the opaque payload passes through untouched.
func TestAnnotationRecordJSON(t *testing.T) {
	record := &AnnotationRecord{
		ID:             "a1",
		DatasetID:      "ds1",
		EpisodeID:      "ep1",
		Data:           json.RawMessage(`{"quality":"good","nested":{"k":[1,2]}}`),
		LocalUpdatedAt: 1700000000,
		SyncStatus:     SyncStatusPending,
	}

	data, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded["sync_status"] != "pending" {
		t.Errorf("Expected sync_status pending, got %v", decoded["sync_status"])
	}
	if _, ok := decoded["server_updated_at"]; ok {
		t.Error("Expected zero server timestamp omitted")
	}
	payload, ok := decoded["data"].(map[string]interface{})
	if !ok || payload["quality"] != "good" {
		t.Errorf("Expected opaque payload preserved, got %v", decoded["data"])
	}
}

// TestTableNames pins the schema table bindings.
func TestTableNames(t *testing.T) {
	if (AnnotationRecord{}).TableName() != "annotation_records" {
		t.Error("Unexpected annotation record table name")
	}
	if (SyncQueueItem{}).TableName() != "sync_queue" {
		t.Error("Unexpected sync queue table name")
	}
}
