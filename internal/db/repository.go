// Package db provides the local record store: CRUD repository operations for
// annotation records, the sync queue, and free-form sync metadata.
package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/robolabel/annosync/internal/errors"
	"github.com/robolabel/annosync/internal/models"
	"github.com/robolabel/annosync/internal/uuid"
)

// Repository provides CRUD operations for all models.
// Every operation is individually atomic; there are no cross-entity
// transactions. The queue processor tolerates partial completion between a
// record-status update and the matching queue removal.
type Repository struct {
	db *sql.DB

	// Prepared statement cache for frequently used queries.
	// Statements are prepared on first use and cached for reuse.
	stmtCache sync.Map // map[string]*sql.Stmt
}

// NewRepository creates a new Repository instance.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// PrepareStmt gets or creates a prepared statement from cache.
// Key is the query string, value is the prepared statement.
func (r *Repository) PrepareStmt(query string) (*sql.Stmt, error) {
	if stmt, ok := r.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := r.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	actual, loaded := r.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		// Another goroutine already prepared this, close our duplicate
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}

	return stmt, nil
}

// Close closes all cached prepared statements.
// Should be called when the Repository is no longer needed.
func (r *Repository) Close() error {
	var firstErr error
	r.stmtCache.Range(func(key, value interface{}) bool {
		stmt := value.(*sql.Stmt)
		if err := stmt.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}

// =====================================================
// AnnotationRecord Operations
// =====================================================

// SaveRecord upserts an annotation record. The local modification timestamp
// is always refreshed; a zero-length payload is stored as an empty object.
func (r *Repository) SaveRecord(datasetID, episodeID, annotationID string, data json.RawMessage, status models.SyncStatus) (*models.AnnotationRecord, error) {
	if !status.IsValid() {
		return nil, apperrors.New(apperrors.ErrValidation, fmt.Sprintf("invalid sync status %q", status))
	}
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}

	record := &models.AnnotationRecord{
		ID:             models.UUID(annotationID),
		DatasetID:      datasetID,
		EpisodeID:      episodeID,
		Data:           data,
		LocalUpdatedAt: time.Now().Unix(),
		SyncStatus:     status,
	}

	query := `
	INSERT INTO annotation_records (id, dataset_id, episode_id, data, local_updated_at, server_updated_at, sync_status)
	VALUES (?, ?, ?, ?, ?, 0, ?)
	ON CONFLICT(id) DO UPDATE SET
		dataset_id = excluded.dataset_id,
		episode_id = excluded.episode_id,
		data = excluded.data,
		local_updated_at = excluded.local_updated_at,
		sync_status = excluded.sync_status
	`
	_, err := r.db.Exec(query, record.ID, record.DatasetID, record.EpisodeID,
		string(record.Data), record.LocalUpdatedAt, record.SyncStatus)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to save record", err)
	}
	return record, nil
}

// GetRecord retrieves an annotation record by ID.
func (r *Repository) GetRecord(annotationID string) (*models.AnnotationRecord, error) {
	query := `
	SELECT id, dataset_id, episode_id, data, local_updated_at, server_updated_at, sync_status
	FROM annotation_records WHERE id = ?
	`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}

	record, err := scanRecord(stmt.QueryRow(annotationID))
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.ErrRecordNotFound, fmt.Sprintf("annotation record not found: %s", annotationID))
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to get record", err)
	}
	return record, nil
}

// ListRecordsByDataset returns all records belonging to a dataset.
func (r *Repository) ListRecordsByDataset(datasetID string) ([]*models.AnnotationRecord, error) {
	query := `
	SELECT id, dataset_id, episode_id, data, local_updated_at, server_updated_at, sync_status
	FROM annotation_records WHERE dataset_id = ?
	`
	return r.queryRecords(query, datasetID)
}

// ListRecordsByStatus returns all records with the given sync status.
// The UI uses this for pending and conflict counts.
func (r *Repository) ListRecordsByStatus(status models.SyncStatus) ([]*models.AnnotationRecord, error) {
	query := `
	SELECT id, dataset_id, episode_id, data, local_updated_at, server_updated_at, sync_status
	FROM annotation_records WHERE sync_status = ?
	`
	return r.queryRecords(query, string(status))
}

// UpdateRecordStatus transitions a record's sync status. A serverUpdatedAt of
// zero leaves the stored server timestamp untouched. The update is a silent
// no-op when the record no longer exists: it may have been deleted
// concurrently by the UI while a sync cycle was in flight.
func (r *Repository) UpdateRecordStatus(annotationID string, status models.SyncStatus, serverUpdatedAt int64) error {
	if !status.IsValid() {
		return apperrors.New(apperrors.ErrValidation, fmt.Sprintf("invalid sync status %q", status))
	}

	var err error
	if serverUpdatedAt > 0 {
		query := `UPDATE annotation_records SET sync_status = ?, server_updated_at = ? WHERE id = ?`
		_, err = r.db.Exec(query, status, serverUpdatedAt, annotationID)
	} else {
		query := `UPDATE annotation_records SET sync_status = ? WHERE id = ?`
		_, err = r.db.Exec(query, status, annotationID)
	}
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to update record status", err)
	}
	return nil
}

// DeleteRecord removes an annotation record from the local store.
func (r *Repository) DeleteRecord(annotationID string) error {
	_, err := r.db.Exec(`DELETE FROM annotation_records WHERE id = ?`, annotationID)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to delete record", err)
	}
	return nil
}

// CountByStatus returns record counts keyed by sync status.
func (r *Repository) CountByStatus() (map[models.SyncStatus]int, error) {
	rows, err := r.db.Query(`SELECT sync_status, COUNT(*) FROM annotation_records GROUP BY sync_status`)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to count records", err)
	}
	defer rows.Close()

	counts := map[models.SyncStatus]int{
		models.SyncStatusSynced:   0,
		models.SyncStatusPending:  0,
		models.SyncStatusConflict: 0,
	}
	for rows.Next() {
		var status models.SyncStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// queryRecords runs a record SELECT with the given arguments.
func (r *Repository) queryRecords(query string, args ...interface{}) ([]*models.AnnotationRecord, error) {
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(args...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to list records", err)
	}
	defer rows.Close()

	var records []*models.AnnotationRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*models.AnnotationRecord, error) {
	var record models.AnnotationRecord
	var data string
	err := row.Scan(&record.ID, &record.DatasetID, &record.EpisodeID, &data,
		&record.LocalUpdatedAt, &record.ServerUpdatedAt, &record.SyncStatus)
	if err != nil {
		return nil, err
	}
	record.Data = json.RawMessage(data)
	return &record, nil
}

// =====================================================
// SyncQueue Operations
// =====================================================

// EnqueueChange appends a pending mutation descriptor to the sync queue and
// returns its ID. Successive edits to the same annotation each get their own
// descriptor; the queue is not deduplicated.
func (r *Repository) EnqueueChange(changeType models.ChangeType, datasetID, episodeID, annotationID string, payload json.RawMessage) (models.UUID, error) {
	if !changeType.IsValid() {
		return "", apperrors.New(apperrors.ErrValidation, fmt.Sprintf("invalid change type %q", changeType))
	}
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}

	id := models.UUID(uuid.New())
	query := `
	INSERT INTO sync_queue (id, type, dataset_id, episode_id, annotation_id, payload, created_at, retry_count, last_error)
	VALUES (?, ?, ?, ?, ?, ?, ?, 0, '')
	`
	_, err := r.db.Exec(query, id, changeType, datasetID, episodeID, annotationID,
		string(payload), time.Now().Unix())
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrDatabase, "failed to enqueue change", err)
	}
	return id, nil
}

// ListPendingQueueItems returns all queued items oldest-first. Seq breaks
// ties between items created within the same second, preserving strict
// creation order.
func (r *Repository) ListPendingQueueItems() ([]*models.SyncQueueItem, error) {
	query := `
	SELECT seq, id, type, dataset_id, episode_id, annotation_id, payload, created_at, retry_count, last_error
	FROM sync_queue ORDER BY created_at ASC, seq ASC
	`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to list queue items", err)
	}
	defer rows.Close()

	var items []*models.SyncQueueItem
	for rows.Next() {
		var item models.SyncQueueItem
		var payload string
		err := rows.Scan(&item.Seq, &item.ID, &item.Type, &item.DatasetID, &item.EpisodeID,
			&item.AnnotationID, &payload, &item.CreatedAt, &item.RetryCount, &item.LastError)
		if err != nil {
			return nil, err
		}
		item.Payload = json.RawMessage(payload)
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// CountQueueItems returns the number of queued items.
func (r *Repository) CountQueueItems() (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM sync_queue`).Scan(&n)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrDatabase, "failed to count queue items", err)
	}
	return n, nil
}

// RemoveQueueItem deletes a queue item after it has been resolved.
func (r *Repository) RemoveQueueItem(id models.UUID) error {
	_, err := r.db.Exec(`DELETE FROM sync_queue WHERE id = ?`, id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to remove queue item", err)
	}
	return nil
}

// BumpRetry increments a queue item's retry count and records the latest
// transport error for diagnostics.
func (r *Repository) BumpRetry(id models.UUID, errMsg string) error {
	_, err := r.db.Exec(`UPDATE sync_queue SET retry_count = retry_count + 1, last_error = ? WHERE id = ?`,
		errMsg, id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to bump retry count", err)
	}
	return nil
}

// =====================================================
// Sync Metadata Operations
// =====================================================

// SetMetadata stores a free-form key/value pair (last sync time, device id).
func (r *Repository) SetMetadata(key, value string) error {
	query := `
	INSERT INTO sync_metadata (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	_, err := r.db.Exec(query, key, value, time.Now().Unix())
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to set metadata", err)
	}
	return nil
}

// GetMetadata retrieves a metadata value by key.
func (r *Repository) GetMetadata(key string) (string, error) {
	var value string
	err := r.db.QueryRow(`SELECT value FROM sync_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("metadata key not found: %s", key))
	}
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrDatabase, "failed to get metadata", err)
	}
	return value, nil
}

// DeleteMetadata removes a metadata key.
func (r *Repository) DeleteMetadata(key string) error {
	_, err := r.db.Exec(`DELETE FROM sync_metadata WHERE key = ?`, key)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to delete metadata", err)
	}
	return nil
}

// =====================================================
// Reset
// =====================================================

// ClearAll wipes records, queue items, and metadata. Used on logout/reset.
func (r *Repository) ClearAll() error {
	for _, table := range []string{"annotation_records", "sync_queue", "sync_metadata"} {
		if _, err := r.db.Exec("DELETE FROM " + table); err != nil {
			return apperrors.Wrap(apperrors.ErrDatabase, fmt.Sprintf("failed to clear %s", table), err)
		}
	}
	return nil
}
