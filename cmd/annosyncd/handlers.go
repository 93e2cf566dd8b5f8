// Package main provides REST handlers for the localhost annotation API.
package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/robolabel/annosync/internal/db"
	apperrors "github.com/robolabel/annosync/internal/errors"
	"github.com/robolabel/annosync/internal/models"
	syncengine "github.com/robolabel/annosync/internal/sync"
	"github.com/robolabel/annosync/internal/sync/conflict"
)

// maxBodyBytes caps annotation payload sizes accepted from the UI.
const maxBodyBytes = 1 << 20

// APIHandler serves the localhost API the annotation UI talks to.
type APIHandler struct {
	repo     *db.Repository
	manager  *syncengine.Manager
	resolver *conflict.Resolver
}

// NewAPIHandler creates an APIHandler.
func NewAPIHandler(repo *db.Repository, manager *syncengine.Manager, resolver *conflict.Resolver) *APIHandler {
	return &APIHandler{
		repo:     repo,
		manager:  manager,
		resolver: resolver,
	}
}

// Routes mounts all API routes on a router.
func (h *APIHandler) Routes(r chi.Router) {
	r.Get("/api/health", h.Health)
	r.Get("/api/sync/status", h.SyncStatus)
	r.Post("/api/sync/trigger", h.TriggerSync)
	r.Post("/api/sync/resolve", h.ResolveConflict)
	r.Get("/api/annotations", h.ListAnnotations)
	r.Get("/api/annotations/{id}", h.GetAnnotation)
	r.Put("/api/annotations/{id}", h.SaveAnnotation)
	r.Delete("/api/annotations/{id}", h.DeleteAnnotation)
	r.Post("/api/reset", h.Reset)
}

// Health handles GET /api/health.
func (h *APIHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"service": "annosyncd",
	})
}

// SyncStatus handles GET /api/sync/status: the manager snapshot plus record
// and queue counts for UI badges.
func (h *APIHandler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := h.repo.CountByStatus()
	if err != nil {
		writeError(w, http.StatusInternalServerError, apperrors.ErrDatabase, "failed to count records")
		return
	}
	queued, err := h.repo.CountQueueItems()
	if err != nil {
		writeError(w, http.StatusInternalServerError, apperrors.ErrDatabase, "failed to count queue items")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"manager": h.manager.GetStatus(),
		"records": map[string]int{
			"synced":   counts[models.SyncStatusSynced],
			"pending":  counts[models.SyncStatusPending],
			"conflict": counts[models.SyncStatusConflict],
		},
		"queued": queued,
	})
}

// TriggerSync handles POST /api/sync/trigger. If a cycle is already running
// the response carries a zero-valued result.
func (h *APIHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	result := h.manager.Process(r.Context())
	writeJSON(w, http.StatusOK, result)
}

// saveAnnotationRequest is the body of PUT /api/annotations/{id}.
type saveAnnotationRequest struct {
	DatasetID string          `json:"dataset_id"`
	EpisodeID string          `json:"episode_id"`
	Data      json.RawMessage `json:"data"`
}

// SaveAnnotation handles PUT /api/annotations/{id}: the optimistic local
// write. The record is stored as pending and a queue descriptor is appended:
// a create for a first edit, an update otherwise. Rapid successive edits each
// append their own descriptor.
func (h *APIHandler) SaveAnnotation(w http.ResponseWriter, r *http.Request) {
	annotationID := chi.URLParam(r, "id")

	var req saveAnnotationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, apperrors.ErrInvalid, "invalid request body")
		return
	}
	if req.DatasetID == "" || req.EpisodeID == "" {
		writeError(w, http.StatusBadRequest, apperrors.ErrValidation, "dataset_id and episode_id are required")
		return
	}

	changeType := models.ChangeTypeUpdate
	if _, err := h.repo.GetRecord(annotationID); apperrors.Is(err, apperrors.ErrRecordNotFound) {
		changeType = models.ChangeTypeCreate
	}

	record, err := h.repo.SaveRecord(req.DatasetID, req.EpisodeID, annotationID, req.Data, models.SyncStatusPending)
	if err != nil {
		writeError(w, http.StatusInternalServerError, apperrors.ErrDatabase, "failed to save annotation")
		return
	}

	if _, err := h.repo.EnqueueChange(changeType, req.DatasetID, req.EpisodeID, annotationID, req.Data); err != nil {
		writeError(w, http.StatusInternalServerError, apperrors.ErrDatabase, "failed to queue change")
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// GetAnnotation handles GET /api/annotations/{id}.
func (h *APIHandler) GetAnnotation(w http.ResponseWriter, r *http.Request) {
	annotationID := chi.URLParam(r, "id")

	record, err := h.repo.GetRecord(annotationID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, apperrors.ErrRecordNotFound, "annotation not found")
			return
		}
		writeError(w, http.StatusInternalServerError, apperrors.ErrDatabase, "failed to load annotation")
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// ListAnnotations handles GET /api/annotations?dataset_id= or ?status=.
func (h *APIHandler) ListAnnotations(w http.ResponseWriter, r *http.Request) {
	datasetID := r.URL.Query().Get("dataset_id")
	status := r.URL.Query().Get("status")

	var records []*models.AnnotationRecord
	var err error

	switch {
	case datasetID != "":
		records, err = h.repo.ListRecordsByDataset(datasetID)
	case status != "":
		records, err = h.repo.ListRecordsByStatus(models.SyncStatus(status))
	default:
		writeError(w, http.StatusBadRequest, apperrors.ErrValidation, "dataset_id or status is required")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, apperrors.ErrDatabase, "failed to list annotations")
		return
	}

	if records == nil {
		records = []*models.AnnotationRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// deleteAnnotationRequest is the body of DELETE /api/annotations/{id}.
type deleteAnnotationRequest struct {
	DatasetID string `json:"dataset_id"`
	EpisodeID string `json:"episode_id"`
}

// DeleteAnnotation handles DELETE /api/annotations/{id}: removes the local
// record and queues the server-side deletion.
func (h *APIHandler) DeleteAnnotation(w http.ResponseWriter, r *http.Request) {
	annotationID := chi.URLParam(r, "id")

	var req deleteAnnotationRequest
	if err := decodeBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, apperrors.ErrInvalid, "invalid request body")
		return
	}

	if err := h.repo.DeleteRecord(annotationID); err != nil {
		writeError(w, http.StatusInternalServerError, apperrors.ErrDatabase, "failed to delete annotation")
		return
	}

	if _, err := h.repo.EnqueueChange(models.ChangeTypeDelete, req.DatasetID, req.EpisodeID, annotationID, nil); err != nil {
		writeError(w, http.StatusInternalServerError, apperrors.ErrDatabase, "failed to queue deletion")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": annotationID})
}

// resolveRequest is the body of POST /api/sync/resolve.
type resolveRequest struct {
	Choice   conflict.Choice `json:"choice"`
	Conflict conflict.Pair   `json:"conflict"`
}

// ResolveConflict handles POST /api/sync/resolve.
func (h *APIHandler) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, apperrors.ErrInvalid, "invalid request body")
		return
	}

	if err := h.resolver.Resolve(&req.Conflict, req.Choice); err != nil {
		if conflict.IsConflictError(err) {
			writeError(w, http.StatusUnprocessableEntity, apperrors.ErrSyncConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, apperrors.ErrInternal, "failed to resolve conflict")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"annotation_id": req.Conflict.AnnotationID,
		"choice":        req.Choice,
	})
}

// Reset handles POST /api/reset: wipes records, queue, and metadata. Used on
// logout.
func (h *APIHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.ClearAll(); err != nil {
		writeError(w, http.StatusInternalServerError, apperrors.ErrDatabase, "failed to reset store")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reset": true})
}

// =====================================================
// Helpers
// =====================================================

func decodeBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code apperrors.ErrorCode, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error":   string(code),
		"message": message,
	})
}
