package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/robolabel/annosync/internal/connectivity"
	"github.com/robolabel/annosync/internal/db"
	"github.com/robolabel/annosync/internal/logging"
	"github.com/robolabel/annosync/internal/models"
)

const (
	// MaxRetries caps transport attempts per queue item. An exhausted item
	// stays queued and is reported as a standing failure, never dropped.
	MaxRetries = 3

	// DefaultItemDelay is the pause between items within one cycle,
	// throttling the backend instead of bursting the whole queue at once.
	DefaultItemDelay = 1 * time.Second
)

// SyncResult summarizes one processing cycle.
type SyncResult struct {
	Success     bool     `json:"success"`
	SyncedCount int      `json:"synced_count"`
	FailedCount int      `json:"failed_count"`
	Errors      []string `json:"errors"`
}

// zeroResult is what short-circuited cycles report: nothing synced, nothing
// failed.
func zeroResult() *SyncResult {
	return &SyncResult{Success: true, Errors: []string{}}
}

// Processor drains the pending queue once per Process call, applying the
// retry and conflict policy. It is the sole writer of sync-status transitions
// away from pending.
type Processor struct {
	repo      *db.Repository
	transport Transport
	observer  connectivity.Observer
	itemDelay time.Duration
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithItemDelay overrides the inter-item throttle delay.
func WithItemDelay(d time.Duration) ProcessorOption {
	return func(p *Processor) { p.itemDelay = d }
}

// NewProcessor creates a Processor.
func NewProcessor(repo *db.Repository, transport Transport, observer connectivity.Observer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		repo:      repo,
		transport: transport,
		observer:  observer,
		itemDelay: DefaultItemDelay,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process drains all queued items in creation order. Item failures never
// abort the cycle; they accumulate into the result. When offline, the call
// returns a zero-valued result without touching the store.
func (p *Processor) Process(ctx context.Context) (*SyncResult, error) {
	if !p.observer.IsOnline() {
		logging.Debug("Skipping sync cycle, offline", nil)
		return zeroResult(), nil
	}

	items, err := p.repo.ListPendingQueueItems()
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return zeroResult(), nil
	}

	logging.Info("Processing sync queue",
		map[string]interface{}{"count": len(items)})

	result := &SyncResult{Errors: []string{}}

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			// Cycle cancelled mid-drain; remaining items stay queued.
			result.Success = result.FailedCount == 0
			return result, err
		}

		p.processItem(ctx, item, result)

		// Throttle between items, not after the last one.
		if i < len(items)-1 && p.itemDelay > 0 {
			select {
			case <-ctx.Done():
				result.Success = result.FailedCount == 0
				return result, ctx.Err()
			case <-time.After(p.itemDelay):
			}
		}
	}

	result.Success = result.FailedCount == 0

	logging.Info("Sync cycle completed",
		map[string]interface{}{
			"synced": result.SyncedCount,
			"failed": result.FailedCount,
		})

	return result, nil
}

// processItem applies the per-item state machine.
func (p *Processor) processItem(ctx context.Context, item *models.SyncQueueItem, result *SyncResult) {
	if item.RetryCount >= MaxRetries {
		// Persistent failure: surfaced, not silently dropped and not re-sent.
		msg := item.LastError
		if msg == "" {
			msg = fmt.Sprintf("change %s exceeded max retries", item.ID)
		}
		result.FailedCount++
		result.Errors = append(result.Errors, msg)
		logging.Warn("Queue item exceeded max retries",
			map[string]interface{}{
				"item_id":       item.ID.String(),
				"annotation_id": item.AnnotationID,
				"retry_count":   item.RetryCount,
			})
		return
	}

	err := p.dispatch(ctx, item)

	switch {
	case err == nil:
		if uerr := p.repo.UpdateRecordStatus(item.AnnotationID, models.SyncStatusSynced, time.Now().Unix()); uerr != nil {
			logging.Error("Failed to mark record synced", uerr,
				map[string]interface{}{"annotation_id": item.AnnotationID})
		}
		if rerr := p.repo.RemoveQueueItem(item.ID); rerr != nil {
			logging.Error("Failed to remove queue item", rerr,
				map[string]interface{}{"item_id": item.ID.String()})
		}
		result.SyncedCount++

	case IsConflict(err):
		// Retrying a stale write against a moved target is unsafe; the
		// conflict waits for explicit resolution.
		if uerr := p.repo.UpdateRecordStatus(item.AnnotationID, models.SyncStatusConflict, 0); uerr != nil {
			logging.Error("Failed to mark record conflicted", uerr,
				map[string]interface{}{"annotation_id": item.AnnotationID})
		}
		if rerr := p.repo.RemoveQueueItem(item.ID); rerr != nil {
			logging.Error("Failed to remove conflicted queue item", rerr,
				map[string]interface{}{"item_id": item.ID.String()})
		}
		result.FailedCount++
		logging.Warn("Conflict detected, awaiting manual resolution",
			map[string]interface{}{
				"annotation_id": item.AnnotationID,
				"dataset_id":    item.DatasetID,
			})

	default:
		if berr := p.repo.BumpRetry(item.ID, err.Error()); berr != nil {
			logging.Error("Failed to bump retry count", berr,
				map[string]interface{}{"item_id": item.ID.String()})
		}
		result.FailedCount++
		result.Errors = append(result.Errors, err.Error())
		logging.Warn("Queue item failed, will retry",
			map[string]interface{}{
				"item_id":       item.ID.String(),
				"annotation_id": item.AnnotationID,
				"retry_count":   item.RetryCount + 1,
				"error":         err.Error(),
			})
	}
}

// dispatch routes the item to the matching transport call.
func (p *Processor) dispatch(ctx context.Context, item *models.SyncQueueItem) error {
	switch item.Type {
	case models.ChangeTypeCreate:
		return p.transport.CreateAnnotation(ctx, item.DatasetID, item.EpisodeID, item.Payload)
	case models.ChangeTypeUpdate:
		return p.transport.UpdateAnnotation(ctx, item.AnnotationID, item.Payload)
	case models.ChangeTypeDelete:
		return p.transport.DeleteAnnotation(ctx, item.AnnotationID)
	default:
		return fmt.Errorf("unknown change type %q", item.Type)
	}
}
