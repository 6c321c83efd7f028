package ingest

import (
	"context"
	"fmt"
	"log"
	"sort"

	"smart-parking-backend/internal/cache"
	"smart-parking-backend/internal/metric"
	"smart-parking-backend/internal/model"
	"smart-parking-backend/internal/store"
)

// Synchronizer applies flush snapshots to the durable store and keeps the
// cache mirror (hash, status sets, geo indexes) consistent with it.
type Synchronizer struct {
	store store.Store
	cache cache.SpotCache
}

// NewSynchronizer creates a synchronizer over the given store and cache.
func NewSynchronizer(s store.Store, c cache.SpotCache) *Synchronizer {
	return &Synchronizer{store: s, cache: c}
}

// ApplySnapshot persists every pending update and mirrors it into the
// cache. A failure on one spot is logged and skipped; the rest of the
// snapshot still goes through. It returns the ids of spots whose status
// changed to Available, for the notification dispatcher.
func (y *Synchronizer) ApplySnapshot(ctx context.Context, snapshot map[int]pendingUpdate) []int {
	// Stable order keeps logs and tests deterministic.
	ids := make([]int, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var nowAvailable []int
	for _, spotID := range ids {
		update := snapshot[spotID]
		changed, err := y.applyOne(ctx, spotID, update)
		if err != nil {
			log.Printf("error updating spot %d: %v", spotID, err)
			metric.FlushSpotsFailed.Inc()
			continue
		}
		metric.FlushSpotsApplied.Inc()
		if changed && update.Status == model.StatusAvailable {
			nowAvailable = append(nowAvailable, spotID)
		}
	}
	return nowAvailable
}

// applyOne runs the store-then-cache sequence for a single spot. The add
// to the new status buckets happens before the conditional removal from
// the old ones: the worst interruption leaves a spot doubly bucketed,
// which the next flush heals, never absent from every bucket.
func (y *Synchronizer) applyOne(ctx context.Context, spotID int, update pendingUpdate) (bool, error) {
	var oldStatus string
	current, err := y.store.GetSpotByID(ctx, spotID)
	if err == nil {
		oldStatus = current.Status
	} else if err != store.ErrSpotNotFound {
		return false, fmt.Errorf("pre-update read failed: %w", err)
	}

	updated, err := y.store.UpdateSpotStatus(ctx, spotID, update.Status, update.ObservedAt)
	if err != nil {
		return false, fmt.Errorf("store update failed: %w", err)
	}

	changed := oldStatus != "" && update.Status != oldStatus

	// Mirror upsert is unconditional so the hash timestamp stays fresh
	// even when the status did not change.
	if err := y.cache.UpsertSpot(ctx, updated); err != nil {
		// Cache write failures self-heal on the next flush or warm-up.
		log.Printf("cache upsert failed for spot %d: %v", spotID, err)
		return changed, nil
	}

	if updated.Latitude == nil || updated.Longitude == nil {
		log.Printf("spot %d has no coordinates; geo index not updated", spotID)
	}

	if changed {
		if err := y.cache.RemoveFromStatus(ctx, spotID, oldStatus); err != nil {
			log.Printf("cache removal from %s failed for spot %d: %v", oldStatus, spotID, err)
		}
	}

	return changed, nil
}

// Warm rebuilds the complete cache mirror from the durable store. It runs
// on startup, before any query traffic is served from the cache.
func (y *Synchronizer) Warm(ctx context.Context) error {
	spots, err := y.store.ListSpots(ctx)
	if err != nil {
		return fmt.Errorf("failed to list spots for cache warm-up: %w", err)
	}

	var warmed int
	for i := range spots {
		if err := y.cache.UpsertSpot(ctx, &spots[i]); err != nil {
			log.Printf("error preloading spot %d: %v", spots[i].ID, err)
			continue
		}
		warmed++
	}

	log.Printf("cache preload complete: %d/%d spots indexed", warmed, len(spots))
	return nil
}
