package ingest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"smart-parking-backend/internal/model"
	"smart-parking-backend/internal/store"
)

func ptrF(v float64) *float64 { return &v }

// fakeStore is an in-memory store.Store with per-spot error injection.
type fakeStore struct {
	mu         sync.Mutex
	spots      map[int]model.ParkingSpot
	logs       []model.SpotStatusLog
	failUpdate map[int]bool
	logErr     error
}

func newFakeStore(spots ...model.ParkingSpot) *fakeStore {
	s := &fakeStore{
		spots:      make(map[int]model.ParkingSpot),
		failUpdate: make(map[int]bool),
	}
	for _, spot := range spots {
		s.spots[spot.ID] = spot
	}
	return s
}

func (s *fakeStore) DB() *gorm.DB { return nil }

func (s *fakeStore) GetSpotByID(_ context.Context, spotID int) (*model.ParkingSpot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	spot, ok := s.spots[spotID]
	if !ok {
		return nil, store.ErrSpotNotFound
	}
	copied := spot
	return &copied, nil
}

func (s *fakeStore) ListSpots(context.Context) ([]model.ParkingSpot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int, 0, len(s.spots))
	for id := range s.spots {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]model.ParkingSpot, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.spots[id])
	}
	return out, nil
}

func (s *fakeStore) CreateSpot(_ context.Context, spot *model.ParkingSpot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spots[spot.ID] = *spot
	return nil
}

func (s *fakeStore) UpdateSpot(_ context.Context, spot *model.ParkingSpot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.spots[spot.ID]; !ok {
		return store.ErrSpotNotFound
	}
	s.spots[spot.ID] = *spot
	return nil
}

func (s *fakeStore) DeleteSpot(_ context.Context, spotID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.spots[spotID]; !ok {
		return store.ErrSpotNotFound
	}
	delete(s.spots, spotID)
	return nil
}

func (s *fakeStore) UpdateSpotStatus(_ context.Context, spotID int, status string, at time.Time) (*model.ParkingSpot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdate[spotID] {
		return nil, fmt.Errorf("injected store failure for spot %d", spotID)
	}
	spot, ok := s.spots[spotID]
	if !ok {
		return nil, store.ErrSpotNotFound
	}
	spot.Status = status
	spot.LastUpdated = at
	s.spots[spotID] = spot
	copied := spot
	return &copied, nil
}

func (s *fakeStore) SpotsInViewport(_ context.Context, q store.ViewportQuery) ([]model.ParkingSpot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ParkingSpot
	for _, spot := range s.spots {
		if spot.Latitude == nil || spot.Longitude == nil {
			continue
		}
		if *spot.Latitude < q.SWLat || *spot.Latitude > q.NELat ||
			*spot.Longitude < q.SWLng || *spot.Longitude > q.NELng {
			continue
		}
		if q.Status != "" && spot.Status != q.Status {
			continue
		}
		out = append(out, spot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUpdated.After(out[j].LastUpdated) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *fakeStore) AppendStatusLog(_ context.Context, spotID int, status string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.logErr != nil {
		return s.logErr
	}
	s.logs = append(s.logs, model.SpotStatusLog{
		ID:        int64(len(s.logs) + 1),
		SpotID:    spotID,
		Status:    status,
		Timestamp: at,
	})
	return nil
}

func (s *fakeStore) ListStatusLogs(context.Context, int) ([]model.SpotStatusLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.SpotStatusLog(nil), s.logs...), nil
}

func (s *fakeStore) StatusLogsBySpot(_ context.Context, spotID int) ([]model.SpotStatusLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.SpotStatusLog
	for _, l := range s.logs {
		if l.SpotID == spotID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *fakeStore) logCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.logs)
}

func (s *fakeStore) spotStatus(spotID int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spots[spotID].Status
}

// fakeCache mirrors the cache.SpotCache contract with plain maps.
type fakeCache struct {
	mu         sync.Mutex
	hashes     map[int]model.ParkingSpot
	statusSets map[string]map[int]bool
	geoSets    map[string]map[int]bool

	upsertErr error
	removeErr error
	searchErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		hashes:     make(map[int]model.ParkingSpot),
		statusSets: make(map[string]map[int]bool),
		geoSets:    make(map[string]map[int]bool),
	}
}

func (c *fakeCache) Ping(context.Context) error { return nil }

func (c *fakeCache) UpsertSpot(_ context.Context, spot *model.ParkingSpot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.upsertErr != nil {
		return c.upsertErr
	}
	c.hashes[spot.ID] = *spot
	if c.statusSets[spot.Status] == nil {
		c.statusSets[spot.Status] = make(map[int]bool)
	}
	c.statusSets[spot.Status][spot.ID] = true
	if spot.Latitude != nil && spot.Longitude != nil {
		if c.geoSets[spot.Status] == nil {
			c.geoSets[spot.Status] = make(map[int]bool)
		}
		c.geoSets[spot.Status][spot.ID] = true
	}
	return nil
}

func (c *fakeCache) RemoveFromStatus(_ context.Context, spotID int, status string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.removeErr != nil {
		return c.removeErr
	}
	delete(c.statusSets[status], spotID)
	delete(c.geoSets[status], spotID)
	return nil
}

func (c *fakeCache) SearchRadius(_ context.Context, status string, _, _, _ float64, _ int) ([]int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.searchErr != nil {
		return nil, c.searchErr
	}
	var ids []int
	for id := range c.geoSets[status] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

func (c *fakeCache) GetSpot(_ context.Context, spotID int) (*model.ParkingSpot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	spot, ok := c.hashes[spotID]
	if !ok {
		return nil, nil
	}
	copied := spot
	return &copied, nil
}

func (c *fakeCache) inStatusSet(status string, spotID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusSets[status][spotID]
}

func (c *fakeCache) inGeoSet(status string, spotID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.geoSets[status][spotID]
}

func (c *fakeCache) hashStatus(spotID int) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hashes[spotID].Status
}

// statusMemberships returns every status set the spot currently belongs to.
func (c *fakeCache) statusMemberships(spotID int) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for status, members := range c.statusSets {
		if members[spotID] {
			out = append(out, status)
		}
	}
	sort.Strings(out)
	return out
}
