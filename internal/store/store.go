package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"smart-parking-backend/internal/model"
)

// ErrSpotNotFound is returned when an operation targets a spot id that has
// no durable record.
var ErrSpotNotFound = errors.New("spot not found")

// Store defines the interface for all database operations the pipeline and
// API depend on. The durable store owns the canonical spot records; the
// cache is only ever a mirror of what lives here.
type Store interface {
	// DB exposes the underlying handle for auxiliary queries (subscriptions).
	DB() *gorm.DB

	GetSpotByID(ctx context.Context, spotID int) (*model.ParkingSpot, error)
	ListSpots(ctx context.Context) ([]model.ParkingSpot, error)
	CreateSpot(ctx context.Context, spot *model.ParkingSpot) error
	UpdateSpot(ctx context.Context, spot *model.ParkingSpot) error
	DeleteSpot(ctx context.Context, spotID int) error

	// UpdateSpotStatus writes the new status and refreshes the timestamp,
	// returning the updated record with pricing preloaded.
	UpdateSpotStatus(ctx context.Context, spotID int, status string, at time.Time) (*model.ParkingSpot, error)

	// SpotsInViewport runs an exact bounding-box query ordered by most
	// recent update. This is the fallback path when the cache cannot serve.
	SpotsInViewport(ctx context.Context, q ViewportQuery) ([]model.ParkingSpot, error)

	AppendStatusLog(ctx context.Context, spotID int, status string, at time.Time) error
	ListStatusLogs(ctx context.Context, limit int) ([]model.SpotStatusLog, error)
	StatusLogsBySpot(ctx context.Context, spotID int) ([]model.SpotStatusLog, error)
}

// ViewportQuery describes a bounding-box spot query.
type ViewportQuery struct {
	SWLat  float64
	SWLng  float64
	NELat  float64
	NELng  float64
	Status string // empty means any status
	Limit  int
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) GetSpotByID(ctx context.Context, spotID int) (*model.ParkingSpot, error) {
	var spot model.ParkingSpot
	err := s.db.WithContext(ctx).Preload("PaidInfo").First(&spot, spotID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSpotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch spot %d: %w", spotID, err)
	}
	return &spot, nil
}

func (s *gormStore) ListSpots(ctx context.Context) ([]model.ParkingSpot, error) {
	var spots []model.ParkingSpot
	if err := s.db.WithContext(ctx).Preload("PaidInfo").Find(&spots).Error; err != nil {
		return nil, fmt.Errorf("failed to list spots: %w", err)
	}
	return spots, nil
}

func (s *gormStore) CreateSpot(ctx context.Context, spot *model.ParkingSpot) error {
	if spot.LastUpdated.IsZero() {
		spot.LastUpdated = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(spot).Error; err != nil {
		return fmt.Errorf("failed to create spot: %w", err)
	}
	return nil
}

func (s *gormStore) UpdateSpot(ctx context.Context, spot *model.ParkingSpot) error {
	res := s.db.WithContext(ctx).Model(&model.ParkingSpot{ID: spot.ID}).Updates(spot)
	if res.Error != nil {
		return fmt.Errorf("failed to update spot %d: %w", spot.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrSpotNotFound
	}
	return nil
}

func (s *gormStore) DeleteSpot(ctx context.Context, spotID int) error {
	res := s.db.WithContext(ctx).Delete(&model.ParkingSpot{}, spotID)
	if res.Error != nil {
		return fmt.Errorf("failed to delete spot %d: %w", spotID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrSpotNotFound
	}
	return nil
}

func (s *gormStore) UpdateSpotStatus(ctx context.Context, spotID int, status string, at time.Time) (*model.ParkingSpot, error) {
	res := s.db.WithContext(ctx).Model(&model.ParkingSpot{}).
		Where("id = ?", spotID).
		Updates(map[string]any{"status": status, "last_updated": at})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update status for spot %d: %w", spotID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrSpotNotFound
	}
	return s.GetSpotByID(ctx, spotID)
}

func (s *gormStore) SpotsInViewport(ctx context.Context, q ViewportQuery) ([]model.ParkingSpot, error) {
	query := s.db.WithContext(ctx).Preload("PaidInfo").
		Where("latitude >= ? AND latitude <= ?", q.SWLat, q.NELat).
		Where("longitude >= ? AND longitude <= ?", q.SWLng, q.NELng)
	if q.Status != "" {
		query = query.Where("status = ?", q.Status)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	var spots []model.ParkingSpot
	if err := query.Order("last_updated DESC").Find(&spots).Error; err != nil {
		return nil, fmt.Errorf("viewport query failed: %w", err)
	}
	return spots, nil
}

func (s *gormStore) AppendStatusLog(ctx context.Context, spotID int, status string, at time.Time) error {
	entry := model.SpotStatusLog{SpotID: spotID, Status: status, Timestamp: at}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to append status log for spot %d: %w", spotID, err)
	}
	return nil
}

func (s *gormStore) ListStatusLogs(ctx context.Context, limit int) ([]model.SpotStatusLog, error) {
	query := s.db.WithContext(ctx).Order("timestamp DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var logs []model.SpotStatusLog
	if err := query.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to list status logs: %w", err)
	}
	return logs, nil
}

func (s *gormStore) StatusLogsBySpot(ctx context.Context, spotID int) ([]model.SpotStatusLog, error) {
	var logs []model.SpotStatusLog
	err := s.db.WithContext(ctx).
		Where("spot_id = ?", spotID).
		Order("timestamp DESC").
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list status logs for spot %d: %w", spotID, err)
	}
	return logs, nil
}
