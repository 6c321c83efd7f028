// Package cache maintains the Redis mirror of the parking spot records: a
// per-spot hash, one membership set per status, and one geo index per
// status. Nothing in here is a source of truth; every key can be rebuilt
// from the durable store.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"smart-parking-backend/config"
	"smart-parking-backend/internal/model"
)

// SpotCache defines the cache operations used by the ingestion pipeline and
// the viewport query path.
type SpotCache interface {
	// UpsertSpot overwrites the spot's hash and adds it to the status set
	// and, when coordinates are known, the geo index for its status.
	UpsertSpot(ctx context.Context, spot *model.ParkingSpot) error

	// RemoveFromStatus drops the spot from the given status's set and geo
	// index. Called only after the spot was added under its new status.
	RemoveFromStatus(ctx context.Context, spotID int, status string) error

	// SearchRadius returns the ids of spots with the given status within
	// radiusKm of the center, nearest first.
	SearchRadius(ctx context.Context, status string, lat, lng, radiusKm float64, count int) ([]int, error)

	// GetSpot hydrates a spot from its mirror hash. A missing or empty
	// hash returns (nil, nil).
	GetSpot(ctx context.Context, spotID int) (*model.ParkingSpot, error)

	// Ping verifies connectivity.
	Ping(ctx context.Context) error
}

func spotKey(spotID int) string        { return fmt.Sprintf("spot:%d", spotID) }
func statusKey(status string) string   { return fmt.Sprintf("spots:by_status:%s", status) }
func geoKey(status string) string      { return fmt.Sprintf("spots:geo:%s", status) }
func geoMember(spotID int) string      { return fmt.Sprintf("spot_%d", spotID) }

// parseGeoMember converts a geo index member ("spot_7" or a bare "7") back
// to a spot id.
func parseGeoMember(member string) (int, error) {
	v := member
	if len(v) > 5 && v[:5] == "spot_" {
		v = v[5:]
	}
	id, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("malformed geo member %q: %w", member, err)
	}
	return id, nil
}

// redisCache implements SpotCache on a Redis client.
type redisCache struct {
	rdb *redis.Client
}

// NewRedisCache connects to Redis with the given configuration.
func NewRedisCache(cfg *config.RedisConfig) SpotCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &redisCache{rdb: rdb}
}

// NewRedisCacheFromClient wraps an existing client; the tests use this.
func NewRedisCacheFromClient(rdb *redis.Client) SpotCache {
	return &redisCache{rdb: rdb}
}

func (c *redisCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *redisCache) UpsertSpot(ctx context.Context, spot *model.ParkingSpot) error {
	fields := map[string]any{
		"id":       strconv.Itoa(spot.ID),
		"location": spot.Location,
		"status":   spot.Status,
	}
	if spot.Latitude != nil {
		fields["latitude"] = strconv.FormatFloat(*spot.Latitude, 'f', -1, 64)
	} else {
		fields["latitude"] = ""
	}
	if spot.Longitude != nil {
		fields["longitude"] = strconv.FormatFloat(*spot.Longitude, 'f', -1, 64)
	} else {
		fields["longitude"] = ""
	}
	if spot.LastUpdated.IsZero() {
		fields["last_updated"] = ""
	} else {
		fields["last_updated"] = spot.LastUpdated.UTC().Format(time.RFC3339)
	}
	if price := spot.PricePerHour(); price != nil {
		fields["price_per_hour"] = strconv.FormatFloat(*price, 'f', 2, 64)
	}

	if err := c.rdb.HSet(ctx, spotKey(spot.ID), fields).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", spotKey(spot.ID), err)
	}

	if err := c.rdb.SAdd(ctx, statusKey(spot.Status), spot.ID).Err(); err != nil {
		return fmt.Errorf("sadd %s: %w", statusKey(spot.Status), err)
	}

	if spot.Latitude != nil && spot.Longitude != nil {
		err := c.rdb.GeoAdd(ctx, geoKey(spot.Status), &redis.GeoLocation{
			Name:      geoMember(spot.ID),
			Latitude:  *spot.Latitude,
			Longitude: *spot.Longitude,
		}).Err()
		if err != nil {
			return fmt.Errorf("geoadd %s: %w", geoKey(spot.Status), err)
		}
	}

	return nil
}

func (c *redisCache) RemoveFromStatus(ctx context.Context, spotID int, status string) error {
	if err := c.rdb.SRem(ctx, statusKey(status), spotID).Err(); err != nil {
		return fmt.Errorf("srem %s: %w", statusKey(status), err)
	}
	// Geo indexes are plain sorted sets underneath; ZREM drops the member
	// whether or not it was ever added.
	if err := c.rdb.ZRem(ctx, geoKey(status), geoMember(spotID)).Err(); err != nil {
		return fmt.Errorf("zrem %s: %w", geoKey(status), err)
	}
	return nil
}

func (c *redisCache) SearchRadius(ctx context.Context, status string, lat, lng, radiusKm float64, count int) ([]int, error) {
	members, err := c.rdb.GeoSearch(ctx, geoKey(status), &redis.GeoSearchQuery{
		Latitude:   lat,
		Longitude:  lng,
		Radius:     radiusKm,
		RadiusUnit: "km",
		Sort:       "ASC",
		Count:      count,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("geosearch %s: %w", geoKey(status), err)
	}

	ids := make([]int, 0, len(members))
	for _, m := range members {
		id, err := parseGeoMember(m)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (c *redisCache) GetSpot(ctx context.Context, spotID int) (*model.ParkingSpot, error) {
	raw, err := c.rdb.HGetAll(ctx, spotKey(spotID)).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", spotKey(spotID), err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	return spotFromHash(spotID, raw), nil
}

// spotFromHash rebuilds a ParkingSpot from mirror hash fields. Malformed
// numeric fields become nil coordinates; a missing status yields nil so the
// caller treats the entry as a miss.
func spotFromHash(spotID int, raw map[string]string) *model.ParkingSpot {
	status := raw["status"]
	if status == "" {
		return nil
	}

	spot := &model.ParkingSpot{
		ID:       spotID,
		Location: raw["location"],
		Status:   status,
	}
	if id, err := strconv.Atoi(raw["id"]); err == nil {
		spot.ID = id
	}
	if lat, err := strconv.ParseFloat(raw["latitude"], 64); err == nil {
		spot.Latitude = &lat
	}
	if lng, err := strconv.ParseFloat(raw["longitude"], 64); err == nil {
		spot.Longitude = &lng
	}
	if ts, err := time.Parse(time.RFC3339, raw["last_updated"]); err == nil {
		spot.LastUpdated = ts
	}
	if price, err := strconv.ParseFloat(raw["price_per_hour"], 64); err == nil {
		spot.PaidInfo = &model.PaidParking{SpotID: spot.ID, PricePerHour: price}
	}
	return spot
}
