package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"smart-parking-backend/internal/metric"
	"smart-parking-backend/internal/model"
	"smart-parking-backend/internal/store"
)

// kmPerDegree approximates one degree of latitude in kilometers. The
// viewport cache path collapses the rectangle to a covering circle; the
// result set is approximate and callers must not assume exact bbox
// semantics from it.
const kmPerDegree = 111.32

// geoSearchCap bounds how many members one radius search may return.
const geoSearchCap = 2000

// spotResponse is the wire form of a parking spot.
type spotResponse struct {
	ID           int      `json:"id"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	Location     string   `json:"location"`
	City         string   `json:"city,omitempty"`
	Area         string   `json:"area,omitempty"`
	Status       string   `json:"status"`
	PricePerHour *float64 `json:"price_per_hour,omitempty"`
	LastUpdated  string   `json:"last_updated,omitempty"`
}

// viewportResponse wraps a viewport query result.
type viewportResponse struct {
	Spots []spotResponse `json:"spots"`
	Total int            `json:"total"`
}

func toSpotResponse(s *model.ParkingSpot) spotResponse {
	resp := spotResponse{
		ID:           s.ID,
		Latitude:     s.Latitude,
		Longitude:    s.Longitude,
		Location:     s.Location,
		City:         s.City,
		Area:         s.Area,
		Status:       s.Status,
		PricePerHour: s.PricePerHour(),
	}
	if !s.LastUpdated.IsZero() {
		resp.LastUpdated = s.LastUpdated.UTC().Format(time.RFC3339)
	}
	return resp
}

// GetSpotsInViewport handles GET /api/parking/spots/in_viewport. The cache
// is preferred; on a miss or any cache error the exact bounding-box query
// against the store answers instead. Neither path surfaces cache failures
// to the caller.
func (h *Handler) GetSpotsInViewport(c *gin.Context) {
	q, err := parseViewportQuery(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	spots, fromCache := h.viewportFromCache(c.Request.Context(), q)
	if fromCache {
		metric.ViewportCacheHits.Inc()
	} else {
		metric.ViewportCacheMisses.Inc()
		spots, err = h.store.SpotsInViewport(c.Request.Context(), q)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve spots"})
			return
		}
	}

	resp := viewportResponse{Spots: make([]spotResponse, 0, len(spots))}
	for i := range spots {
		resp.Spots = append(resp.Spots, toSpotResponse(&spots[i]))
	}
	resp.Total = len(resp.Spots)
	c.JSON(http.StatusOK, resp)
}

func parseViewportQuery(c *gin.Context) (store.ViewportQuery, error) {
	var q store.ViewportQuery
	var err error
	if q.SWLat, err = strconv.ParseFloat(c.Query("swLat"), 64); err != nil {
		return q, errors.New("swLat is required and must be a number")
	}
	if q.SWLng, err = strconv.ParseFloat(c.Query("swLng"), 64); err != nil {
		return q, errors.New("swLng is required and must be a number")
	}
	if q.NELat, err = strconv.ParseFloat(c.Query("neLat"), 64); err != nil {
		return q, errors.New("neLat is required and must be a number")
	}
	if q.NELng, err = strconv.ParseFloat(c.Query("neLng"), 64); err != nil {
		return q, errors.New("neLng is required and must be a number")
	}

	q.Status = c.Query("status")
	if q.Status != "" && !model.ValidStatus(q.Status) {
		return q, errors.New("status must be one of Available, Occupied, Reserved, Maintenance")
	}

	q.Limit = 100
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > 500 {
			return q, errors.New("limit must be between 1 and 500")
		}
		q.Limit = limit
	}
	return q, nil
}

// viewportFromCache runs the radius search + hash hydration path. It is a
// hit only when at least one spot hydrated with valid coordinates and
// status; anything else, including cache errors, is a miss.
func (h *Handler) viewportFromCache(ctx context.Context, q store.ViewportQuery) ([]model.ParkingSpot, bool) {
	status := q.Status
	if status == "" {
		status = model.StatusAvailable
	}

	centerLat := (q.SWLat + q.NELat) / 2
	centerLng := (q.SWLng + q.NELng) / 2
	radiusKm := max(abs(q.NELat-q.SWLat), abs(q.NELng-q.SWLng)) * kmPerDegree

	ids, err := h.cache.SearchRadius(ctx, status, centerLat, centerLng, radiusKm, geoSearchCap)
	if err != nil {
		log.Printf("viewport cache search failed: %v", err)
		return nil, false
	}
	if len(ids) == 0 {
		return nil, false
	}

	spots := make([]model.ParkingSpot, 0, len(ids))
	for _, id := range ids {
		if q.Limit > 0 && len(spots) >= q.Limit {
			break
		}
		spot, err := h.cache.GetSpot(ctx, id)
		if err != nil {
			log.Printf("viewport cache hydration failed for spot %d: %v", id, err)
			return nil, false
		}
		if spot == nil || spot.Latitude == nil || spot.Longitude == nil {
			continue
		}
		spots = append(spots, *spot)
	}

	if len(spots) == 0 {
		return nil, false
	}
	return spots, true
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// GetSpots handles GET /api/parking/spots.
func (h *Handler) GetSpots(c *gin.Context) {
	spots, err := h.store.ListSpots(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve spots"})
		return
	}
	resp := make([]spotResponse, 0, len(spots))
	for i := range spots {
		resp = append(resp, toSpotResponse(&spots[i]))
	}
	c.JSON(http.StatusOK, resp)
}

// GetSpot handles GET /api/parking/spots/:id.
func (h *Handler) GetSpot(c *gin.Context) {
	spotID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid spot ID"})
		return
	}

	spot, err := h.store.GetSpotByID(c.Request.Context(), spotID)
	if err != nil {
		if errors.Is(err, store.ErrSpotNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Spot not found"})
		} else {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve spot"})
		}
		return
	}
	c.JSON(http.StatusOK, toSpotResponse(spot))
}

type spotRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Location  string   `json:"location" binding:"required"`
	City      string   `json:"city"`
	Area      string   `json:"area"`
	Status    string   `json:"status"`
}

// CreateSpot handles POST /api/parking/spots.
func (h *Handler) CreateSpot(c *gin.Context) {
	var req spotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Status == "" {
		req.Status = model.StatusAvailable
	}
	if !model.ValidStatus(req.Status) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
		return
	}

	spot := model.ParkingSpot{
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		Location:    req.Location,
		City:        req.City,
		Area:        req.Area,
		Status:      req.Status,
		LastUpdated: time.Now().UTC(),
	}
	if err := h.store.CreateSpot(c.Request.Context(), &spot); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to create spot"})
		return
	}

	h.mirrorSpot(c.Request.Context(), spot.ID, "")
	c.JSON(http.StatusCreated, toSpotResponse(&spot))
}

// UpdateSpot handles PUT /api/parking/spots/:id.
func (h *Handler) UpdateSpot(c *gin.Context) {
	spotID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid spot ID"})
		return
	}

	var req spotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Status != "" && !model.ValidStatus(req.Status) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
		return
	}

	previous, err := h.store.GetSpotByID(c.Request.Context(), spotID)
	if err != nil {
		if errors.Is(err, store.ErrSpotNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Spot not found"})
		} else {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve spot"})
		}
		return
	}

	spot := model.ParkingSpot{
		ID:          spotID,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		Location:    req.Location,
		City:        req.City,
		Area:        req.Area,
		Status:      req.Status,
		LastUpdated: time.Now().UTC(),
	}
	if err := h.store.UpdateSpot(c.Request.Context(), &spot); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to update spot"})
		return
	}

	h.mirrorSpot(c.Request.Context(), spotID, previous.Status)

	updated, err := h.store.GetSpotByID(c.Request.Context(), spotID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve spot"})
		return
	}
	c.JSON(http.StatusOK, toSpotResponse(updated))
}

// DeleteSpot handles DELETE /api/parking/spots/:id.
func (h *Handler) DeleteSpot(c *gin.Context) {
	spotID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid spot ID"})
		return
	}

	spot, err := h.store.GetSpotByID(c.Request.Context(), spotID)
	if err != nil {
		if errors.Is(err, store.ErrSpotNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Spot not found"})
		} else {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve spot"})
		}
		return
	}

	if err := h.store.DeleteSpot(c.Request.Context(), spotID); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete spot"})
		return
	}

	// Best effort: drop the deleted spot from its cache buckets.
	if err := h.cache.RemoveFromStatus(c.Request.Context(), spotID, spot.Status); err != nil {
		log.Printf("cache removal failed for deleted spot %d: %v", spotID, err)
	}

	c.Status(http.StatusNoContent)
}

// mirrorSpot refreshes the cache entry after an admin write. Failures are
// logged only; the next flush or warm-up heals the mirror.
func (h *Handler) mirrorSpot(ctx context.Context, spotID int, oldStatus string) {
	spot, err := h.store.GetSpotByID(ctx, spotID)
	if err != nil {
		log.Printf("cache mirror refresh skipped for spot %d: %v", spotID, err)
		return
	}
	if err := h.cache.UpsertSpot(ctx, spot); err != nil {
		log.Printf("cache upsert failed for spot %d: %v", spotID, err)
		return
	}
	if oldStatus != "" && oldStatus != spot.Status {
		if err := h.cache.RemoveFromStatus(ctx, spotID, oldStatus); err != nil {
			log.Printf("cache removal from %s failed for spot %d: %v", oldStatus, spotID, err)
		}
	}
}
