package api

import (
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"smart-parking-backend/config"
	spotcache "smart-parking-backend/internal/cache"
	"smart-parking-backend/internal/mw"
	"smart-parking-backend/internal/store"
	"smart-parking-backend/internal/ws"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.ServerConfig, s store.Store, c spotcache.SpotCache, hub *ws.Hub, webpushOptions *webpush.Options) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(s, c, webpushOptions)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	// API group
	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		parking := api.Group("/parking")
		{
			// Viewport queries go through the spot mirror; no response
			// cache on top, staleness is already bounded by the flush cycle.
			parking.GET("/spots/in_viewport", handler.GetSpotsInViewport)

			parking.GET("/spots", caching, handler.GetSpots)
			parking.GET("/spots/:id", handler.GetSpot)
			parking.POST("/spots", handler.CreateSpot)
			parking.PUT("/spots/:id", handler.UpdateSpot)
			parking.DELETE("/spots/:id", handler.DeleteSpot)
		}

		api.GET("/status_logs", caching, handler.GetStatusLogs)
		api.GET("/status_logs/spot/:spot_id", handler.GetStatusLogsBySpot)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	// Live updates bypass the API middleware chain.
	if hub != nil {
		r.GET("/ws", gin.WrapH(hub))
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Smart Parking Backend Running!"})
	})

	return r
}
