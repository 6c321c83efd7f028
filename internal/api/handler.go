package api

import (
	"github.com/SherClockHolmes/webpush-go"

	"smart-parking-backend/internal/cache"
	"smart-parking-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store   store.Store
	cache   cache.SpotCache
	webpush *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, c cache.SpotCache, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		store:   s,
		cache:   c,
		webpush: webpushOptions,
	}
}
