package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"smart-parking-backend/internal/model"
	"smart-parking-backend/internal/store"
)

func setupSubscriptionRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.ParkingSpot{}, &model.PaidParking{}, &model.PushSubscription{},
	))

	handler := NewHandler(store.NewGormStore(db), newFakeSpotCache(), nil)
	r := gin.New()
	r.PUT("/api/subscriptions", handler.PutSubscription)
	r.GET("/api/subscriptions", handler.GetSubscription)
	r.DELETE("/api/subscriptions", handler.DeleteSubscription)
	return r, db
}

func TestPutSubscription_InvalidBody(t *testing.T) {
	router, _ := setupSubscriptionRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("PUT", "/api/subscriptions", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid request"}`, w.Body.String())
}

func TestSubscriptionRoundTrip(t *testing.T) {
	router, db := setupSubscriptionRouter(t)

	for _, id := range []int{1, 2, 3} {
		require.NoError(t, db.Create(&model.ParkingSpot{
			ID: id, Location: "Spot", Status: model.StatusAvailable,
		}).Error)
	}

	put := func(spots []int) {
		body, _ := json.Marshal(gin.H{
			"endpoint":         "https://example.com/sub",
			"p256dh":           "key",
			"auth":             "secret",
			"subscribed_spots": spots,
		})
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("PUT", "/api/subscriptions", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	get := func() []int {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/subscriptions?endpoint=https://example.com/sub", nil)
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			SubscribedSpots []int `json:"subscribed_spots"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		return resp.SubscribedSpots
	}

	put([]int{1, 3})
	assert.ElementsMatch(t, []int{1, 3}, get())

	// Replacing the subscription swaps the watched set, not appends to it.
	put([]int{2})
	assert.ElementsMatch(t, []int{2}, get())

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("DELETE", "/api/subscriptions",
		bytes.NewBufferString(`{"endpoint":"https://example.com/sub"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/api/subscriptions?endpoint=https://example.com/sub", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
