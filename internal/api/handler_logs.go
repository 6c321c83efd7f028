package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// GetStatusLogs handles GET /api/status_logs.
func (h *Handler) GetStatusLogs(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 1000 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 1000"})
			return
		}
		limit = parsed
	}

	logs, err := h.store.ListStatusLogs(c.Request.Context(), limit)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve status logs"})
		return
	}
	c.JSON(http.StatusOK, logs)
}

// GetStatusLogsBySpot handles GET /api/status_logs/spot/:spot_id.
func (h *Handler) GetStatusLogsBySpot(c *gin.Context) {
	spotID, err := strconv.Atoi(c.Param("spot_id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid spot ID"})
		return
	}

	logs, err := h.store.StatusLogsBySpot(c.Request.Context(), spotID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve status logs"})
		return
	}
	c.JSON(http.StatusOK, logs)
}
