// Package handler implements the query API endpoints.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/pricewatch/models"
)

// Version is reported by the health endpoint.
var Version = "0.1.0"

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health returns a handler for GET /api/v1/health.
//
// The status degrades when the store does not answer a ping within two
// seconds; the endpoint itself always answers 200.
func Health(store Pinger, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status, storeStatus := "healthy", "ok"
		if err := store.Ping(ctx); err != nil {
			status, storeStatus = "degraded", err.Error()
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Store:   storeStatus,
			Version: Version,
		})
	}
}
