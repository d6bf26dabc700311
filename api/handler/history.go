package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/pricewatch/cache"
	"github.com/use-agent/pricewatch/models"
	"github.com/use-agent/pricewatch/storage"
)

// Targets returns a handler for GET /api/v1/targets.
func Targets(store storage.Reader) gin.HandlerFunc {
	return func(c *gin.Context) {
		targets, err := store.Targets(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		if targets == nil {
			targets = []models.TargetSummary{}
		}
		c.JSON(http.StatusOK, models.TargetsResponse{Success: true, Targets: targets})
	}
}

// History returns a handler for GET /api/v1/history?url=<event url>.
// Responses are cached per URL for the cache's TTL.
func History(store storage.Reader, cc *cache.Cache[*models.HistoryResponse]) gin.HandlerFunc {
	return func(c *gin.Context) {
		url := strings.TrimSpace(c.Query("url"))
		if url == "" {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: "query parameter url is required",
				},
			})
			return
		}

		key := cache.Key("history", url)
		if cc != nil {
			if resp, ok := cc.Get(key); ok {
				hit := *resp
				hit.CacheStatus = "HIT"
				c.JSON(http.StatusOK, hit)
				return
			}
		}

		records, err := store.History(c.Request.Context(), url)
		if err != nil {
			fail(c, err)
			return
		}
		resp := models.NewHistoryResponse(url, records)
		if cc != nil {
			cc.Set(key, resp)
		}
		miss := *resp
		miss.CacheStatus = "MISS"
		c.JSON(http.StatusOK, miss)
	}
}

func fail(c *gin.Context, err error) {
	slog.Error("query failed", "path", c.FullPath(), "error", err)
	detail := &models.ErrorDetail{Code: models.ErrCodeInternal, Message: "internal error"}
	if code := models.CodeOf(err); code != "" {
		detail.Code = code
	}
	c.JSON(http.StatusInternalServerError, models.ErrorResponse{Success: false, Error: detail})
}
