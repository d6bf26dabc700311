// Package middleware holds the query API's gin middleware.
package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/pricewatch/models"
)

// IdentityKey is the gin context key under which Auth stores the caller's key.
const IdentityKey = "api_key"

// Auth accepts requests carrying one of apiKeys in either
//
//	X-API-Key: <key>
//	Authorization: Bearer <key>
//
// An empty key list leaves the API open.
func Auth(apiKeys []string) gin.HandlerFunc {
	var digests [][32]byte
	for _, k := range apiKeys {
		if k != "" {
			digests = append(digests, sha256.Sum256([]byte(k)))
		}
	}
	if len(digests) == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		key := apiKey(c)
		if key == "" {
			abort(c, http.StatusUnauthorized, models.ErrCodeUnauthorized,
				"missing API key: send X-API-Key or Authorization: Bearer <key>")
			return
		}
		if !known(digests, key) {
			abort(c, http.StatusUnauthorized, models.ErrCodeUnauthorized, "invalid API key")
			return
		}
		c.Set(IdentityKey, key)
		c.Next()
	}
}

// known compares digests in constant time.
func known(digests [][32]byte, key string) bool {
	d := sha256.Sum256([]byte(key))
	match := 0
	for i := range digests {
		match |= subtle.ConstantTimeCompare(digests[i][:], d[:])
	}
	return match == 1
}

func apiKey(c *gin.Context) string {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return key
	}
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, models.ErrorResponse{
		Success: false,
		Error:   &models.ErrorDetail{Code: code, Message: message},
	})
}
