package middlewares

import (
	"net/http"
	"strconv"

	"bitbucket.org/mmdatafocus/finledger_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SessionMiddleware resolves the calling tenant from request headers and
// stamps it into the request context. Every model operation downstream
// scopes by this business id.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId := c.GetHeader("x-business-id")
		if businessId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "x-business-id header is required"})
			c.Abort()
			return
		}
		ctx := utils.SetBusinessIdInContext(c.Request.Context(), businessId)
		if userHeader := c.GetHeader("x-user-id"); userHeader != "" {
			if userId, err := strconv.Atoi(userHeader); err == nil {
				ctx = utils.SetUserIdInContext(ctx, userId)
			}
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// CorrelationMiddleware generates or propagates a correlation id per
// request so a posting can be traced through logs and outbox events.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Header("x-correlation-id", cid)
		c.Next()
	}
}
