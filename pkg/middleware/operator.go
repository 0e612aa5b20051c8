package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
)

const OperatorHeader = "X-Operator-ID"

type operatorKey struct{}

// Operator copies the X-Operator-ID header into the request context so
// ledger writes can record who initiated them.
func Operator() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := c.GetHeader(OperatorHeader); id != "" {
			ctx := context.WithValue(c.Request.Context(), operatorKey{}, id)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

// GetOperator returns the operator id, or "system" when the call did not
// come through an authenticated admin request.
func GetOperator(ctx context.Context) string {
	if id, ok := ctx.Value(operatorKey{}).(string); ok && id != "" {
		return id
	}
	return "system"
}
