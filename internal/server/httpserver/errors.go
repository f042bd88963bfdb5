package httpserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/motorland/carmarket/internal/auth"
)

// errorBody is the transport-agnostic error shape. The kind and message
// are identical to what the gRPC transport reports for the same failure.
type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// statusForKind maps failure kinds onto HTTP status codes.
func statusForKind(kind auth.Kind) int {
	switch kind {
	case auth.KindInvalidCredentials, auth.KindInvalidRefreshToken, auth.KindUnauthorized:
		return http.StatusUnauthorized
	case auth.KindForbidden:
		return http.StatusForbidden
	case auth.KindTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError writes the mapped error response and stops the chain.
func abortWithError(c *gin.Context, err error) {
	var authErr *auth.Error
	if errors.As(err, &authErr) {
		c.AbortWithStatusJSON(statusForKind(authErr.Kind), gin.H{
			"error": errorBody{Kind: string(authErr.Kind), Message: authErr.Message},
		})
		return
	}

	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"error": errorBody{Kind: "internal", Message: "internal error"},
	})
}
