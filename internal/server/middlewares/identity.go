package middlewares

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/merklebox/merklebox/internal/server/handlers/api"
)

const (
	HeaderUser   = "X-MBox-User"
	HeaderDevice = "X-MBox-Device"
)

// ResolvedIdentity extracts the user id resolved by the upstream
// authentication layer. The core never sees credentials, only the resolved
// identity headers.
func ResolvedIdentity() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		user := ctx.GetHeader(HeaderUser)
		if user == "" {
			api.AbortWithError(ctx, http.StatusUnauthorized, api.CodeAccessDenied,
				errors.New("missing resolved user identity"))
			return
		}
		ctx.Set("user", user)
		ctx.Set("device", ctx.GetHeader(HeaderDevice))
		ctx.Next()
	}
}
