package api

import "github.com/gin-gonic/gin"

// AbortWithError terminates the request with a coded error body. Unrecognized
// internal failures must be collapsed into CodeInternalError by the caller so
// storage details never leak.
func AbortWithError(ctx *gin.Context, status int, code string, err error) {
	ctx.Abort()
	ctx.Error(err)
	ctx.PureJSON(status, APIError{
		Code:    code,
		Message: err.Error(),
	})
}

// AbortInternal hides the underlying error behind an opaque internal-error
// response.
func AbortInternal(ctx *gin.Context, err error) {
	ctx.Abort()
	ctx.Error(err)
	ctx.PureJSON(500, APIError{
		Code:    CodeInternalError,
		Message: "internal error",
	})
}
