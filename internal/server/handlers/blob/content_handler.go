package blob

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/merklebox/merklebox/internal/server/content"
	"github.com/merklebox/merklebox/internal/server/handlers/api"
)

type ContentHandler struct {
	svc *content.Service
}

func New(svc *content.Service) *ContentHandler {
	return &ContentHandler{svc: svc}
}

// Upload handles PUT /api/v1/content/upload - multipart form upload of one
// file, content-addressed under the authenticated user.
func (h *ContentHandler) Upload(ctx *gin.Context) {
	user := ctx.GetString("user")

	var req UploadRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest,
			fmt.Errorf("bind query: %w", err))
		return
	}

	file, err := ctx.FormFile("file")
	if err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest,
			fmt.Errorf("get form file: %w", err))
		return
	}

	if file.Size <= 0 {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest,
			errors.New("invalid file: size is 0"))
		return
	}

	fd, err := file.Open()
	if err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest,
			fmt.Errorf("open form file: %w", err))
		return
	}
	defer fd.Close()

	data, err := io.ReadAll(fd)
	if err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest,
			fmt.Errorf("read form file: %w", err))
		return
	}

	result, err := h.svc.Upload(ctx.Request.Context(), user, req.Path, data, req.MIMEType, req.LocalRef)
	if err != nil {
		switch {
		case errors.Is(err, content.ErrInvalidRequest):
			api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		case errors.Is(err, content.ErrDuplicateHash):
			api.AbortWithError(ctx, http.StatusConflict, api.CodeContentConflict, err)
		default:
			api.AbortInternal(ctx, err)
		}
		return
	}

	ctx.PureJSON(http.StatusOK, result)
}

// Download handles POST /api/v1/content/download - issues a time-limited
// retrieval URL for a content hash or file record id.
func (h *ContentHandler) Download(ctx *gin.Context) {
	user := ctx.GetString("user")

	var req DownloadRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest,
			fmt.Errorf("bind request: %w", err))
		return
	}

	ttl := time.Duration(req.TTLSeconds) * time.Second

	switch {
	case req.Hash != "":
		presigned, err := h.svc.RetrievalURLByHash(ctx.Request.Context(), user, req.Hash, ttl)
		if err != nil {
			h.abortDownloadErr(ctx, err)
			return
		}
		ctx.PureJSON(http.StatusOK, DownloadResponse{URL: presigned.URL, ExpiresAt: presigned.ExpiresAt})
	case req.FileID != "":
		presigned, err := h.svc.RetrievalURLByID(ctx.Request.Context(), user, req.FileID, ttl)
		if err != nil {
			h.abortDownloadErr(ctx, err)
			return
		}
		ctx.PureJSON(http.StatusOK, DownloadResponse{URL: presigned.URL, ExpiresAt: presigned.ExpiresAt})
	default:
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest,
			errors.New("either hash or fileId is required"))
	}
}

// Fetch handles GET /api/v1/content/fetch/:hash - streams content back for
// clients that cannot resolve presigned URLs (dev profile, mem:// scheme).
func (h *ContentHandler) Fetch(ctx *gin.Context) {
	user := ctx.GetString("user")
	hash := ctx.Param("hash")

	data, err := h.svc.Fetch(ctx.Request.Context(), user, hash)
	if err != nil {
		h.abortDownloadErr(ctx, err)
		return
	}

	ctx.Data(http.StatusOK, "application/octet-stream", data)
}

// Delete handles POST /api/v1/content/delete - delete by content hash, used
// for cross-device propagation where only the hash is known.
func (h *ContentHandler) Delete(ctx *gin.Context) {
	user := ctx.GetString("user")

	var req DeleteRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest,
			fmt.Errorf("bind request: %w", err))
		return
	}

	if err := h.svc.DeleteByHash(ctx.Request.Context(), user, req.Hash); err != nil {
		if errors.Is(err, content.ErrRecordNotFound) {
			api.AbortWithError(ctx, http.StatusNotFound, api.CodeContentNotFound, err)
			return
		}
		api.AbortInternal(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusOK, gin.H{"ok": true})
}

func (h *ContentHandler) abortDownloadErr(ctx *gin.Context, err error) {
	if errors.Is(err, content.ErrRecordNotFound) {
		api.AbortWithError(ctx, http.StatusNotFound, api.CodeContentNotFound, err)
		return
	}
	api.AbortInternal(ctx, err)
}
