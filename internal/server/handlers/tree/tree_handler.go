package tree

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/merklebox/merklebox/internal/merkle"
	"github.com/merklebox/merklebox/internal/server/content"
	"github.com/merklebox/merklebox/internal/server/handlers/api"
	"github.com/merklebox/merklebox/internal/server/tree"
)

type TreeHandler struct {
	svc *tree.Service
}

func New(svc *tree.Service) *TreeHandler {
	return &TreeHandler{svc: svc}
}

// Update handles PUT /api/v1/tree/:deviceId - full snapshot replace.
func (h *TreeHandler) Update(ctx *gin.Context) {
	user := ctx.GetString("user")
	deviceID := ctx.Param("deviceId")

	var snap merkle.Snapshot
	if err := ctx.ShouldBindJSON(&snap); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeTreeInvalidSnap,
			fmt.Errorf("bind snapshot: %w", err))
		return
	}

	info, err := h.svc.Update(ctx.Request.Context(), user, deviceID, &snap)
	if err != nil {
		if errors.Is(err, content.ErrInvalidRequest) {
			api.AbortWithError(ctx, http.StatusBadRequest, api.CodeTreeInvalidSnap, err)
			return
		}
		api.AbortInternal(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusOK, info)
}

// Get handles GET /api/v1/tree/:deviceId.
func (h *TreeHandler) Get(ctx *gin.Context) {
	user := ctx.GetString("user")
	deviceID := ctx.Param("deviceId")

	snap, _, err := h.svc.Get(ctx.Request.Context(), user, deviceID)
	if err != nil {
		if errors.Is(err, tree.ErrTreeNotFound) {
			api.AbortWithError(ctx, http.StatusNotFound, api.CodeTreeNotFound, err)
			return
		}
		api.AbortInternal(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusOK, snap)
}

// Diff handles POST /api/v1/tree/:deviceId/diff. The stored device tree is
// the authoritative side; the request body is the caller's snapshot.
func (h *TreeHandler) Diff(ctx *gin.Context) {
	user := ctx.GetString("user")
	deviceID := ctx.Param("deviceId")

	var snap merkle.Snapshot
	if err := ctx.ShouldBindJSON(&snap); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeTreeInvalidSnap,
			fmt.Errorf("bind snapshot: %w", err))
		return
	}

	resp, err := h.svc.Diff(ctx.Request.Context(), user, deviceID, &snap)
	if err != nil {
		if errors.Is(err, content.ErrInvalidRequest) {
			api.AbortWithError(ctx, http.StatusBadRequest, api.CodeTreeInvalidSnap, err)
			return
		}
		api.AbortInternal(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusOK, resp)
}

// List handles GET /api/v1/tree.
func (h *TreeHandler) List(ctx *gin.Context) {
	user := ctx.GetString("user")

	infos, err := h.svc.List(ctx.Request.Context(), user)
	if err != nil {
		api.AbortInternal(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusOK, gin.H{
		"devices": infos,
	})
}
