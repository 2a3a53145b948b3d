package server

import (
	"log/slog"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	slogGin "github.com/samber/slog-gin"

	blobH "github.com/merklebox/merklebox/internal/server/handlers/blob"
	treeH "github.com/merklebox/merklebox/internal/server/handlers/tree"
	"github.com/merklebox/merklebox/internal/server/middlewares"
	"github.com/merklebox/merklebox/internal/version"
)

func SetupRoutes(svc *Services) http.Handler {
	r := gin.New()
	r.MaxMultipartMemory = 8 << 20 // 8 MiB

	treeHandler := treeH.New(svc.Tree)
	contentHandler := blobH.New(svc.Content)

	httpLogger := slog.Default().WithGroup("http")
	r.Use(slogGin.NewWithConfig(httpLogger, slogGin.Config{
		DefaultLevel:     slog.LevelInfo,
		ClientErrorLevel: slog.LevelWarn,
		ServerErrorLevel: slog.LevelError,
		WithRequestID:    true,
	}))
	r.Use(gin.Recovery())
	r.Use(gzip.Gzip(gzip.BestSpeed))
	r.Use(cors.Default())

	r.GET("/", IndexHandler)
	r.GET("/healthz", HealthHandler)

	v1 := r.Group("/api/v1")
	v1.Use(middlewares.ResolvedIdentity())
	{
		// device trees
		v1.GET("/tree", treeHandler.List)
		v1.GET("/tree/:deviceId", treeHandler.Get)
		v1.PUT("/tree/:deviceId", treeHandler.Update)
		v1.POST("/tree/:deviceId/diff", treeHandler.Diff)

		// content
		v1.PUT("/content/upload", contentHandler.Upload)
		v1.POST("/content/download", contentHandler.Download)
		v1.POST("/content/delete", contentHandler.Delete)
		v1.GET("/content/fetch/:hash", contentHandler.Fetch)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "not found",
		})
	})

	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{
			"error": "method not allowed",
		})
	})

	return r.Handler()
}

func IndexHandler(ctx *gin.Context) {
	ctx.String(http.StatusOK, version.DetailedWithApp())
}

func HealthHandler(ctx *gin.Context) {
	ctx.PureJSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}
