package server

import (
	"github.com/abduss/dropbucket/internal/auth"
	"github.com/abduss/dropbucket/internal/blob"
	"github.com/abduss/dropbucket/internal/bucket"
	"github.com/abduss/dropbucket/internal/bundle"
	"github.com/abduss/dropbucket/internal/config"
	"github.com/abduss/dropbucket/internal/file"
	"github.com/abduss/dropbucket/internal/logger"
	"github.com/abduss/dropbucket/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Dependencies groups the services required by the HTTP router.
type Dependencies struct {
	Config config.Config
	// DB is nil when the catalog is held in memory.
	DB            *pgxpool.Pool
	Store         blob.Store
	AuthService   *auth.Service
	BucketService *bucket.Service
	FileService   *file.Service
	Bundles       *bundle.Builder
	Logger        zerolog.Logger
}

// NewRouter builds a Gin engine with foundational middleware and routes.
func NewRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.Middleware(deps.Logger))
	router.Use(metrics.Middleware())

	maxBytes := deps.Config.Storage.MaxUploadBytes
	if maxBytes > 0 {
		// Multipart parts beyond this spill to temp files instead of memory.
		router.MaxMultipartMemory = maxBytes
	}

	registerHealthRoutes(router, deps)
	if path := deps.Config.Metrics.PrometheusPath; path != "" {
		metrics.Register(router, path)
	}

	api := router.Group("/v1")
	if deps.AuthService != nil {
		protected := api.Group("")
		protected.Use(auth.AuthMiddleware(deps.AuthService))

		auth.RegisterRoutes(protected, deps.AuthService)
		if deps.BucketService != nil {
			bucket.RegisterRoutes(protected, deps.BucketService)
		}
		if deps.FileService != nil {
			file.RegisterRoutes(protected, deps.FileService)
		}
	}

	if deps.BucketService != nil {
		bucket.RegisterPublicRoutes(api, deps.BucketService)
	}
	if deps.Bundles != nil {
		bundle.RegisterRoutes(api, deps.Bundles)
	}
	if deps.FileService != nil {
		file.RegisterPublicRoutes(router, deps.FileService)
	}

	return router
}
