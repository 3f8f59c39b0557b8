package handlers

import (
	"github.com/Ayash-Bera/querygen/internal/middleware"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterOptions wires the optional HTTP layers around the handlers. Nil
// members are left out of the chain.
type RouterOptions struct {
	Identity      middleware.IdentityProvider
	RateLimit     gin.HandlerFunc
	ResponseCache gin.HandlerFunc
	Gatherer      prometheus.Gatherer
}

func NewRouter(h *GenerationHandler, opts RouterOptions) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.SecurityHeaders())
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	if opts.Identity == nil {
		opts.Identity = middleware.HeaderIdentity{}
	}
	router.Use(middleware.Identity(opts.Identity))

	if opts.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api/v1")
	api.GET("/health", h.HandleHealth)
	if opts.RateLimit != nil {
		api.Use(opts.RateLimit)
	}

	cached := func(handler gin.HandlerFunc) []gin.HandlerFunc {
		if opts.ResponseCache == nil {
			return []gin.HandlerFunc{handler}
		}
		return []gin.HandlerFunc{opts.ResponseCache, handler}
	}

	api.POST("/queries/generate", h.HandleGenerate)
	api.GET("/searches/:searchId/queries", cached(h.HandleListQueries)...)
	api.GET("/searches/:searchId/stats", h.HandleStats)
	api.GET("/templates", cached(h.HandleTemplates)...)
	api.GET("/performance", h.HandlePerformance)

	return router
}
