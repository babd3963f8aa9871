package main

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sai034/css-video-editor/internal/config"
	"github.com/sai034/css-video-editor/internal/middleware"
)

// routerOptions are the router's middleware dependencies
type routerOptions struct {
	Server  config.ServerConfig
	Limiter *middleware.RateLimiter
	// Counter, if set, limits render submissions across replicas
	Counter middleware.WindowCounter
	// SubmitLimit is the number of renders a client may submit per minute
	SubmitLimit int64
}

func setupRouter(api *API, opts routerOptions) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(api.logger))

	// Health and metrics stay outside the rate limit
	router.GET("/health", api.healthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	if opts.Server.AuthSecret != "" {
		v1.Use(middleware.Auth(middleware.NewTokenAuth(opts.Server.AuthSecret)))
	}
	if opts.Limiter != nil {
		v1.Use(middleware.RateLimit(opts.Limiter))
	}
	v1.Use(middleware.MaxBodySize(opts.Server.MaxBodyBytes))
	{
		// Renders
		submit := []gin.HandlerFunc{}
		if opts.Counter != nil && opts.SubmitLimit > 0 {
			submit = append(submit, middleware.SharedRateLimit(opts.Counter, "renders", opts.SubmitLimit, time.Minute, api.logger.Component("ratelimit")))
		}
		v1.POST("/renders", append(submit, api.createRender)...)
		v1.GET("/renders", api.listRenders)
		v1.GET("/renders/:id", api.getRender)
		v1.POST("/renders/:id/cancel", api.cancelRender)

		// Formats
		v1.GET("/formats", api.listFormats)

		// Subtitles
		v1.POST("/subtitles/export", api.exportSubtitles)
		v1.POST("/subtitles/import", api.importSubtitles)
	}

	return router
}
