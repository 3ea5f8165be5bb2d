// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api serves stored benchmark results over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/EnsembleBench/services/bench/registry"
	"github.com/AleutianAI/EnsembleBench/services/bench/results"
)

// ResultReader reads stored Result Set summaries. results.BadgerStore
// satisfies it.
type ResultReader interface {
	Get(ctx context.Context, key string) (*results.Summary, error)
	List(ctx context.Context, prefix string) ([]results.Summary, error)
}

// ServiceName is the name the HTTP spans are reported under.
const ServiceName = "ensemblebench-api"

// Default request budget of the read API.
const (
	DefaultRequestsPerSecond = 50
	DefaultBurst             = 100
)

// NewRouter builds the gin engine with every route installed.
func NewRouter(store ResultReader, reg *registry.Registry, metrics http.Handler, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}
	router := gin.New()
	router.Use(
		gin.Recovery(),
		otelgin.Middleware(ServiceName),
		rateLimit(rate.NewLimiter(DefaultRequestsPerSecond, DefaultBurst)),
		requestLogger(logger),
	)
	SetupRoutes(router, store, reg, metrics)
	return router
}

// SetupRoutes installs the API routes.
func SetupRoutes(router *gin.Engine, store ResultReader, reg *registry.Registry, metrics http.Handler) {
	router.GET("/health", HealthCheck)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	v1 := router.Group("/v1")
	{
		v1.GET("/results", ListResults(store))
		v1.GET("/results/*key", GetResult(store))
		v1.GET("/strategies", ListStrategies(reg))
	}
}

// rateLimit rejects requests beyond the limiter's budget with 429.
// /health is exempt.
func rateLimit(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path != "/health" && !limiter.Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	}
}
