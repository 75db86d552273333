package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"reseller-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const healthTimeout = 3 * time.Second

type depStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthCheck handles GET /health. Dependencies are pinged concurrently.
func HealthCheck(log zerolog.Logger, checkers ...ports.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()

		var (
			mu     sync.Mutex
			deps   = make(map[string]depStatus, len(checkers))
			failed error
		)
		g := errgroup.Group{}
		for _, checker := range checkers {
			g.Go(func() error {
				err := checker.Ping(ctx)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					deps[checker.Name()] = depStatus{Status: "unhealthy", Error: err.Error()}
					failed = multierr.Append(failed, err)
					return nil
				}
				deps[checker.Name()] = depStatus{Status: "healthy"}
				return nil
			})
		}
		_ = g.Wait()

		status := "healthy"
		httpCode := http.StatusOK
		if failed != nil {
			log.Warn().Err(failed).Int("failures", len(multierr.Errors(failed))).Msg("health check degraded")
			status = "degraded"
			httpCode = http.StatusServiceUnavailable
		}

		c.JSON(httpCode, gin.H{
			"status":       status,
			"dependencies": deps,
		})
	}
}

// Metrics exposes the registry in the Prometheus text format.
func Metrics(gatherer prometheus.Gatherer) gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}
