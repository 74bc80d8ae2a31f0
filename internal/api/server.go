// Package api exposes the operational HTTP surface: liveness, readiness
// and a small stats endpoint. User-facing traffic goes through the queues,
// never through HTTP.
package api

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Stats counts pipeline outcomes since process start.
type Stats struct {
	startedAt  time.Time
	Processed  atomic.Int64
	Failed     atomic.Int64
	Duplicates atomic.Int64
}

func NewStats() *Stats {
	return &Stats{startedAt: time.Now().UTC()}
}

func SetupRouter(db *pgxpool.Pool, stats *Stats, appLogger *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(recover.New())

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Get("/readyz", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			appLogger.Warn("readiness probe failed", zap.Error(err))
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unavailable",
				"error":  err.Error(),
			})
		}
		return c.JSON(fiber.Map{"status": "ready"})
	})

	app.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"uptime_seconds": int64(time.Since(stats.startedAt).Seconds()),
			"processed":      stats.Processed.Load(),
			"failed":         stats.Failed.Load(),
			"duplicates":     stats.Duplicates.Load(),
		})
	})

	return app
}
