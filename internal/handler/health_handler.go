package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const readinessTimeout = 2 * time.Second

// UpstreamProber checks that the laboratory API answers at all.
type UpstreamProber interface {
	Health(ctx context.Context) error
}

func RegisterHealthRoutes(app fiber.Router, rdb *redis.Client, prober UpstreamProber) {
	app.Get("/livez", LivezHandler())
	app.Get("/readyz", ReadyzHandler(rdb, prober))
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	}
}

func ReadyzHandler(rdb *redis.Client, prober UpstreamProber) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), readinessTimeout)
		defer cancel()

		redisErr := rdb.Ping(ctx).Err()
		upstreamErr := prober.Health(ctx)

		redisStatus := "ok"
		if redisErr != nil {
			redisStatus = "down"
		}
		upstreamStatus := "ok"
		if upstreamErr != nil {
			upstreamStatus = "down"
		}

		status := "ready"
		statusCode := fiber.StatusOK
		if redisErr != nil || upstreamErr != nil {
			status = "not_ready"
			statusCode = fiber.StatusServiceUnavailable
		}

		return c.Status(statusCode).JSON(fiber.Map{
			"status": status,
			"checks": fiber.Map{
				"redis":    redisStatus,
				"upstream": upstreamStatus,
			},
		})
	}
}
