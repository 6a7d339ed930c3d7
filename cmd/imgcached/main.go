// Command imgcached runs the product image cache as a small operator
// daemon: prefetch batches, inspect stats, manage page scope and eviction,
// and expose Prometheus metrics.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/catalogops/imgcache/internal/config"
	"github.com/catalogops/imgcache/pkg/cache"
	"github.com/catalogops/imgcache/pkg/downloader"
	"github.com/catalogops/imgcache/pkg/logging"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Output: os.Stderr,
		File: logging.FileConfig{
			Path:       cfg.LogFilePath,
			MaxSizeMB:  cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
		},
	})

	manager, err := cache.New(cache.Config{
		Root:           cfg.CacheRoot,
		RequestTimeout: cfg.RequestTimeout,
		StopWait:       cfg.StopWait,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize cache")
	}
	defer manager.Shutdown()

	app := newApp(manager, logger)

	addr := fmt.Sprintf(":%d", cfg.ListenPort)
	logger.Info().
		Str("addr", addr).
		Str("cache_root", cfg.CacheRoot).
		Msg("Starting imgcached")

	go func() {
		if err := app.Listen(addr); err != nil {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("Shutting down")
	if err := app.Shutdown(); err != nil {
		logger.Warn().Err(err).Msg("Server shutdown error")
	}
}

// prefetchRequest is the POST /prefetch body.
type prefetchRequest struct {
	Tasks []downloader.Task `json:"tasks"`
}

// scopeRequest is the PUT /scope body.
type scopeRequest struct {
	ProductIDs []string `json:"product_ids"`
}

// newApp builds the fiber application with all cache routes.
func newApp(manager *cache.Manager, logger zerolog.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(func(c fiber.Ctx) error {
		c.Set("X-Request-ID", uuid.NewString())
		return c.Next()
	})

	app.Get("/health", func(c fiber.Ctx) error {
		return c.SendString("OK")
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Get("/stats", func(c fiber.Ctx) error {
		stats, err := manager.Stats()
		if err != nil {
			logger.Warn().Err(err).Msg("Stats walk failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "stats unavailable",
			})
		}
		return c.JSON(stats)
	})

	app.Post("/prefetch", func(c fiber.Ctx) error {
		var req prefetchRequest
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid request body",
			})
		}
		if len(req.Tasks) == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "no tasks",
			})
		}

		started := manager.StartBatch(req.Tasks,
			nil,
			func() { logger.Info().Int("tasks", len(req.Tasks)).Msg("Prefetch batch done") },
			func(msg string) { logger.Error().Str("reason", msg).Msg("Prefetch batch failed") },
		)
		if !started {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "batch could not be started",
			})
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"accepted": len(req.Tasks),
		})
	})

	app.Post("/prefetch/stop", func(c fiber.Ctx) error {
		manager.StopBatch()
		return c.SendStatus(fiber.StatusNoContent)
	})

	app.Put("/scope", func(c fiber.Ctx) error {
		var req scopeRequest
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid request body",
			})
		}
		manager.SetPageScope(req.ProductIDs)
		return c.JSON(fiber.Map{"in_scope": len(req.ProductIDs)})
	})

	app.Post("/evict", func(c fiber.Ctx) error {
		manager.EvictOutsideScope()
		return c.SendStatus(fiber.StatusNoContent)
	})

	app.Delete("/cache", func(c fiber.Ctx) error {
		if err := manager.ClearAll(); err != nil {
			logger.Warn().Err(err).Msg("Clear failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "clear failed",
			})
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	return app
}
