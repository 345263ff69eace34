package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/i474232898/forecast-display/internal/api/http"
	"github.com/i474232898/forecast-display/internal/clock"
	"github.com/i474232898/forecast-display/internal/config"
	"github.com/i474232898/forecast-display/internal/diag"
	"github.com/i474232898/forecast-display/internal/display"
	"github.com/i474232898/forecast-display/internal/forecast"
	"github.com/i474232898/forecast-display/internal/forecast/providers"
	"github.com/i474232898/forecast-display/internal/logging"
	"github.com/i474232898/forecast-display/internal/scheduler"
	"github.com/i474232898/forecast-display/internal/store"
)

const appName = "forecast-display"

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := logging.New(cfg, appName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stream := diag.NewStream(cfg.DiagCapacity)

	// Shared state: single writer per piece, readers see whole snapshots.
	series := store.NewSeriesBuffer()
	clk := clock.NewModel(clock.Rule{
		StandardOffset: cfg.StandardOffset,
		DaylightOffset: cfg.DaylightOffset,
	}, nil, stream, logger)

	// Outbound forecast fetcher. The transport timeout is the only bound on a cycle.
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	fetcher := providers.NewFMIProvider(httpClient, cfg.ForecastURL, cfg.BreakerTripAfter)
	service := forecast.NewService(fetcher, series, stream, logger)

	// Display sinks. File and network sinks get their own worker so a slow
	// disk or broker never delays a redraw.
	sinks := display.FanOut{display.NewLogSink(logger.With("component", "sink"))}
	startAsync := func(name string, inner display.Sink) {
		s := display.NewAsyncSink(name, inner, logger.With("component", "sink"),
			display.WithDeliveryTimeout(cfg.RedrawInterval),
		)
		go s.Run(ctx)
		sinks = append(sinks, s)
	}
	if cfg.ChartPath != "" {
		startAsync("chart", display.NewChartSink(cfg.ChartPath, logger))
	}
	if cfg.MQTTBroker != "" {
		pub := display.NewMQTTPublisher(cfg.MQTTBroker, cfg.MQTTPort, cfg.MQTTClientID, logger)
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := pub.Connect(connectCtx); err != nil {
			logger.Warn("mqtt unavailable; publishing disabled until reconnect", "error", err)
		}
		cancel()
		defer pub.Disconnect()
		startAsync("mqtt", display.NewMQTTSink(pub, cfg.MQTTTopic, logger))
	}
	renderer := display.NewRenderer(series, clk, sinks, stream, logger)

	sched := scheduler.New(scheduler.Config{
		FetchInterval:  cfg.FetchInterval,
		ResyncInterval: cfg.ResyncInterval,
		RedrawInterval: cfg.RedrawInterval,
		PollInterval:   cfg.FetchPollInterval,
	}, service, clk, renderer, logger)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Read-only status API.
	app := fiber.New(fiber.Config{
		AppName:               appName,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})
	app.Use(fiberlogger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		resp := fiber.Map{
			"status":  "ok",
			"service": appName,
			"ticks":   sched.Ticks(),
			"fetches": sched.Fetches(),
			"breaker": fetcher.State().String(),
		}
		if out, ok := sched.LastOutcome(); ok {
			resp["lastOutcome"] = out.Kind
		}
		return c.JSON(resp)
	})

	httpapi.RegisterRoutes(app, httpapi.Deps{
		Series: series,
		Clock:  clk,
		Diag:   stream,
	})

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Error("fiber server stopped", "error", err)
		}
	}()

	// Redraw loop runs until a termination signal.
	if err := sched.Run(ctx); err != nil {
		logger.Error("redraw loop stopped", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("error during shutdown", "error", err)
	}
	logger.Info("stopped")
}
