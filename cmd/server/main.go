package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/voicemirror/api/internal/client"
	"github.com/voicemirror/api/internal/config"
	"github.com/voicemirror/api/internal/handler"
	"github.com/voicemirror/api/internal/registry"
	"github.com/voicemirror/api/internal/service"
	"github.com/voicemirror/api/internal/tts"
	"github.com/voicemirror/api/internal/worker"
	"github.com/voicemirror/api/pkg/response"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Storage directories must exist before the first upload arrives
	for _, dir := range []string{cfg.Storage.UploadDir, cfg.Storage.OutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("Failed to create directory %s: %v", dir, err)
		}
	}

	// Initialize external collaborators
	engineClient := client.NewXTTSClient(&cfg.Engine)
	converter := client.NewFFmpegConverter(cfg.FFmpeg.Path)
	if !converter.Available() {
		log.Println("Warning: ffmpeg not found, webm/mp4/m4a references will be rejected")
	}

	// Initialize the model service cache
	cache := tts.NewServiceCache(engineClient, cfg.Engine.DefaultDevice)
	log.Printf("Default synthesis device: %s", cache.DefaultDevice())

	// Initialize the job registry and the background pool
	reg := registry.New(cfg.Jobs.TTL, cfg.Jobs.MaxJobs)
	cloneWorker := worker.NewCloneWorker(reg, cache, converter)
	dispatcher := worker.NewDispatcher(cloneWorker, cfg.Worker.Concurrency, cfg.Worker.QueueSize)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	dispatcher.Start(workerCtx)

	// Initialize validator
	validate := validator.New()

	// Initialize services and handlers
	cloneService := service.NewCloneService(reg, dispatcher, cache, converter,
		cfg.Storage.UploadDir, cfg.Storage.OutputDir)
	cloneHandler := handler.NewCloneHandler(cloneService, validate)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    50 * 1024 * 1024, // 50MB
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"engine": engineClient.IsConfigured(),
				"ffmpeg": converter.Available(),
			},
			"jobs":           reg.Len(),
			"loaded_devices": cache.LoadedDevices(),
		})
	})

	// API routes
	api := app.Group("/api")
	api.Post("/clone_start", cloneHandler.Start)
	api.Get("/clone_status/:jobId", cloneHandler.Status)
	api.Post("/clone", cloneHandler.Clone)

	// Produced artifacts
	app.Static("/outputs", cfg.Storage.OutputDir)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		dispatcher.Stop()
		stopWorkers()
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return response.Error(c, code, message)
}
