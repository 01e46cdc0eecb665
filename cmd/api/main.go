package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/melih/aetherhost/internal/adapters/builder"
	"github.com/melih/aetherhost/internal/adapters/docker"
	"github.com/melih/aetherhost/internal/adapters/http"
	"github.com/melih/aetherhost/internal/adapters/store"
	"github.com/melih/aetherhost/internal/auth"
	"github.com/melih/aetherhost/internal/config"
	"github.com/melih/aetherhost/internal/core/services"
	"github.com/melih/aetherhost/internal/jobs"
	"github.com/melih/aetherhost/internal/tracing"
)

const version = "0.2.0"

func main() {
	config.Load()
	cfg := config.Cfg

	shutdownTracing, err := tracing.Setup("aetherhost-api", version, cfg.TraceExporter, nil)
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}

	// 1. Initialize Adapters (Infrastructure)
	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	dockerAdapter, err := docker.NewAdapter(cfg.DockerHost)
	if err != nil {
		log.Fatalf("Failed to initialize Docker adapter: %v", err)
	}
	defer dockerAdapter.Close()

	builderAdapter, err := builder.NewBuilderAdapter(cfg.DockerHost, nil)
	if err != nil {
		log.Fatalf("Failed to initialize Builder adapter: %v", err)
	}

	// 2. Core services
	compute := services.NewComputeService(dockerAdapter, builderAdapter, db, services.ComputeOptions{
		KeepAlive: cfg.KeepAliveCommand,
		LogTail:   cfg.LogTail,
	})
	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)

	scheduler := jobs.NewScheduler(30 * time.Second)
	if err := scheduler.AddReconcile(cfg.ReconcileSchedule, compute); err != nil {
		log.Fatalf("Failed to schedule reconcile job: %v", err)
	}
	scheduler.Start()

	// 3. HTTP handlers
	authHandler := http.NewAuthHandler(db, issuer)
	containerHandler := http.NewContainerHandler(compute)
	terminalHandler := http.NewTerminalHandler(compute, http.TerminalOptions{
		Prompt:      cfg.TerminalPrompt,
		Greeting:    cfg.TerminalGreeting,
		ExecTimeout: cfg.ExecTimeout,
		InputRate:   cfg.TerminalInputRate,
		InputBurst:  cfg.TerminalInputBurst,
		ExecBaseURL: cfg.ExecBaseURL,
	})
	proxyHandler := http.NewProxyHandler(dockerAdapter, cfg.AppDomain)

	// 4. Setup Framework (Fiber)
	app := fiber.New(fiber.Config{
		AppName:               "AetherHost Cloud API " + version,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logger.New(logger.Config{
		Format: "${time} ${locals:requestid} ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.CORSOrigins, ","),
		AllowCredentials: true,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
	}))

	http.Register(app, http.Handlers{
		Auth:     authHandler,
		Compute:  containerHandler,
		Terminal: terminalHandler,
		Proxy:    proxyHandler,
		Readiness: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return dockerAdapter.Ping(ctx)
		},
	})

	// 5. Start Server
	go func() {
		log.Printf("Server starting on %s (exec timeout %s, reconcile %q)",
			cfg.ListenAddr, cfg.ExecTimeout, cfg.ReconcileSchedule)
		if err := app.Listen(cfg.ListenAddr); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	scheduler.Stop()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("Server shutdown: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracing(ctx); err != nil {
		log.Printf("Tracing shutdown: %v", err)
	}
}
