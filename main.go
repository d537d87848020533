package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/encryptcookie"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"feedback-sentiment/config"
	"feedback-sentiment/handlers"
	"feedback-sentiment/metrics"
	"feedback-sentiment/middleware"
	"feedback-sentiment/services"
	"feedback-sentiment/session"
	"feedback-sentiment/webhooks"
)

// accounts joins credential and role management for the admin routes
type accounts struct {
	*services.Authenticator
	*services.Store
}

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found")
	}

	// Initialize structured logger
	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(logHandler))

	// Load configuration
	cfg := config.LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize MongoDB
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := services.InitMongoDB(connectCtx, cfg.MongoURI)
	if err != nil {
		slog.Error("Failed to connect to MongoDB", "error", err)
		os.Exit(1)
	}
	defer client.Disconnect(context.Background())

	db := client.Database(cfg.DatabaseName)
	if err := services.CreateIndexes(connectCtx, db); err != nil {
		slog.Error("Failed to create indexes", "error", err)
		// Continue anyway - the app can still work without indexes
	}

	m := metrics.NewDefault()

	// Per-client throttling, swept in the background
	limiter := services.NewClientLimiter(services.WithMaxEntries(cfg.RateLimitMaxEntries))
	go limiter.Run(ctx, cfg.RateLimitSweepInterval, cfg.RateLimitRetention())
	go reportTrackedClients(ctx, limiter, m)

	sessions := session.NewManager(session.Config{
		Prefix: cfg.CookiePrefix,
		Slot:   session.DefaultSlotOptions(cfg.IsProduction()),
		Policy: session.Policy{
			AdminTimeout:   cfg.AdminSessionTimeout,
			RegularTimeout: cfg.SessionTimeout,
		},
	})

	// Domain services
	store := services.NewStore(db)
	authenticator := services.NewAuthenticator(db)
	feedbackRepo := services.NewFeedbackRepository(db)
	hub := services.NewWebSocketManager()
	analyzer := services.NewSentimentAnalyzer(cfg.ClaudeAPIKey, cfg.ClaudeModel,
		services.NewRateLimiter("anthropic", cfg.ClaudeRequestsPerMinute))
	facebook := services.NewFacebookClient(services.NewRateLimiter("graph", cfg.GraphRequestsPerMinute))
	social := services.NewSocialSync(facebook, feedbackRepo)

	router := &handlers.Router{
		Sessions:  sessions,
		Auth:      handlers.NewAuthHandler(authenticator, store, sessions),
		Feedback:  handlers.NewFeedbackHandler(feedbackRepo, services.NewImporter(feedbackRepo, cfg.ImportBatchDelay), analyzer, hub, sessions, m),
		Social:    handlers.NewSocialHandler(social, store, hub, m),
		Dashboard: handlers.NewDashboardHandler(feedbackRepo, hub),
		Admin:     handlers.NewAdminHandler(limiter, cfg.RateLimitWindow, accounts{authenticator, store}),
	}

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			slog.Error("Request error", "error", err, "status", code)
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// The rate limit gate runs before anything else
	app.Use(middleware.RateLimit(limiter, cfg.RateLimitWindow, m))

	app.Use(recover.New())

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With",
		AllowCredentials: true,
		ExposeHeaders:    "Content-Length, Content-Type, Retry-After",
		MaxAge:           86400, // 24 hours
	}))

	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path}\n",
	}))

	// Session slots are opaque to the browser
	if cfg.CookieEncryptionKey != "" {
		app.Use(encryptcookie.New(encryptcookie.Config{
			Key: cfg.CookieEncryptionKey,
		}))
	} else {
		slog.Warn("COOKIE_ENCRYPTION_KEY not set, session cookies are only base64 encoded")
	}

	app.Use(middleware.SessionActivity(sessions, m))

	// Register webhook routes
	webhooks.NewReceiver(cfg.VerifyToken, store, social, hub, m).RegisterRoutes(app)

	router.Register(app)

	app.Get("/metrics", m.Handler())

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "feedback-sentiment",
		})
	})

	go func() {
		<-ctx.Done()
		slog.Info("Shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			slog.Error("Server shutdown failed", "error", err)
		}
	}()

	slog.Info("Server starting", "port", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		slog.Error("Server failed to start", "error", err)
		os.Exit(1)
	}
}

// reportTrackedClients publishes the limiter size until ctx is cancelled
func reportTrackedClients(ctx context.Context, limiter *services.ClientLimiter, m *metrics.Metrics) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.TrackedClients(limiter.Len())
		}
	}
}
