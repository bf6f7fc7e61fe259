package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/joho/godotenv"

	"shiftpay/internal/database"
	"shiftpay/internal/escrow"
	"shiftpay/internal/events"
	"shiftpay/internal/gateway"
	"shiftpay/internal/handlers"
	"shiftpay/internal/ledger"
	"shiftpay/internal/money"
	"shiftpay/internal/reconcile"
	"shiftpay/internal/routes"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, using environment variables")
	}

	log.Printf("🔍 Environment:")
	log.Printf("   DB_HOST: '%s'", os.Getenv("DB_HOST"))
	log.Printf("   JWT_SECRET: '%s'", maskSecret(os.Getenv("JWT_SECRET")))
	log.Printf("   PAYSTACK_SECRET_KEY: '%s'", maskSecret(os.Getenv("PAYSTACK_SECRET_KEY")))
	log.Printf("   RECONCILE_CURRENCIES: '%s'", os.Getenv("RECONCILE_CURRENCIES"))

	// Connect to database
	if err := database.Connect(); err != nil {
		log.Fatal("❌ Failed to connect to database:", err)
	}
	defer database.Close()

	// Run migrations
	if err := database.Migrate(); err != nil {
		log.Fatal("❌ Failed to migrate database:", err)
	}
	log.Println("✅ Database connected and migrated successfully")

	// Wire up the escrow core
	store := ledger.NewGormStore(database.DB)
	gw := gateway.NewPaystackGateway()
	emitter := events.LogEmitter{}
	escrowLedger := ledger.New(store, gw, emitter, ledger.DefaultConfig())

	reconciler := reconcile.NewEngine(
		store, gw, emitter,
		reconcileCurrencies(),
		money.Cents(envInt("RECONCILE_TOLERANCE", 100)),
		time.Duration(envInt("RECONCILE_INTERVAL_MINUTES", 15))*time.Minute,
	)

	handlers.InitEscrowService(escrowLedger, store, reconciler, escrow.DefaultPremiumRates())

	// Resume anything a previous process left in flight, then keep the
	// expiry and partial-failure sweeps running.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := escrowLedger.RecoverInFlight(ctx); err != nil {
		log.Printf("⚠️  Recovery sweep failed: %v", err)
	}
	go runSweeps(ctx, escrowLedger)
	go reconciler.Run(ctx)
	log.Println("✅ Recovery sweep done, reconciler running")

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName: "ShiftPay Escrow API v1.0",
	})

	// Middleware
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	// Health check routes
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Welcome to ShiftPay Escrow API",
			"status":  "running",
			"version": "1.0",
		})
	})

	app.Get("/api/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "shiftpay",
		})
	})

	// Setup application routes
	routes.SetupEscrowRoutes(app)
	routes.SetupReconcileRoutes(app)

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("🚀 ShiftPay server starting on http://localhost:%s", port)
	log.Fatal(app.Listen(":" + port))
}

// runSweeps periodically fails expired uncaptured records and retries
// flagged business refunds.
func runSweeps(ctx context.Context, l *ledger.Ledger) {
	ticker := time.NewTicker(time.Duration(envInt("SWEEP_INTERVAL_MINUTES", 5)) * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.FailExpired(ctx); err != nil {
				log.Printf("⚠️  Expiry sweep failed: %v", err)
			}
			if err := l.RetryPartialFailures(ctx); err != nil {
				log.Printf("⚠️  Partial-failure sweep failed: %v", err)
			}
		}
	}
}

func reconcileCurrencies() []string {
	raw := os.Getenv("RECONCILE_CURRENCIES")
	if raw == "" {
		raw = "USD"
	}
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func envInt(name string, fallback int) int {
	if raw := os.Getenv(name); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return fallback
}

// Helper function to mask sensitive data in logs
func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + "****" + s[len(s)-2:]
}
