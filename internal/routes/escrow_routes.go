package routes

import (
	"github.com/gofiber/fiber/v2"

	"shiftpay/internal/handlers"
	"shiftpay/internal/middleware"
)

func SetupEscrowRoutes(app *fiber.App) {
	escrow := app.Group("/api/escrow", middleware.Protected())

	// Create escrow for a confirmed booking and capture the funds
	escrow.Post("/create", handlers.CreateEscrow)

	// Release held funds after shift completion (verified outcome)
	escrow.Post("/:id/release", handlers.ReleaseEscrow)

	// Refund a held escrow on cancellation, with optional penalty
	escrow.Post("/:id/refund", handlers.RefundEscrow)

	// Cancel a booking before funds are captured
	escrow.Post("/:id/cancel", handlers.CancelEscrow)

	// Get a specific escrow record
	escrow.Get("/:id", handlers.GetEscrow)
}

func SetupReconcileRoutes(app *fiber.App) {
	reconcile := app.Group("/api/reconcile", middleware.Protected())

	// Trigger a reconciliation pass outside the fixed schedule
	reconcile.Post("/run", handlers.RunReconciliation)
}
