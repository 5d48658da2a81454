package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/marketsettle-backend/api/controllers"
	"github.com/angelmondragon/marketsettle-backend/api/middleware"
	"github.com/angelmondragon/marketsettle-backend/internal/disputes"
	"github.com/angelmondragon/marketsettle-backend/internal/invoices"
	"github.com/angelmondragon/marketsettle-backend/internal/orders"
	"github.com/angelmondragon/marketsettle-backend/internal/payments"
	"github.com/angelmondragon/marketsettle-backend/internal/payouts"
	"github.com/angelmondragon/marketsettle-backend/internal/returns"
	"github.com/angelmondragon/marketsettle-backend/pkg/config"
	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
	"github.com/angelmondragon/marketsettle-backend/pkg/logger"
	"github.com/angelmondragon/marketsettle-backend/pkg/redis"
)

// Dependencies are the engines and clients the HTTP surface is built on.
// A nil Redis client disables rate limiting and idempotency replay.
type Dependencies struct {
	DB       controllers.Pinger
	Redis    *redis.Client
	Identity middleware.ActorResolver
	Orders   orders.Service
	Payments payments.Service
	Invoices invoices.Service
	Disputes disputes.Service
	Returns  returns.Service
	Payouts  payouts.Service
	Outbox   controllers.DLQOperator
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.API.CORSOrigins),
	)

	ready := map[string]controllers.Pinger{"db": deps.DB}
	if deps.Redis != nil {
		ready["redis"] = deps.Redis
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(logg, ready))
	})

	protected := []func(http.Handler) http.Handler{middleware.Auth(cfg.JWT, deps.Identity, logg)}
	if deps.Redis != nil {
		protected = append(protected,
			middleware.RateLimit(deps.Redis, cfg.API.RateLimitPerMinute, logg),
			middleware.Idempotency(deps.Redis, cfg.Redis.IdempotencyTTL, logg),
		)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(protected...)

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", controllers.CreateOrder(deps.Orders, logg))
			r.Get("/", controllers.ListOrders(deps.Orders, logg))
			r.Route("/{orderId}", func(r chi.Router) {
				r.Get("/", controllers.GetOrder(deps.Orders, logg))
				r.Get("/history", controllers.OrderHistory(deps.Orders, logg))
				r.Post("/confirm", controllers.ConfirmOrder(deps.Orders, logg))
				r.Post("/start", controllers.StartOrder(deps.Orders, logg))
				r.Post("/ship", controllers.ShipOrder(deps.Orders, logg))
				r.Post("/deliver", controllers.DeliverOrder(deps.Orders, logg))
				r.Post("/cancel", controllers.CancelOrder(deps.Orders, logg))
				r.Post("/status", controllers.UpdateOrderStatus(deps.Orders, logg))

				r.Get("/payments", controllers.PaymentSummary(deps.Payments, logg))
				r.Post("/payments", controllers.RecordPayment(deps.Payments, logg))
				r.Post("/payments/cod", controllers.ConfirmCODPayment(deps.Payments, logg))
				r.Post("/invoice", controllers.GenerateInvoice(deps.Invoices, logg))

				r.Get("/disputes", controllers.ListOrderDisputes(deps.Disputes, logg))
				r.Post("/disputes", controllers.CreateDispute(deps.Disputes, logg))
			})
		})

		r.Route("/payments/{paymentId}", func(r chi.Router) {
			r.Get("/", controllers.GetPayment(deps.Payments, logg))
			r.Post("/confirm", controllers.ConfirmPayment(deps.Payments, logg))
			r.Post("/fail", controllers.FailPayment(deps.Payments, logg))
		})

		r.Route("/invoices", func(r chi.Router) {
			r.Get("/", controllers.ListInvoices(deps.Invoices, logg))
			r.Get("/{invoiceId}", controllers.GetInvoice(deps.Invoices, logg))
			r.Post("/{invoiceId}/payments", controllers.SubmitInvoicePayment(deps.Payments, logg))
		})

		r.Route("/disputes/{disputeId}", func(r chi.Router) {
			r.Get("/", controllers.GetDispute(deps.Disputes, logg))
			r.Get("/history", controllers.DisputeHistory(deps.Disputes, logg))
			r.Post("/review", controllers.ReviewDispute(deps.Disputes, logg))
			r.Post("/respond", controllers.RespondToDispute(deps.Disputes, logg))
			r.Post("/accept", controllers.AcceptDisputeResolution(deps.Disputes, logg))
			r.Post("/reject", controllers.RejectDisputeResolution(deps.Disputes, logg))
			r.Post("/escalate", controllers.EscalateDispute(deps.Disputes, logg))
			r.Post("/close", controllers.CloseDispute(deps.Disputes, logg))
			r.Post("/returns", controllers.CreateReturn(deps.Returns, logg))
		})

		r.Route("/returns/{returnId}", func(r chi.Router) {
			r.Get("/", controllers.GetReturn(deps.Returns, logg))
			r.Get("/history", controllers.ReturnHistory(deps.Returns, logg))
			r.Post("/approve", controllers.ApproveReturn(deps.Returns, logg))
			r.Post("/reject", controllers.RejectReturn(deps.Returns, logg))
			r.Post("/ship", controllers.ShipReturn(deps.Returns, logg))
			r.Post("/receive", controllers.ReceiveReturn(deps.Returns, logg))
			r.Post("/refund", controllers.RefundReturn(deps.Returns, logg))
			r.Post("/close", controllers.CloseReturn(deps.Returns, logg))
		})

		r.Route("/sellers/{sellerId}", func(r chi.Router) {
			r.Get("/bank-accounts", controllers.ListBankAccounts(deps.Payouts, logg))
			r.Post("/bank-accounts", controllers.RegisterBankAccount(deps.Payouts, logg))
			r.Get("/payouts", controllers.ListPayouts(deps.Payouts, logg))
			r.Post("/payouts", controllers.CreatePayout(deps.Payouts, logg))
		})
		r.Get("/payouts/{payoutId}", controllers.GetPayout(deps.Payouts, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(protected...)
		r.Use(middleware.RequireRole(logg, enums.ActorAdmin))

		r.Post("/disputes/{disputeId}/decide", controllers.DecideDispute(deps.Disputes, logg))
		r.Post("/bank-accounts/{bankAccountId}/verify", controllers.VerifyBankAccount(deps.Payouts, logg))
		r.Route("/payouts/{payoutId}", func(r chi.Router) {
			r.Post("/approve", controllers.ApprovePayout(deps.Payouts, logg))
			r.Post("/settle", controllers.SettlePayout(deps.Payouts, logg))
			r.Post("/fail", controllers.FailPayout(deps.Payouts, logg))
			r.Post("/hold", controllers.HoldPayout(deps.Payouts, logg))
			r.Post("/release", controllers.ReleasePayout(deps.Payouts, logg))
		})
		r.Route("/outbox/dlq", func(r chi.Router) {
			r.Get("/", controllers.ListDLQ(deps.Outbox, logg))
			r.Post("/{dlqId}/requeue", controllers.RequeueDLQItem(deps.Outbox, logg))
			r.Post("/{dlqId}/resolve", controllers.ResolveDLQItem(deps.Outbox, logg))
		})
	})

	return r
}
