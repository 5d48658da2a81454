// Package app assembles the marketplace engines for the binaries.
package app

import (
	"fmt"
	"time"

	"github.com/angelmondragon/marketsettle-backend/internal/audit"
	"github.com/angelmondragon/marketsettle-backend/internal/disputes"
	"github.com/angelmondragon/marketsettle-backend/internal/identity"
	"github.com/angelmondragon/marketsettle-backend/internal/invoices"
	"github.com/angelmondragon/marketsettle-backend/internal/ledger"
	"github.com/angelmondragon/marketsettle-backend/internal/orders"
	"github.com/angelmondragon/marketsettle-backend/internal/payments"
	"github.com/angelmondragon/marketsettle-backend/internal/payouts"
	"github.com/angelmondragon/marketsettle-backend/internal/returns"
	"github.com/angelmondragon/marketsettle-backend/pkg/config"
	"github.com/angelmondragon/marketsettle-backend/pkg/db"
	"github.com/angelmondragon/marketsettle-backend/pkg/logger"
	"github.com/angelmondragon/marketsettle-backend/pkg/outbox"
	"github.com/angelmondragon/marketsettle-backend/pkg/security"
)

// Engines holds one instance of every engine sharing a database client.
type Engines struct {
	Identity *identity.Resolver
	Outbox   *outbox.Service
	OutboxDB *outbox.Repository
	Orders   orders.Service
	Payments payments.Service
	Invoices invoices.Service
	Disputes disputes.Service
	Returns  returns.Service
	Payouts  payouts.Service
}

// Options override defaults, mainly for tests.
type Options struct {
	Now    func() time.Time
	Sealer *security.Sealer
}

func NewEngines(cfg *config.Config, client *db.Client, logg *logger.Logger, opts Options) (*Engines, error) {
	if cfg == nil || client == nil {
		return nil, fmt.Errorf("config and database client are required")
	}
	conn := client.DB()
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	retries := cfg.Marketplace.NumberRetryAttempts

	outboxRepo := outbox.NewRepository(conn)
	outboxSvc, err := outbox.NewService(outbox.ServiceParams{
		DB:          client,
		Repository:  outboxRepo,
		DLQ:         outbox.NewDLQRepository(conn),
		Logger:      logg,
		MaxAttempts: cfg.Outbox.MaxAttempts,
		Now:         now,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox: %w", err)
	}
	recorder := audit.NewRecorder(conn)
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn), logg)
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}

	sealer := opts.Sealer
	if sealer == nil {
		sealer, err = security.NewSealer(cfg.Security)
		if err != nil {
			return nil, fmt.Errorf("sealer: %w", err)
		}
	}

	orderRepo := orders.NewRepository(conn)
	invoiceRepo := invoices.NewRepository(conn)
	disputeRepo := disputes.NewRepository(conn)

	invoiceSvc, err := invoices.NewService(invoices.ServiceParams{
		Repo:                invoiceRepo,
		Orders:              orderRepo,
		Tx:                  client,
		Outbox:              outboxSvc,
		Audit:               recorder,
		Logger:              logg,
		NumberRetryAttempts: retries,
		Now:                 now,
	})
	if err != nil {
		return nil, fmt.Errorf("invoices: %w", err)
	}

	paymentSvc, err := payments.NewService(payments.ServiceParams{
		Repo:                payments.NewRepository(conn),
		Orders:              orderRepo,
		Invoices:            invoiceSvc,
		Ledger:              ledgerSvc,
		Tx:                  client,
		Outbox:              outboxSvc,
		Audit:               recorder,
		Tolerance:           cfg.Marketplace.Tolerance(),
		Logger:              logg,
		NumberRetryAttempts: retries,
		Now:                 now,
	})
	if err != nil {
		return nil, fmt.Errorf("payments: %w", err)
	}

	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repo:                orderRepo,
		Tx:                  client,
		Outbox:              outboxSvc,
		Audit:               recorder,
		COD:                 paymentSvc,
		Logger:              logg,
		NumberRetryAttempts: retries,
		Now:                 now,
	})
	if err != nil {
		return nil, fmt.Errorf("orders: %w", err)
	}

	disputeSvc, err := disputes.NewService(disputes.ServiceParams{
		Repo:                disputeRepo,
		Orders:              orderRepo,
		Tx:                  client,
		Outbox:              outboxSvc,
		Audit:               recorder,
		Policy:              disputes.PolicyFromConfig(cfg.Marketplace),
		Logger:              logg,
		NumberRetryAttempts: retries,
		Now:                 now,
	})
	if err != nil {
		return nil, fmt.Errorf("disputes: %w", err)
	}

	returnSvc, err := returns.NewService(returns.ServiceParams{
		Repo:                returns.NewRepository(conn),
		Disputes:            disputeRepo,
		Orders:              orderRepo,
		Ledger:              ledgerSvc,
		Tx:                  client,
		Outbox:              outboxSvc,
		Audit:               recorder,
		Logger:              logg,
		NumberRetryAttempts: retries,
		Now:                 now,
	})
	if err != nil {
		return nil, fmt.Errorf("returns: %w", err)
	}

	payoutSvc, err := payouts.NewService(payouts.ServiceParams{
		Repo:                payouts.NewRepository(conn),
		BankAccounts:        payouts.NewBankAccountRepository(conn),
		Invoices:            invoiceRepo,
		Sealer:              sealer,
		Tx:                  client,
		Outbox:              outboxSvc,
		Audit:               recorder,
		Policy:              payouts.PolicyFromConfig(cfg.Marketplace),
		Logger:              logg,
		NumberRetryAttempts: retries,
		Now:                 now,
	})
	if err != nil {
		return nil, fmt.Errorf("payouts: %w", err)
	}

	return &Engines{
		Identity: identity.NewResolver(conn),
		Outbox:   outboxSvc,
		OutboxDB: outboxRepo,
		Orders:   orderSvc,
		Payments: paymentSvc,
		Invoices: invoiceSvc,
		Disputes: disputeSvc,
		Returns:  returnSvc,
		Payouts:  payoutSvc,
	}, nil
}
