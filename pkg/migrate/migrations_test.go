package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/marketsettle-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one %s migration, got %d", suffix, len(matches))
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestMigrationsContainConstraints(t *testing.T) {
	cases := map[string][]string{
		"create_orders": {
			"CREATE TABLE IF NOT EXISTS orders",
			"CONSTRAINT uq_orders_number UNIQUE (order_number)",
			"'pending_confirmation','confirmed','in_progress','shipped','delivered','failed','cancelled','refunded','closed'",
			"DROP TABLE IF EXISTS orders",
		},
		"create_invoices_and_payments": {
			"CONSTRAINT uq_invoices_order UNIQUE (order_id)",
			"CREATE UNIQUE INDEX IF NOT EXISTS uq_payments_order_bank_reference",
			"WHERE bank_reference IS NOT NULL",
			"amount numeric(14,2) NOT NULL CHECK (amount > 0)",
		},
		"create_disputes_and_returns": {
			"CREATE UNIQUE INDEX IF NOT EXISTS uq_disputes_active_order",
			"WHERE status IN ('open','under_review','seller_responded','escalated')",
			"CONSTRAINT uq_order_returns_dispute UNIQUE (dispute_id)",
			"items jsonb NOT NULL",
		},
		"create_payouts": {
			"CONSTRAINT chk_payouts_net CHECK (net_amount = gross_amount - fee_amount)",
			"ADD CONSTRAINT fk_invoices_payout FOREIGN KEY (payout_id) REFERENCES payouts(id)",
			"ALTER TABLE invoices DROP CONSTRAINT IF EXISTS fk_invoices_payout",
		},
		"create_outbox": {
			"CREATE TABLE IF NOT EXISTS outbox_events",
			"CONSTRAINT uq_outbox_dlq_event UNIQUE (event_id)",
			"WHERE status = 'pending'",
		},
		"create_sequence_counters": {
			"PRIMARY KEY (prefix, year)",
		},
	}

	for suffix, checks := range cases {
		content := readMigration(t, suffix)
		for _, sub := range checks {
			if !strings.Contains(content, sub) {
				t.Errorf("%s: missing expected statement %q", suffix, sub)
			}
		}
	}
}
