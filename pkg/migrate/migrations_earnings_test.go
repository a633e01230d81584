package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEarningsMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_creator_earnings_table.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no earnings migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS creator_earnings",
		"CHECK (fee_minor + net_minor = gross_minor)",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_earnings_dedupe_key",
		"FOREIGN KEY (purchase_id) REFERENCES purchases(id)",
		"WHERE paid_out = FALSE AND payout_id IS NULL AND status = 'accrued'",
		"DROP TABLE IF EXISTS creator_earnings",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestPayoutsMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_payouts_table.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no payouts migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TYPE payout_status AS ENUM ('pending', 'paid', 'failed')",
		"CREATE TABLE IF NOT EXISTS payouts",
		"CHECK (period_end > period_start)",
		"ADD CONSTRAINT fk_earnings_payout",
		"DROP TABLE IF EXISTS payouts",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestWebhookEventsMigrationContainsDedupeIndex(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_webhook_events_table.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no webhook events migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS webhook_events",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_webhook_events_provider_event",
		"ON webhook_events (provider, provider_event_id)",
		"DROP TABLE IF EXISTS webhook_events",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}
