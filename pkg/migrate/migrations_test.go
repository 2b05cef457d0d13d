package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/venturetrips/venture-backend/pkg/migrate"
)

func TestMigrationsDirValidates(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations dir: %v", err)
	}
}

func TestTransactionsMigrationEnforcesIdempotencyKey(t *testing.T) {
	content := readMigration(t, "*_create_transactions.sql")

	checks := []string{
		"CREATE UNIQUE INDEX ux_transactions_booking_type_code",
		"ON transactions (booking_id, type, code)",
		"DROP TABLE IF EXISTS transactions",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestPayoutsMigrationEnforcesOccurrenceKey(t *testing.T) {
	content := readMigration(t, "*_create_payouts.sql")

	checks := []string{
		"CREATE UNIQUE INDEX ux_payouts_tour_occurrence_guide",
		"ON payouts (tour_id, occurrence_date, guide_id)",
		"reference           text NOT NULL UNIQUE",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestNotificationsMigrationDedupesPrompts(t *testing.T) {
	content := readMigration(t, "*_create_notifications.sql")

	if !strings.Contains(content, "CREATE UNIQUE INDEX ux_notifications_booking_kind ON notifications (booking_id, kind)") {
		t.Error("missing dedup unique index on (booking_id, kind)")
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration file matching %s", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}
