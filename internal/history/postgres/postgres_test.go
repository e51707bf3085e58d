package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/loykin/crashwatch/internal/history"
)

func TestPostgresSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}
	defer func() {
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate PostgreSQL container: %v", err)
		}
	}()

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	sink, err := New(connStr)
	if err != nil {
		t.Fatalf("Failed to create PostgreSQL sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	alert := history.NewEvent(history.EventAlert, "db")
	alert.OccurredAt = time.Now().UTC().Add(-time.Minute)
	alert.LogsCollected = true
	alert.LogBytes = 2048
	if err := sink.Send(ctx, alert); err != nil {
		t.Fatalf("Failed to send alert event: %v", err)
	}
	recovery := history.NewEvent(history.EventRecovery, "db")
	if err := sink.Send(ctx, recovery); err != nil {
		t.Fatalf("Failed to send recovery event: %v", err)
	}
	if err := sink.Send(ctx, history.NewEvent(history.EventAlert, "web")); err != nil {
		t.Fatalf("Failed to send web event: %v", err)
	}

	var count int
	if err := sink.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM workload_events WHERE workload = $1", "db").Scan(&count); err != nil {
		t.Fatalf("Failed to query workload_events: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 events for db, got %d", count)
	}

	got, err := sink.Recent(ctx, "db", 0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 || got[0].ID != recovery.ID || got[1].ID != alert.ID {
		t.Fatalf("unexpected order %+v", got)
	}
	if !got[1].LogsCollected || got[1].LogBytes != 2048 {
		t.Fatalf("log fields not stored: %+v", got[1])
	}
	all, err := sink.Recent(ctx, "", 2)
	if err != nil || len(all) != 2 {
		t.Fatalf("limit not applied: %v %v", all, err)
	}
}

func TestNewEmptyDSN(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
}
