package health_test

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/custodia-chain/custodia/internal/health"
)

func TestHealthyProbeStaysHealthy(t *testing.T) {
	m := health.New(health.Config{FailThreshold: 2}, zap.NewNop())
	m.Register("ledger", func(ctx context.Context) error { return nil })

	m.CheckAll(context.Background())

	statuses, all := m.Snapshot()
	if !all {
		t.Error("expected all healthy")
	}
	if len(statuses) != 1 || !statuses[0].Healthy || statuses[0].Name != "ledger" {
		t.Errorf("unexpected snapshot: %+v", statuses)
	}
}

func TestUnhealthyOnlyAfterThreshold(t *testing.T) {
	m := health.New(health.Config{FailThreshold: 3}, zap.NewNop())
	m.Register("database", func(ctx context.Context) error { return errors.New("connection refused") })

	for i := 0; i < 2; i++ {
		m.CheckAll(context.Background())
	}
	if _, all := m.Snapshot(); !all {
		t.Fatal("unhealthy before reaching the fail threshold")
	}

	m.CheckAll(context.Background())
	statuses, all := m.Snapshot()
	if all {
		t.Fatal("expected unhealthy at the fail threshold")
	}
	if statuses[0].LastError == "" {
		t.Error("last error not recorded")
	}
}

func TestRecoveryResetsFailCount(t *testing.T) {
	var fail bool
	m := health.New(health.Config{FailThreshold: 2}, zap.NewNop())
	m.Register("scoring", func(ctx context.Context) error {
		if fail {
			return errors.New("boom")
		}
		return nil
	})

	fail = true
	m.CheckAll(context.Background())
	m.CheckAll(context.Background())
	if _, all := m.Snapshot(); all {
		t.Fatal("expected unhealthy after consecutive failures")
	}

	fail = false
	m.CheckAll(context.Background())
	if _, all := m.Snapshot(); !all {
		t.Fatal("expected healthy after recovery")
	}

	// A single new failure must not flip it straight back.
	fail = true
	m.CheckAll(context.Background())
	if _, all := m.Snapshot(); !all {
		t.Fatal("one failure after recovery should not cross the threshold")
	}
}

func TestSnapshotCoversAllDependencies(t *testing.T) {
	m := health.New(health.Config{}, zap.NewNop())
	m.Register("ledger", func(ctx context.Context) error { return nil })
	m.Register("database", func(ctx context.Context) error { return nil })
	m.Register("ipfs", func(ctx context.Context) error { return nil })

	m.CheckAll(context.Background())

	statuses, _ := m.Snapshot()
	if len(statuses) != 3 {
		t.Fatalf("got %d statuses, want 3", len(statuses))
	}
}
