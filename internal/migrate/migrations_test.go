package migrate

import (
	"context"
	"testing"

	"decylo/internal/db"
)

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	migrations, err := Migrations()
	if err != nil {
		t.Fatalf("list migrations: %v", err)
	}
	if len(migrations) == 0 || migrations[0].Version != 1 {
		t.Fatalf("unexpected migrations %+v", migrations)
	}
	latest := migrations[len(migrations)-1].Version

	for i := 0; i < 2; i++ {
		v, err := Migrate(ctx, conn)
		if err != nil {
			t.Fatalf("migrate run %d: %v", i, err)
		}
		if v != latest {
			t.Fatalf("run %d: version %d, want %d", i, v, latest)
		}
	}

	for _, table := range []string{"users", "api_keys", "decisions", "options", "outcomes", "health_snapshots", "events"} {
		var n int
		if err := conn.QueryRowContext(ctx, `SELECT count(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n); err != nil {
			t.Fatalf("lookup %s: %v", table, err)
		}
		if n != 1 {
			t.Fatalf("table %s missing", table)
		}
	}
}
