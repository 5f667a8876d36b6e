package app

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"decylo/internal/config"
	"decylo/internal/db"
	"decylo/internal/engine"
	"decylo/internal/migrate"
)

// DefaultUserID is used by the local CLI when no user is given.
const DefaultUserID = "local-user"

// ResolveUser picks the acting user for local commands: the override when
// set, otherwise DefaultUserID. The user row is created on first use.
func ResolveUser(ctx context.Context, eng engine.Engine, override string) (string, error) {
	userID := strings.TrimSpace(override)
	if userID == "" {
		userID = DefaultUserID
	}
	if err := eng.EnsureUser(ctx, userID); err != nil {
		return "", err
	}
	return userID, nil
}

// Open opens and migrates the workspace journal and loads decylo.yml,
// falling back to defaults when the file is absent.
func Open(ctx context.Context, workspace string) (*sql.DB, *config.Config, error) {
	cfg, err := config.LoadOrDefault(workspace)
	if err != nil {
		return nil, nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, nil, err
	}
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("migrate journal: %w", err)
	}
	return conn, cfg, nil
}
