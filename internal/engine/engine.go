package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"decylo/internal/config"
	"decylo/internal/domain"
	"decylo/internal/engine/auth"
	"decylo/internal/events"
	"decylo/internal/lifecycle"
	"decylo/internal/repo"
	"decylo/internal/telemetry"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Auth   auth.Service
	Events events.Writer
	Config *config.Config
	Logger *log.Logger
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	r := repo.Repo{DB: db}
	return Engine{
		DB:     db,
		Repo:   r,
		Auth:   auth.Service{Repo: r},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// today returns now in the journal time zone.
func (e Engine) today() time.Time {
	if e.Config == nil {
		return e.now().UTC()
	}
	return e.now().In(e.Config.Location())
}

func (e Engine) logger() *log.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return log.Default()
}

// events stamps rows with the engine clock unless Events carries its own.
func (e Engine) events() events.Writer {
	if e.Events.Now == nil {
		return events.Writer{Now: e.now}
	}
	return e.Events
}

// start opens a span for an engine operation tagged with the acting user.
func (e Engine) start(ctx context.Context, op, userID string) (context.Context, trace.Span) {
	return telemetry.Tracer().Start(ctx, "engine."+op, trace.WithAttributes(attribute.String("decylo.user_id", userID)))
}

// finish records err on span, logs rule violations and ends the span.
func (e Engine) finish(span trace.Span, op string, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var v *lifecycle.Violation
		if errors.As(err, &v) {
			e.logger().Printf("engine: %s rejected: %s: %s", op, v.Kind, v.Message)
		}
	}
	span.End()
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// EnsureUser creates the user row when missing.
func (e Engine) EnsureUser(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("user id is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	created, err := e.Repo.EnsureUser(ctx, tx, userID, e.now())
	if err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	if created {
		if err := e.events().Append(ctx, tx, events.UserCreated, userID, "user", userID, nil); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CreateAPIKey mints a key for userID. The plaintext key is returned once;
// only its hash is stored.
func (e Engine) CreateAPIKey(ctx context.Context, userID, name string) (domain.APIKey, string, error) {
	if err := e.EnsureUser(ctx, userID); err != nil {
		return domain.APIKey{}, "", err
	}
	plain, err := generateKey()
	if err != nil {
		return domain.APIKey{}, "", err
	}
	key := domain.APIKey{
		ID:        newID(),
		UserID:    userID,
		Name:      strings.TrimSpace(name),
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.APIKey{}, "", err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return domain.APIKey{}, "", fmt.Errorf("insert api key: %w", err)
	}
	if err := e.events().Append(ctx, tx, events.APIKeyCreated, userID, "api_key", key.ID, events.Payload{"name": key.Name}); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := tx.Commit(); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, plain, nil
}

// ListAPIKeys returns the user's keys, newest first. Hashes only.
func (e Engine) ListAPIKeys(ctx context.Context, userID string) ([]domain.APIKey, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("user id is required")
	}
	return e.Repo.ListAPIKeys(ctx, userID)
}

// RevokeAPIKey deletes one of the user's keys. Keys of other users are
// reported as not found.
func (e Engine) RevokeAPIKey(ctx context.Context, userID, id string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteAPIKey(ctx, tx, userID, id); err != nil {
		return fmt.Errorf("revoke api key %s: %w", id, err)
	}
	if err := e.events().Append(ctx, tx, events.APIKeyRevoked, userID, "api_key", id, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// ListEvents returns the user's audit trail, newest first.
func (e Engine) ListEvents(ctx context.Context, f repo.EventFilters) ([]domain.Event, error) {
	if f.UserID == "" {
		return nil, errors.New("user id is required")
	}
	return e.Repo.LatestEvents(ctx, f)
}
