package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types written by the engine.
const (
	UserCreated       = "user.created"
	DecisionCreated   = "decision.created"
	DecisionCommitted = "decision.committed"
	DecisionUpdated   = "decision.updated"
	OutcomeLogged     = "outcome.logged"
	LearningUpdated   = "outcome.learning_updated"
	SnapshotRecorded  = "snapshot.recorded"
	APIKeyCreated     = "apikey.created"
	APIKeyRevoked     = "apikey.revoked"
)

type Writer struct {
	Now func() time.Time
}

type Payload map[string]any

// Append writes one event row inside tx so it commits or rolls back with the
// change it describes.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, userID, entityKind, entityID string, payload Payload) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,user_id,entity_kind,entity_id,payload_json) VALUES (?,?,?,?,?,?)`,
		now().UTC().Format(time.RFC3339Nano), evtType, nullable(userID), entityKind, nullable(entityID), string(data))
	if err != nil {
		return fmt.Errorf("append %s event: %w", evtType, err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
