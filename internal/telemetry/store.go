// Package telemetry records per-turn engine telemetry in Postgres for the
// reporting and tuning workflows.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/quitaai/cobranca-ai-platform/internal/engine"
)

// DB is the subset of pgxpool.Pool the store needs; pgxmock satisfies it in
// tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore persists telemetry records to PostgreSQL.
type PGStore struct {
	db     DB
	tracer trace.Tracer
}

// NewPGStore builds a Postgres-backed telemetry store.
func NewPGStore(db DB) *PGStore {
	if db == nil {
		panic("telemetry: db cannot be nil")
	}
	return &PGStore{db: db, tracer: otel.Tracer("cobranca/telemetry")}
}

// Insert writes one turn record.
func (s *PGStore) Insert(ctx context.Context, rec engine.TelemetryRecord) error {
	if rec.Sender == "" {
		return errors.New("telemetry: sender required")
	}
	if rec.At.IsZero() {
		rec.At = time.Now().UTC()
	}

	ctx, span := s.tracer.Start(ctx, "telemetry.insert")
	defer span.End()
	span.SetAttributes(attribute.String("telemetry.intent", string(rec.Intent)))

	factsJSON, err := marshalFacts(rec.FactsDelta)
	if err != nil {
		return err
	}

	if _, execErr := s.db.Exec(ctx, `
		INSERT INTO engine_telemetry (
			id, sender, intent, confidence, emotion, intensity,
			facts_delta, state_before, state_after, template_id, occurred_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, uuid.NewString(), rec.Sender, string(rec.Intent), rec.Confidence,
		string(rec.Emotion), rec.Intensity, factsJSON,
		string(rec.StateBefore), string(rec.StateAfter), rec.TemplateID, rec.At); execErr != nil {
		return fmt.Errorf("telemetry: failed to persist record: %w", execErr)
	}
	return nil
}

// IntentCounts returns per-intent turn counts since the given time.
func (s *PGStore) IntentCounts(ctx context.Context, since time.Time) (map[string]int64, error) {
	rows, err := s.db.Query(ctx, `
		SELECT intent, COUNT(*)
		FROM engine_telemetry
		WHERE occurred_at >= $1
		GROUP BY intent
	`, since)
	if err != nil {
		return nil, fmt.Errorf("telemetry: failed to count intents: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var intent string
		var count int64
		if err := rows.Scan(&intent, &count); err != nil {
			return nil, fmt.Errorf("telemetry: failed to scan intent count: %w", err)
		}
		out[intent] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("telemetry: intent count rows: %w", err)
	}
	return out, nil
}

// RecentBySender returns the most recent records for one sender, newest
// first.
func (s *PGStore) RecentBySender(ctx context.Context, sender string, limit int) ([]engine.TelemetryRecord, error) {
	if sender == "" {
		return nil, errors.New("telemetry: sender required")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(ctx, `
		SELECT sender, intent, confidence, emotion, intensity,
		       facts_delta, state_before, state_after, template_id, occurred_at
		FROM engine_telemetry
		WHERE sender = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`, sender, limit)
	if err != nil {
		return nil, fmt.Errorf("telemetry: failed to fetch records: %w", err)
	}
	defer rows.Close()

	var out []engine.TelemetryRecord
	for rows.Next() {
		var (
			rec       engine.TelemetryRecord
			intent    string
			emotion   string
			before    string
			after     string
			factsJSON []byte
		)
		if err := rows.Scan(&rec.Sender, &intent, &rec.Confidence, &emotion,
			&rec.Intensity, &factsJSON, &before, &after, &rec.TemplateID, &rec.At); err != nil {
			return nil, fmt.Errorf("telemetry: failed to scan record: %w", err)
		}
		rec.Intent = engine.Intent(intent)
		rec.Emotion = engine.Emotion(emotion)
		rec.StateBefore = engine.BillingState(before)
		rec.StateAfter = engine.BillingState(after)
		if len(factsJSON) > 0 {
			if err := json.Unmarshal(factsJSON, &rec.FactsDelta); err != nil {
				return nil, fmt.Errorf("telemetry: failed to decode facts_delta: %w", err)
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("telemetry: record rows: %w", err)
	}
	return out, nil
}

func marshalFacts(facts map[string]string) ([]byte, error) {
	if len(facts) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(facts)
	if err != nil {
		return nil, fmt.Errorf("telemetry: failed to encode facts_delta: %w", err)
	}
	return data, nil
}
