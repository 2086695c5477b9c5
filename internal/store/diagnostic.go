package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/calyxbio/warrant/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DiagnosticStore struct {
	db *pgxpool.Pool
}

func NewDiagnosticStore(db *pgxpool.Pool) *DiagnosticStore {
	return &DiagnosticStore{db: db}
}

func (s *DiagnosticStore) Append(ctx context.Context, e *domain.DiagnosticEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	detailsJSON, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO diagnostic_events (id, run_id, cycle, kind, schema_version, "check", statistic, threshold, flagged, choice, rationale, details, observed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		e.ID, e.RunID, e.Cycle, e.Kind, e.SchemaVersion, e.Check, e.Statistic, e.Threshold, e.Flagged, e.Choice, e.Rationale, detailsJSON, e.ObservedAt,
	)
	return err
}

func (s *DiagnosticStore) ListByRun(ctx context.Context, runID uuid.UUID, limit, offset int) ([]domain.DiagnosticEvent, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, run_id, cycle, kind, schema_version, "check", statistic, threshold, flagged, choice, rationale, details, observed_at
		 FROM diagnostic_events
		 WHERE run_id = $1
		 ORDER BY cycle ASC
		 LIMIT $2 OFFSET $3`,
		runID, limit, offset,
	)
	if err != nil {
		if tableMissing(err) {
			return []domain.DiagnosticEvent{}, nil
		}
		return nil, err
	}
	defer rows.Close()

	var events []domain.DiagnosticEvent
	for rows.Next() {
		var e domain.DiagnosticEvent
		var detailsJSON []byte
		if err := rows.Scan(&e.ID, &e.RunID, &e.Cycle, &e.Kind, &e.SchemaVersion, &e.Check, &e.Statistic, &e.Threshold, &e.Flagged, &e.Choice, &e.Rationale, &detailsJSON, &e.ObservedAt); err != nil {
			return nil, err
		}
		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &e.Details); err != nil {
				return nil, fmt.Errorf("unmarshal details: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
