package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/calyxbio/warrant/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type EvidenceStore struct {
	db *pgxpool.Pool
}

func NewEvidenceStore(db *pgxpool.Pool) *EvidenceStore {
	return &EvidenceStore{db: db}
}

// Append writes a cycle's evidence buffer in one batch. Events are inserted
// in slice order so stream order matches emission order.
func (s *EvidenceStore) Append(ctx context.Context, events []domain.EvidenceEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i := range events {
		e := &events[i]
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}

		payloadJSON, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		previousJSON, err := json.Marshal(e.Previous)
		if err != nil {
			return fmt.Errorf("marshal previous: %w", err)
		}
		newJSON, err := json.Marshal(e.New)
		if err != nil {
			return fmt.Errorf("marshal new: %w", err)
		}

		batch.Queue(
			`INSERT INTO evidence_events (id, run_id, cycle, kind, schema_version, belief, previous, new_value, payload, conditions, note, evidence_time, claim_time, mitigation)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			e.ID, e.RunID, e.Cycle, e.Kind, e.SchemaVersion, e.Belief, previousJSON, newJSON, payloadJSON, e.Conditions, e.Note, e.EvidenceTime, e.ClaimTime, e.Mitigation,
		)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("append evidence event %d: %w", i, err)
		}
	}
	return nil
}

func (s *EvidenceStore) ListByRun(ctx context.Context, runID uuid.UUID, limit, offset int) ([]domain.EvidenceEvent, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, run_id, cycle, kind, schema_version, belief, previous, new_value, payload, conditions, note, evidence_time, claim_time, mitigation
		 FROM evidence_events
		 WHERE run_id = $1
		 ORDER BY cycle ASC, seq ASC
		 LIMIT $2 OFFSET $3`,
		runID, limit, offset,
	)
	if err != nil {
		if tableMissing(err) {
			return []domain.EvidenceEvent{}, nil
		}
		return nil, err
	}
	defer rows.Close()

	var events []domain.EvidenceEvent
	for rows.Next() {
		var e domain.EvidenceEvent
		var previousJSON, newJSON, payloadJSON []byte
		if err := rows.Scan(&e.ID, &e.RunID, &e.Cycle, &e.Kind, &e.SchemaVersion, &e.Belief, &previousJSON, &newJSON, &payloadJSON, &e.Conditions, &e.Note, &e.EvidenceTime, &e.ClaimTime, &e.Mitigation); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(previousJSON, &e.Previous); err != nil {
			return nil, fmt.Errorf("unmarshal previous: %w", err)
		}
		if err := json.Unmarshal(newJSON, &e.New); err != nil {
			return nil, fmt.Errorf("unmarshal new: %w", err)
		}
		if len(payloadJSON) > 0 {
			if err := json.Unmarshal(payloadJSON, &e.Payload); err != nil {
				return nil, fmt.Errorf("unmarshal payload: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
