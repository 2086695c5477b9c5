package store

import (
	"context"

	"github.com/calyxbio/warrant/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RefusalStore struct {
	db *pgxpool.Pool
}

func NewRefusalStore(db *pgxpool.Pool) *RefusalStore {
	return &RefusalStore{db: db}
}

func (s *RefusalStore) Append(ctx context.Context, e *domain.RefusalEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO refusal_events (id, run_id, cycle, kind, schema_version, template, proposed_cost, inflated_cost, debt_bits, budget_remaining, hard_threshold, rule, refused_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		e.ID, e.RunID, e.Cycle, e.Kind, e.SchemaVersion, e.Template, e.ProposedCost, e.InflatedCost, e.DebtBits, e.BudgetRemaining, e.HardThreshold, e.Rule, e.RefusedAt,
	)
	return err
}

func (s *RefusalStore) ListByRun(ctx context.Context, runID uuid.UUID, limit, offset int) ([]domain.RefusalEvent, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, run_id, cycle, kind, schema_version, template, proposed_cost, inflated_cost, debt_bits, budget_remaining, hard_threshold, rule, refused_at
		 FROM refusal_events
		 WHERE run_id = $1
		 ORDER BY cycle ASC
		 LIMIT $2 OFFSET $3`,
		runID, limit, offset,
	)
	if err != nil {
		if tableMissing(err) {
			return []domain.RefusalEvent{}, nil
		}
		return nil, err
	}
	defer rows.Close()

	var events []domain.RefusalEvent
	for rows.Next() {
		var e domain.RefusalEvent
		if err := rows.Scan(&e.ID, &e.RunID, &e.Cycle, &e.Kind, &e.SchemaVersion, &e.Template, &e.ProposedCost, &e.InflatedCost, &e.DebtBits, &e.BudgetRemaining, &e.HardThreshold, &e.Rule, &e.RefusedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *RefusalStore) CountByRun(ctx context.Context, runID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM refusal_events WHERE run_id = $1`,
		runID,
	).Scan(&count)
	if err != nil {
		if tableMissing(err) {
			return 0, nil
		}
		return 0, err
	}
	return count, nil
}
