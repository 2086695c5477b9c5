package store

import (
	"context"

	"github.com/calyxbio/warrant/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DecisionStore struct {
	db *pgxpool.Pool
}

func NewDecisionStore(db *pgxpool.Pool) *DecisionStore {
	return &DecisionStore{db: db}
}

func (s *DecisionStore) Append(ctx context.Context, e *domain.DecisionEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO decision_events (id, run_id, cycle, kind, schema_version, outcome, template, regime, base_cost, inflated_cost, info_gain_bits, entropy_penalty, qc_penalty, reward, horizon_scale, budget_remaining, debt_bits, decided_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		e.ID, e.RunID, e.Cycle, e.Kind, e.SchemaVersion, e.Outcome, e.Template, e.Regime, e.BaseCost, e.InflatedCost, e.InfoGainBits, e.EntropyPenalty, e.QCPenalty, e.Reward, e.HorizonScale, e.BudgetRemaining, e.DebtBits, e.DecidedAt,
	)
	return err
}

func (s *DecisionStore) ListByRun(ctx context.Context, runID uuid.UUID, limit, offset int) ([]domain.DecisionEvent, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, run_id, cycle, kind, schema_version, outcome, template, regime, base_cost, inflated_cost, info_gain_bits, entropy_penalty, qc_penalty, reward, horizon_scale, budget_remaining, debt_bits, decided_at
		 FROM decision_events
		 WHERE run_id = $1
		 ORDER BY cycle ASC
		 LIMIT $2 OFFSET $3`,
		runID, limit, offset,
	)
	if err != nil {
		if tableMissing(err) {
			return []domain.DecisionEvent{}, nil
		}
		return nil, err
	}
	defer rows.Close()

	var events []domain.DecisionEvent
	for rows.Next() {
		var e domain.DecisionEvent
		if err := rows.Scan(&e.ID, &e.RunID, &e.Cycle, &e.Kind, &e.SchemaVersion, &e.Outcome, &e.Template, &e.Regime, &e.BaseCost, &e.InflatedCost, &e.InfoGainBits, &e.EntropyPenalty, &e.QCPenalty, &e.Reward, &e.HorizonScale, &e.BudgetRemaining, &e.DebtBits, &e.DecidedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
