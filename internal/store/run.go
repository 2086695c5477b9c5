package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/calyxbio/warrant/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RunStore struct {
	db *pgxpool.Pool
}

func NewRunStore(db *pgxpool.Pool) *RunStore {
	return &RunStore{db: db}
}

func (s *RunStore) Create(ctx context.Context, r *domain.Run) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = domain.RunPending
	}
	specJSON, err := json.Marshal(r.Spec)
	if err != nil {
		return fmt.Errorf("marshal spec: %w", err)
	}
	return s.db.QueryRow(ctx,
		`INSERT INTO runs (id, status, spec)
		 VALUES ($1, $2, $3)
		 RETURNING created_at`,
		r.ID, r.Status, specJSON,
	).Scan(&r.CreatedAt)
}

func (s *RunStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	r := &domain.Run{}
	var specJSON []byte
	var summaryJSON []byte
	err := s.db.QueryRow(ctx,
		`SELECT id, status, spec, summary, failure_reason, created_at, started_at, finished_at
		 FROM runs WHERE id = $1`,
		id,
	).Scan(&r.ID, &r.Status, &specJSON, &summaryJSON, &r.FailureReason, &r.CreatedAt, &r.StartedAt, &r.FinishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(specJSON, &r.Spec); err != nil {
		return nil, fmt.Errorf("unmarshal spec: %w", err)
	}
	if len(summaryJSON) > 0 {
		r.Summary = &domain.RunSummary{}
		if err := json.Unmarshal(summaryJSON, r.Summary); err != nil {
			return nil, fmt.Errorf("unmarshal summary: %w", err)
		}
	}
	return r, nil
}

func (s *RunStore) List(ctx context.Context, limit, offset int) ([]domain.Run, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, status, spec, summary, failure_reason, created_at, started_at, finished_at
		 FROM runs
		 ORDER BY created_at DESC
		 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		var r domain.Run
		var specJSON, summaryJSON []byte
		if err := rows.Scan(&r.ID, &r.Status, &specJSON, &summaryJSON, &r.FailureReason, &r.CreatedAt, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(specJSON, &r.Spec); err != nil {
			return nil, fmt.Errorf("unmarshal spec: %w", err)
		}
		if len(summaryJSON) > 0 {
			r.Summary = &domain.RunSummary{}
			if err := json.Unmarshal(summaryJSON, r.Summary); err != nil {
				return nil, fmt.Errorf("unmarshal summary: %w", err)
			}
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *RunStore) MarkStarted(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE runs SET status = $2, started_at = NOW() WHERE id = $1`,
		id, domain.RunRunning,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RunStore) MarkFinished(ctx context.Context, id uuid.UUID, status domain.RunStatus, summary *domain.RunSummary, failureReason string) error {
	var summaryJSON []byte
	if summary != nil {
		var err error
		summaryJSON, err = json.Marshal(summary)
		if err != nil {
			return fmt.Errorf("marshal summary: %w", err)
		}
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE runs SET status = $2, summary = $3, failure_reason = $4, finished_at = NOW() WHERE id = $1`,
		id, status, summaryJSON, failureReason,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
