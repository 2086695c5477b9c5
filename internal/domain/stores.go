package domain

import (
	"context"

	"github.com/google/uuid"
)

// EvidenceStore is the durable append-only evidence stream.
type EvidenceStore interface {
	Append(ctx context.Context, events []EvidenceEvent) error
	ListByRun(ctx context.Context, runID uuid.UUID, limit, offset int) ([]EvidenceEvent, error)
}

// RefusalStore is the durable append-only refusal stream.
type RefusalStore interface {
	Append(ctx context.Context, e *RefusalEvent) error
	ListByRun(ctx context.Context, runID uuid.UUID, limit, offset int) ([]RefusalEvent, error)
	CountByRun(ctx context.Context, runID uuid.UUID) (int, error)
}

// DecisionStore is the durable append-only decision stream.
type DecisionStore interface {
	Append(ctx context.Context, e *DecisionEvent) error
	ListByRun(ctx context.Context, runID uuid.UUID, limit, offset int) ([]DecisionEvent, error)
}

// DiagnosticStore is the durable append-only diagnostics stream.
type DiagnosticStore interface {
	Append(ctx context.Context, e *DiagnosticEvent) error
	ListByRun(ctx context.Context, runID uuid.UUID, limit, offset int) ([]DiagnosticEvent, error)
}

// RunStore is the run registry.
type RunStore interface {
	Create(ctx context.Context, r *Run) error
	GetByID(ctx context.Context, id uuid.UUID) (*Run, error)
	List(ctx context.Context, limit, offset int) ([]Run, error)
	MarkStarted(ctx context.Context, id uuid.UUID) error
	MarkFinished(ctx context.Context, id uuid.UUID, status RunStatus, summary *RunSummary, failureReason string) error
}

// WorldClient executes a proposal against the external world (simulator or
// instrument) and returns raw wells in layout order. The core does not know
// or care which it is talking to.
type WorldClient interface {
	Execute(ctx context.Context, p *Proposal) ([]RawWell, error)
}
