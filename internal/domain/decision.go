package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	DecisionSchemaVersion   = 1
	DiagnosticSchemaVersion = 1
)

// DecisionOutcome summarizes what a cycle did.
type DecisionOutcome string

const (
	OutcomeExecuted   DecisionOutcome = "executed"
	OutcomeRefused    DecisionOutcome = "refused"
	OutcomeMitigation DecisionOutcome = "mitigation"
)

// DecisionEvent is the per-cycle record of the loop's choice and its
// accounting consequences.
type DecisionEvent struct {
	ID              uuid.UUID       `json:"id"`
	RunID           uuid.UUID       `json:"run_id"`
	Cycle           int             `json:"cycle"`
	Kind            string          `json:"kind"`
	SchemaVersion   int             `json:"schema_version"`
	Outcome         DecisionOutcome `json:"outcome"`
	Template        string          `json:"template"`
	Regime          Regime          `json:"regime"`
	BaseCost        float64         `json:"base_cost"`
	InflatedCost    float64         `json:"inflated_cost"`
	InfoGainBits    float64         `json:"info_gain_bits"`
	EntropyPenalty  float64         `json:"entropy_penalty"`
	QCPenalty       float64         `json:"qc_penalty"`
	Reward          float64         `json:"reward"`
	HorizonScale    float64         `json:"horizon_scale"`
	BudgetRemaining float64         `json:"budget_remaining"`
	DebtBits        float64         `json:"debt_bits"`
	DecidedAt       time.Time       `json:"decided_at"`
}

// DiagnosticEvent records a QC check and, when flagged, the mitigation choice.
type DiagnosticEvent struct {
	ID            uuid.UUID      `json:"id"`
	RunID         uuid.UUID      `json:"run_id"`
	Cycle         int            `json:"cycle"`
	Kind          string         `json:"kind"`
	SchemaVersion int            `json:"schema_version"`
	Check         string         `json:"check"`
	Statistic     float64        `json:"statistic"`
	Threshold     float64        `json:"threshold"`
	Flagged       bool           `json:"flagged"`
	Choice        string         `json:"choice,omitempty"`
	Rationale     string         `json:"rationale,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
	ObservedAt    time.Time      `json:"observed_at"`
}
