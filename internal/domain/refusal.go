package domain

import (
	"time"

	"github.com/google/uuid"
)

const RefusalSchemaVersion = 1

// RefusalRule identifies which rule rejected a candidate action.
type RefusalRule string

const (
	// RefusalRuleCost fires when the inflated cost exceeds remaining budget.
	RefusalRuleCost RefusalRule = "cost"
	// RefusalRuleThreshold fires when debt exceeds the hard threshold and the
	// template is not in the calibration set.
	RefusalRuleThreshold RefusalRule = "threshold"
)

// RefusalEvent permanently records a cycle whose candidate action was
// rejected. Budget and debt are captured as they stood at refusal time; a
// refusal changes neither.
type RefusalEvent struct {
	ID              uuid.UUID   `json:"id"`
	RunID           uuid.UUID   `json:"run_id"`
	Cycle           int         `json:"cycle"`
	Kind            string      `json:"kind"`
	SchemaVersion   int         `json:"schema_version"`
	Template        string      `json:"template"`
	ProposedCost    float64     `json:"proposed_cost"`
	InflatedCost    float64     `json:"inflated_cost"`
	DebtBits        float64     `json:"debt_bits"`
	BudgetRemaining float64     `json:"budget_remaining"`
	HardThreshold   float64     `json:"hard_threshold"`
	Rule            RefusalRule `json:"rule"`
	RefusedAt       time.Time   `json:"refused_at"`
}
