package domain

import "github.com/google/uuid"

// ConditionSpec names one condition a proposal will measure and how many
// replicate wells it gets.
type ConditionSpec struct {
	Name       string  `json:"name"`
	Dose       float64 `json:"dose,omitempty"`
	Replicates int     `json:"replicates"`
}

// Proposal is a tentative action. It lives inside one cycle unless deferred
// through a MitigationContext.
type Proposal struct {
	ID         uuid.UUID       `json:"id"`
	Template   string          `json:"template"`
	Hypothesis string          `json:"hypothesis,omitempty"`
	Conditions []ConditionSpec `json:"conditions"`
	WellCost   float64         `json:"well_cost"`
	Forced     bool            `json:"forced"`
	Regime     Regime          `json:"regime"`
	// ExpectedGainBits is the information gain the agent claims this action
	// will deliver; the debt ledger settles it against what was realized.
	ExpectedGainBits float64 `json:"expected_gain_bits"`
	LayoutSeed       int64   `json:"layout_seed"`
}

// TotalWells is the proposal's well count across conditions.
func (p *Proposal) TotalWells() int {
	n := 0
	for _, c := range p.Conditions {
		n += c.Replicates
	}
	return n
}

// MitigationAction is one of the spatial-QC corrective choices.
type MitigationAction string

const (
	// MitigationReplate re-lays the plate with a new deterministic seed.
	MitigationReplate MitigationAction = "replate"
	// MitigationReplicate doubles the well count of each condition.
	MitigationReplicate MitigationAction = "replicate"
	// MitigationProceed accepts the flagged layout and takes a reward penalty.
	MitigationProceed MitigationAction = "proceed"
)

// MitigationOption is a candidate response to a flagged spatial statistic.
type MitigationOption struct {
	Action            MitigationAction `json:"action"`
	Cost              float64          `json:"cost"`
	ExpectedReduction float64          `json:"expected_reduction"`
	Penalty           float64          `json:"penalty"`
}

// MitigationContext is a corrective action deferred to the next integer
// cycle. It persists exactly one cycle boundary before being consumed.
type MitigationContext struct {
	CycleFlagged    int              `json:"cycle_flagged"`
	StatisticBefore float64          `json:"statistic_before"`
	Action          MitigationAction `json:"action"`
	Rationale       string           `json:"rationale"`
	Previous        *Proposal        `json:"previous"`
	LayoutSeed      int64            `json:"layout_seed"`
}
