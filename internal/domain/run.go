package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// DebtParams tunes the epistemic-debt economy.
type DebtParams struct {
	// Sensitivity is the per-bit cost inflation factor.
	Sensitivity       float64 `json:"sensitivity" yaml:"sensitivity"`
	HardThresholdBits float64 `json:"hard_threshold_bits" yaml:"hard_threshold_bits"`
	EntropyWeight     float64 `json:"entropy_weight" yaml:"entropy_weight"`
}

// SNRMode selects how sub-floor readings are handled.
type SNRMode string

const (
	SNRStrict  SNRMode = "strict"
	SNRLenient SNRMode = "lenient"
)

type SNRParams struct {
	KSigma float64 `json:"k_sigma" yaml:"k_sigma"`
	Mode   SNRMode `json:"mode" yaml:"mode"`
}

type SpatialParams struct {
	SeverityThreshold   float64 `json:"severity_threshold" yaml:"severity_threshold"`
	ReplateCost         float64 `json:"replate_cost" yaml:"replate_cost"`
	ReplicateCostFactor float64 `json:"replicate_cost_factor" yaml:"replicate_cost_factor"`
	ProceedPenalty      float64 `json:"proceed_penalty" yaml:"proceed_penalty"`
}

// RunSpec is the driver-supplied configuration for one run.
type RunSpec struct {
	Seed                 int64          `json:"seed" yaml:"seed"`
	TotalBudget          float64        `json:"total_budget" yaml:"total_budget"`
	MaxCycles            int            `json:"max_cycles" yaml:"max_cycles"`
	Templates            []string       `json:"templates" yaml:"templates"`
	CalibrationTemplates []string       `json:"calibration_templates" yaml:"calibration_templates"`
	Gate                 GateThresholds `json:"gate" yaml:"gate"`
	Debt                 DebtParams     `json:"debt" yaml:"debt"`
	SNR                  SNRParams      `json:"snr" yaml:"snr"`
	Spatial              SpatialParams  `json:"spatial" yaml:"spatial"`
	CostWeight           float64        `json:"cost_weight" yaml:"cost_weight"`
}

// Validate rejects specs the loop cannot honor.
func (s *RunSpec) Validate() error {
	if s.TotalBudget <= 0 {
		return fmt.Errorf("total_budget must be positive, got %v", s.TotalBudget)
	}
	if s.MaxCycles <= 0 {
		return fmt.Errorf("max_cycles must be positive, got %d", s.MaxCycles)
	}
	if len(s.Templates) == 0 {
		return fmt.Errorf("at least one template must be enabled")
	}
	if len(s.CalibrationTemplates) == 0 {
		return fmt.Errorf("calibration_templates must not be empty: a path out of debt must exist")
	}
	if s.Gate.Exit <= s.Gate.Enter {
		return fmt.Errorf("gate exit threshold (%v) must exceed enter threshold (%v)", s.Gate.Exit, s.Gate.Enter)
	}
	if s.Gate.SustainCycles < 1 {
		return fmt.Errorf("gate sustain_cycles must be at least 1, got %d", s.Gate.SustainCycles)
	}
	if s.SNR.Mode != SNRStrict && s.SNR.Mode != SNRLenient {
		return fmt.Errorf("snr mode must be %q or %q, got %q", SNRStrict, SNRLenient, s.SNR.Mode)
	}
	return nil
}

// RunSummary is the aggregate persisted when a run finishes.
type RunSummary struct {
	CyclesExecuted   int     `json:"cycles_executed"`
	ActionsExecuted  int     `json:"actions_executed"`
	Refusals         int     `json:"refusals"`
	GateTransitions  int     `json:"gate_transitions"`
	MitigationCycles int     `json:"mitigation_cycles"`
	FinalDebtBits    float64 `json:"final_debt_bits"`
	BudgetRemaining  float64 `json:"budget_remaining"`
	TotalReward      float64 `json:"total_reward"`
}

// Run is the registry row for one run of the loop.
type Run struct {
	ID            uuid.UUID   `json:"id"`
	Status        RunStatus   `json:"status"`
	Spec          RunSpec     `json:"spec"`
	Summary       *RunSummary `json:"summary,omitempty"`
	FailureReason string      `json:"failure_reason,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	StartedAt     *time.Time  `json:"started_at,omitempty"`
	FinishedAt    *time.Time  `json:"finished_at,omitempty"`
}
