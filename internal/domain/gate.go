package domain

// GateState is the hysteresis state of a named stability gate.
type GateState string

const (
	GateNotObserved GateState = "not_observed"
	GateUnstable    GateState = "unstable"
	GateStable      GateState = "stable"
	GateRevoked     GateState = "revoked"
)

// Regime is the decision regime the loop derives from gate state.
type Regime string

const (
	// RegimePreGate permits only calibration actions.
	RegimePreGate Regime = "pre_gate"
	// RegimeInGate unlocks exploration.
	RegimeInGate Regime = "in_gate"
	// RegimeGateRevoked forces a return toward calibration.
	RegimeGateRevoked Regime = "gate_revoked"
)

// RegimeFor maps a gate state to the loop's decision regime.
func RegimeFor(s GateState) Regime {
	switch s {
	case GateStable:
		return RegimeInGate
	case GateRevoked:
		return RegimeGateRevoked
	default:
		return RegimePreGate
	}
}

// GateThresholds configures one gate's hysteresis band. Exit must exceed
// Enter so a statistic hovering between the two never flaps the gate.
type GateThresholds struct {
	Enter         float64 `json:"enter" yaml:"enter"`
	Exit          float64 `json:"exit" yaml:"exit"`
	DFMin         float64 `json:"df_min" yaml:"df_min"`
	DriftMax      float64 `json:"drift_max" yaml:"drift_max"`
	SustainCycles int     `json:"sustain_cycles" yaml:"sustain_cycles"`
}
