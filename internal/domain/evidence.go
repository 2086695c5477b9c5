package domain

import (
	"time"

	"github.com/google/uuid"
)

// EvidenceSchemaVersion tags every durable evidence record so consumers can
// evolve the schema without guessing.
const EvidenceSchemaVersion = 1

// EvidenceKind discriminates evidence records in the durable stream.
type EvidenceKind string

const (
	// EvidenceKindMeasurement is a belief change backed by a measurement and
	// therefore requires an evidence time.
	EvidenceKindMeasurement EvidenceKind = "measurement"
	// EvidenceKindGateEvent marks a gate entering stable.
	EvidenceKindGateEvent EvidenceKind = "gate_event"
	// EvidenceKindGateLoss marks a gate being revoked.
	EvidenceKindGateLoss EvidenceKind = "gate_loss"
	// EvidenceKindInsolvency marks the insolvency flag flipping.
	EvidenceKindInsolvency EvidenceKind = "insolvency"
	// EvidenceKindFilterDisabled records that the noise-floor filter disabled
	// itself for a channel whose floor was never observed.
	EvidenceKindFilterDisabled EvidenceKind = "snr_filter_disabled"
	// EvidenceKindAuxiliary covers logged counter updates (refusal streaks,
	// debt snapshots) recorded outside the main update path.
	EvidenceKindAuxiliary EvidenceKind = "auxiliary"
)

// TimeExempt reports whether records of this kind may omit an evidence time.
// Gate transitions, insolvency flips, and filter self-disablement mark state
// facts rather than new measurements. Auxiliary counter updates are not
// exempt: the refusal or resolution they record happens at a known instant.
func (k EvidenceKind) TimeExempt() bool {
	switch k {
	case EvidenceKindGateEvent, EvidenceKindGateLoss, EvidenceKindInsolvency, EvidenceKindFilterDisabled:
		return true
	}
	return false
}

// BeliefName identifies a field of the belief state.
type BeliefName string

const (
	BeliefPooledSigma    BeliefName = "pooled_sigma"
	BeliefPooledDF       BeliefName = "pooled_df"
	BeliefRelativeWidth  BeliefName = "relative_width"
	BeliefDriftMetric    BeliefName = "drift_metric"
	BeliefEdgeBias       BeliefName = "edge_bias"
	BeliefResponseEffect BeliefName = "response_effect"
	BeliefGateState      BeliefName = "gate_state"
	BeliefInsolvency     BeliefName = "insolvency"
	BeliefDebtBits       BeliefName = "debt_bits"
	BeliefRefusalStreak  BeliefName = "refusal_streak"
	BeliefSNRChannel     BeliefName = "snr_channel"
)

// EvidenceEvent is an immutable record of one belief changing value.
type EvidenceEvent struct {
	ID            uuid.UUID      `json:"id"`
	RunID         uuid.UUID      `json:"run_id"`
	Cycle         int            `json:"cycle"`
	Kind          EvidenceKind   `json:"kind"`
	SchemaVersion int            `json:"schema_version"`
	Belief        BeliefName     `json:"belief"`
	Previous      any            `json:"previous"`
	New           any            `json:"new"`
	Payload       map[string]any `json:"payload,omitempty"`
	Conditions    []string       `json:"conditions,omitempty"`
	Note          string         `json:"note,omitempty"`
	// EvidenceTime is when the supporting measurement was observed. Required
	// unless Kind is time-exempt; never defaulted.
	EvidenceTime *time.Time `json:"evidence_time,omitempty"`
	// ClaimTime is when the claim this evidence supports was made (proposal
	// time for measurement evidence). EvidenceTime must not precede it.
	ClaimTime  time.Time `json:"claim_time"`
	Mitigation bool      `json:"mitigation,omitempty"`
}
