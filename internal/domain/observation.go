package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ChannelValue is a per-channel measurement that may be unknown. A value
// masked by the noise-floor filter stays unknown through every downstream
// aggregation; there is no accessor that yields a number for an unknown
// value, so coercion to a default is unrepresentable.
type ChannelValue struct {
	value float64
	known bool
}

// KnownValue wraps a measured value.
func KnownValue(v float64) ChannelValue {
	return ChannelValue{value: v, known: true}
}

// UnknownValue is the explicit "unknown" marker.
func UnknownValue() ChannelValue {
	return ChannelValue{}
}

// Value returns the measurement and whether it is known.
func (c ChannelValue) Value() (float64, bool) {
	if !c.known {
		return 0, false
	}
	return c.value, true
}

// Known reports whether the value survived filtering.
func (c ChannelValue) Known() bool { return c.known }

func (c ChannelValue) MarshalJSON() ([]byte, error) {
	if !c.known {
		return []byte("null"), nil
	}
	return json.Marshal(c.value)
}

func (c *ChannelValue) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*c = ChannelValue{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*c = ChannelValue{value: v, known: true}
	return nil
}

// WellResult is one well's filtered channel readings with its plate position.
type WellResult struct {
	Well     string                  `json:"well"`
	Row      int                     `json:"row"`
	Col      int                     `json:"col"`
	Channels map[string]ChannelValue `json:"channels"`
}

// ConditionResult aggregates a condition's replicate wells. Rejected marks a
// condition the strict-mode filter excluded from belief update; its wells are
// retained for audit.
type ConditionResult struct {
	Condition string                  `json:"condition"`
	Wells     []WellResult            `json:"wells"`
	Mean      map[string]ChannelValue `json:"mean"`
	Rejected  bool                    `json:"rejected"`
	Warnings  []string                `json:"warnings,omitempty"`
}

// Observation is the aggregated, filtered result of executing one proposal.
type Observation struct {
	ProposalID uuid.UUID         `json:"proposal_id"`
	Template   string            `json:"template"`
	Cycle      int               `json:"cycle"`
	Mitigation bool              `json:"mitigation"`
	LayoutSeed int64             `json:"layout_seed"`
	PlateRows  int               `json:"plate_rows"`
	PlateCols  int               `json:"plate_cols"`
	ObservedAt time.Time         `json:"observed_at"`
	Conditions []ConditionResult `json:"conditions"`
}

// RawWell is a single unfiltered well measurement as returned by the world
// collaborator. Wells arrive in layout (input) order regardless of how the
// collaborator parallelized execution.
type RawWell struct {
	Condition string             `json:"condition"`
	Well      string             `json:"well"`
	Row       int                `json:"row"`
	Col       int                `json:"col"`
	Channels  map[string]float64 `json:"channels"`
}
