package service

import (
	"fmt"
	"math"
	"time"

	"github.com/calyxbio/warrant/internal/domain"
	"github.com/google/uuid"
)

// GateNoiseSigma is the gate name for the pooled noise statistic.
const GateNoiseSigma = "noise_sigma"

type gateStatus struct {
	state     domain.GateState
	sustained int
}

// runningMean tracks a prior mean across cycles for drift computation.
type runningMean struct {
	n    int
	mean float64
}

func (r *runningMean) add(v float64) {
	r.n++
	r.mean += (v - r.mean) / float64(r.n)
}

// BeliefState holds everything the loop is entitled to believe. It has
// exactly one writer (the loop) for the run's lifetime, and its fields are
// reachable only through read accessors and the BeliefTxn created inside an
// update, so mutation outside a transaction is unrepresentable.
type BeliefState struct {
	runID uuid.UUID

	lastBegun int
	cycleOpen bool
	inUpdate  bool

	pooledSigma    float64
	pooledDF       float64
	relWidth       float64
	drift          float64
	edgeBias       float64
	responseEffect float64
	observed       bool

	gates map[string]*gateStatus

	insolvent     bool
	debtBits      float64
	refusalStreak int

	priors map[string]*runningMean

	buffer []domain.EvidenceEvent
}

func newBeliefState(runID uuid.UUID) *BeliefState {
	return &BeliefState{
		runID:  runID,
		gates:  map[string]*gateStatus{GateNoiseSigma: {state: domain.GateNotObserved}},
		priors: make(map[string]*runningMean),
	}
}

func (s *BeliefState) PooledSigma() float64    { return s.pooledSigma }
func (s *BeliefState) PooledDF() float64       { return s.pooledDF }
func (s *BeliefState) RelativeWidth() float64  { return s.relWidth }
func (s *BeliefState) DriftMetric() float64    { return s.drift }
func (s *BeliefState) EdgeBias() float64       { return s.edgeBias }
func (s *BeliefState) ResponseEffect() float64 { return s.responseEffect }
func (s *BeliefState) Observed() bool          { return s.observed }
func (s *BeliefState) Insolvent() bool         { return s.insolvent }
func (s *BeliefState) DebtBits() float64       { return s.debtBits }
func (s *BeliefState) RefusalStreak() int      { return s.refusalStreak }
func (s *BeliefState) Cycle() int              { return s.lastBegun }

// Gate returns the state of the named gate.
func (s *BeliefState) Gate(name string) domain.GateState {
	g, ok := s.gates[name]
	if !ok {
		return domain.GateNotObserved
	}
	return g.state
}

// Regime derives the decision regime from the noise gate.
func (s *BeliefState) Regime() domain.Regime {
	return domain.RegimeFor(s.Gate(GateNoiseSigma))
}

// PriorMean returns the running prior mean for a statistic key, if any.
func (s *BeliefState) PriorMean(key string) (float64, bool) {
	p, ok := s.priors[key]
	if !ok {
		return 0, false
	}
	return p.mean, true
}

// EvidenceMeta carries the supporting context for one evidence record.
type EvidenceMeta struct {
	Payload      map[string]any
	Conditions   []string
	Note         string
	EvidenceTime time.Time
}

// BeliefTxn is the only mutation path into BeliefState. One is created per
// update call and handed to each updater in order.
type BeliefTxn struct {
	s          *BeliefState
	cycle      int
	claimTime  time.Time
	mitigation bool
	now        func() time.Time
}

func (t *BeliefTxn) Cycle() int           { return t.cycle }
func (t *BeliefTxn) ClaimTime() time.Time { return t.claimTime }

// State exposes read access to the belief state mid-transaction.
func (t *BeliefTxn) State() *BeliefState { return t.s }

func (t *BeliefTxn) record(kind domain.EvidenceKind, name domain.BeliefName, prev, next any, m EvidenceMeta) error {
	var evidenceTime *time.Time
	if !kind.TimeExempt() {
		if m.EvidenceTime.IsZero() {
			return &domain.TemporalProvenanceError{Cycle: t.cycle, Belief: name, Reason: "missing evidence_time"}
		}
		if m.EvidenceTime.Before(t.claimTime) {
			return &domain.TemporalProvenanceError{
				Cycle:  t.cycle,
				Belief: name,
				Reason: fmt.Sprintf("evidence_time %s precedes claim_time %s", m.EvidenceTime.Format(time.RFC3339Nano), t.claimTime.Format(time.RFC3339Nano)),
			}
		}
	}
	if !m.EvidenceTime.IsZero() {
		et := m.EvidenceTime
		evidenceTime = &et
	}
	t.s.buffer = append(t.s.buffer, domain.EvidenceEvent{
		ID:            uuid.New(),
		RunID:         t.s.runID,
		Cycle:         t.cycle,
		Kind:          kind,
		SchemaVersion: domain.EvidenceSchemaVersion,
		Belief:        name,
		Previous:      prev,
		New:           next,
		Payload:       m.Payload,
		Conditions:    m.Conditions,
		Note:          m.Note,
		EvidenceTime:  evidenceTime,
		ClaimTime:     t.claimTime,
		Mitigation:    t.mitigation,
	})
	return nil
}

// SetPooledNoise records the pooled noise statistics for the cycle. One
// evidence event per belief so downstream diffs stay per-field.
func (t *BeliefTxn) SetPooledNoise(sigma, df, relWidth, drift float64, m EvidenceMeta) error {
	type change struct {
		name domain.BeliefName
		prev float64
		next float64
	}
	changes := []change{
		{domain.BeliefPooledSigma, t.s.pooledSigma, sigma},
		{domain.BeliefPooledDF, t.s.pooledDF, df},
		{domain.BeliefRelativeWidth, t.s.relWidth, relWidth},
		{domain.BeliefDriftMetric, t.s.drift, drift},
	}
	for _, c := range changes {
		if err := t.record(domain.EvidenceKindMeasurement, c.name, c.prev, c.next, m); err != nil {
			return err
		}
	}
	t.s.pooledSigma = sigma
	t.s.pooledDF = df
	t.s.relWidth = relWidth
	t.s.drift = drift
	t.s.observed = true
	return nil
}

// SetEdgeBias records the edge-vs-interior bias belief.
func (t *BeliefTxn) SetEdgeBias(v float64, m EvidenceMeta) error {
	if err := t.record(domain.EvidenceKindMeasurement, domain.BeliefEdgeBias, t.s.edgeBias, v, m); err != nil {
		return err
	}
	t.s.edgeBias = v
	return nil
}

// SetResponseEffect records the condition response-effect belief.
func (t *BeliefTxn) SetResponseEffect(v float64, m EvidenceMeta) error {
	if err := t.record(domain.EvidenceKindMeasurement, domain.BeliefResponseEffect, t.s.responseEffect, v, m); err != nil {
		return err
	}
	t.s.responseEffect = v
	return nil
}

// SetGateState transitions a named gate. Transitions into stable emit
// gate_event records, out of stable gate_loss; both are evidence-time exempt
// because they mark a state fact, not a measurement.
func (t *BeliefTxn) SetGateState(name string, next domain.GateState, sustained int, m EvidenceMeta) error {
	g, ok := t.s.gates[name]
	if !ok {
		g = &gateStatus{state: domain.GateNotObserved}
		t.s.gates[name] = g
	}
	prev := g.state
	if prev != next {
		kind := domain.EvidenceKindGateEvent
		if prev == domain.GateStable {
			kind = domain.EvidenceKindGateLoss
		}
		if err := t.record(kind, domain.BeliefGateState, string(prev), string(next), m); err != nil {
			return err
		}
	}
	g.state = next
	g.sustained = sustained
	return nil
}

// GateSustained returns the gate's consecutive-criteria counter.
func (t *BeliefTxn) GateSustained(name string) int {
	if g, ok := t.s.gates[name]; ok {
		return g.sustained
	}
	return 0
}

// ObservePrior folds this cycle's value of a statistic into its running
// prior mean. Bookkeeping for the drift metric; the drift evidence event
// carries the comparison itself.
func (t *BeliefTxn) ObservePrior(key string, v float64) {
	p, ok := t.s.priors[key]
	if !ok {
		p = &runningMean{}
		t.s.priors[key] = p
	}
	p.add(v)
}

// relativeHalfWidth computes the t-style confidence half-width of the pooled
// mean, normalized by the magnitude of the mean.
func relativeHalfWidth(sigma, df float64, meanReplicates, grandMean float64) float64 {
	if sigma <= 0 || df <= 0 || meanReplicates <= 0 {
		return math.Inf(1)
	}
	hw := tCritical(df) * sigma / math.Sqrt(meanReplicates)
	denom := math.Abs(grandMean)
	if denom < 1e-12 {
		return math.Inf(1)
	}
	return hw / denom
}

// tCritical approximates the two-sided 95% t critical value.
func tCritical(df float64) float64 {
	switch {
	case df <= 1:
		return 12.706
	case df <= 2:
		return 4.303
	case df <= 3:
		return 3.182
	case df <= 4:
		return 2.776
	case df <= 5:
		return 2.571
	case df <= 7:
		return 2.365
	case df <= 10:
		return 2.228
	case df <= 15:
		return 2.131
	case df <= 20:
		return 2.086
	case df <= 30:
		return 2.042
	default:
		return 1.96
	}
}
