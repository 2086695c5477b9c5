package service

import (
	"math"
	"sort"

	"github.com/calyxbio/warrant/internal/domain"
)

// PrimaryChannel is the assay channel pooled statistics are computed over.
const PrimaryChannel = "signal"

const priorKeyGrandMean = "grand_mean|" + PrimaryChannel

// Updaters returns the fixed-order updater list the ledger runs each cycle.
// Noise before Edge before Response before AssayGate; callers must not
// reorder.
func Updaters(gate *GateMachine) []Updater {
	return []Updater{
		&NoiseUpdater{},
		&EdgeUpdater{},
		&ResponseUpdater{},
		&AssayGateUpdater{gate: gate},
	}
}

// NoiseUpdater pools replicate variance across conditions into a pooled
// sigma and degrees of freedom, derives the relative confidence half-width,
// and compares the cycle's grand mean against the running prior for drift.
type NoiseUpdater struct{}

func (u *NoiseUpdater) Name() string { return "noise" }

func (u *NoiseUpdater) Update(txn *BeliefTxn, obs *domain.Observation) error {
	var (
		weightedVar float64
		totalDF     float64
		sumMean     float64
		nMeans      int
		totalReps   int
		conds       []string
	)
	for _, c := range obs.Conditions {
		if c.Rejected {
			continue
		}
		vals := knownChannelValues(c, PrimaryChannel)
		if len(vals) < 2 {
			continue
		}
		mean, variance := meanVar(vals)
		df := float64(len(vals) - 1)
		weightedVar += df * variance
		totalDF += df
		sumMean += mean
		nMeans++
		totalReps += len(vals)
		conds = append(conds, c.Condition)
	}
	if totalDF <= 0 {
		// Nothing measurable survived filtering; beliefs stay as they were.
		return nil
	}
	sort.Strings(conds)

	pooledSigma := math.Sqrt(weightedVar / totalDF)
	grandMean := sumMean / float64(nMeans)
	meanReps := float64(totalReps) / float64(nMeans)
	relWidth := relativeHalfWidth(pooledSigma, totalDF, meanReps, grandMean)

	drift := 0.0
	if prior, ok := txn.State().PriorMean(priorKeyGrandMean); ok && math.Abs(prior) > 1e-12 {
		drift = math.Abs(grandMean-prior) / math.Abs(prior)
	}

	meta := EvidenceMeta{
		Payload: map[string]any{
			"grand_mean":      grandMean,
			"mean_replicates": meanReps,
		},
		Conditions:   conds,
		EvidenceTime: obs.ObservedAt,
	}
	if err := txn.SetPooledNoise(pooledSigma, totalDF, relWidth, drift, meta); err != nil {
		return err
	}
	txn.ObservePrior(priorKeyGrandMean, grandMean)
	return nil
}

// EdgeUpdater estimates systematic bias of edge wells relative to interior
// wells.
type EdgeUpdater struct{}

func (u *EdgeUpdater) Name() string { return "edge" }

func (u *EdgeUpdater) Update(txn *BeliefTxn, obs *domain.Observation) error {
	var edge, interior []float64
	var conds []string
	for _, c := range obs.Conditions {
		if c.Rejected {
			continue
		}
		conds = append(conds, c.Condition)
		for _, w := range c.Wells {
			v, ok := w.Channels[PrimaryChannel].Value()
			if !ok {
				continue
			}
			if isEdgeWell(w, obs.PlateRows, obs.PlateCols) {
				edge = append(edge, v)
			} else {
				interior = append(interior, v)
			}
		}
	}
	if len(edge) == 0 || len(interior) == 0 {
		return nil
	}
	sort.Strings(conds)
	edgeMean, _ := meanVar(edge)
	intMean, _ := meanVar(interior)
	denom := math.Abs(intMean)
	if denom < 1e-12 {
		return nil
	}
	bias := (edgeMean - intMean) / denom
	return txn.SetEdgeBias(bias, EvidenceMeta{
		Payload: map[string]any{
			"edge_mean":      edgeMean,
			"interior_mean":  intMean,
			"edge_wells":     len(edge),
			"interior_wells": len(interior),
		},
		Conditions:   conds,
		EvidenceTime: obs.ObservedAt,
	})
}

func isEdgeWell(w domain.WellResult, rows, cols int) bool {
	return w.Row == 0 || w.Col == 0 || w.Row == rows-1 || w.Col == cols-1
}

// ResponseUpdater records the largest condition effect relative to the first
// (reference) condition, normalized by the reference mean.
type ResponseUpdater struct{}

func (u *ResponseUpdater) Name() string { return "response" }

func (u *ResponseUpdater) Update(txn *BeliefTxn, obs *domain.Observation) error {
	type condMean struct {
		name string
		mean float64
	}
	var means []condMean
	for _, c := range obs.Conditions {
		if c.Rejected {
			continue
		}
		vals := knownChannelValues(c, PrimaryChannel)
		if len(vals) == 0 {
			continue
		}
		m, _ := meanVar(vals)
		means = append(means, condMean{name: c.Condition, mean: m})
	}
	if len(means) < 2 {
		return nil
	}
	ref := means[0]
	if math.Abs(ref.mean) < 1e-12 {
		return nil
	}
	maxEffect := 0.0
	maxCond := ref.name
	for _, m := range means[1:] {
		effect := (m.mean - ref.mean) / math.Abs(ref.mean)
		if math.Abs(effect) > math.Abs(maxEffect) {
			maxEffect = effect
			maxCond = m.name
		}
	}
	return txn.SetResponseEffect(maxEffect, EvidenceMeta{
		Payload: map[string]any{
			"reference":     ref.name,
			"max_condition": maxCond,
		},
		Conditions:   []string{ref.name, maxCond},
		EvidenceTime: obs.ObservedAt,
	})
}

// AssayGateUpdater steps the noise gate against the statistics the
// NoiseUpdater just wrote. It runs last so the gate always sees this cycle's
// numbers.
type AssayGateUpdater struct {
	gate *GateMachine
}

func (u *AssayGateUpdater) Name() string { return "assay_gate" }

func (u *AssayGateUpdater) Update(txn *BeliefTxn, obs *domain.Observation) error {
	s := txn.State()
	if !s.Observed() {
		return nil
	}
	cur := s.Gate(GateNoiseSigma)
	sustained := txn.GateSustained(GateNoiseSigma)
	next, nextSustained := u.gate.Step(cur, sustained, s.RelativeWidth(), s.PooledDF(), s.DriftMetric())
	return txn.SetGateState(GateNoiseSigma, next, nextSustained, EvidenceMeta{
		Payload: map[string]any{
			"relative_width": s.RelativeWidth(),
			"pooled_df":      s.PooledDF(),
			"drift_metric":   s.DriftMetric(),
			"sustained":      nextSustained,
		},
	})
}

func knownChannelValues(c domain.ConditionResult, channel string) []float64 {
	var vals []float64
	for _, w := range c.Wells {
		if v, ok := w.Channels[channel].Value(); ok {
			vals = append(vals, v)
		}
	}
	return vals
}

func meanVar(vals []float64) (mean, variance float64) {
	n := float64(len(vals))
	if n == 0 {
		return 0, 0
	}
	for _, v := range vals {
		mean += v
	}
	mean /= n
	if n < 2 {
		return mean, 0
	}
	for _, v := range vals {
		d := v - mean
		variance += d * d
	}
	variance /= n - 1
	return mean, variance
}
