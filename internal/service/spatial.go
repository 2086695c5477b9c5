package service

import (
	"fmt"
	"math"

	"github.com/calyxbio/warrant/internal/domain"
	"go.uber.org/zap"
)

// QCFinding is the outcome of one spatial check.
type QCFinding struct {
	Statistic float64
	Threshold float64
	Flagged   bool
	Wells     int
}

// SpatialQC computes Moran's I over the residuals of a completed observation
// and, when the layout looks spatially structured, proposes mitigation
// candidates. Corrective choices are never executed in the flagging cycle;
// the loop defers them one full cycle via a MitigationContext.
type SpatialQC struct {
	logger *zap.Logger
	params domain.SpatialParams
}

func NewSpatialQC(params domain.SpatialParams, logger *zap.Logger) *SpatialQC {
	return &SpatialQC{logger: logger, params: params}
}

// Evaluate runs the check. ok is false when the observation has too few
// known wells or no residual variance to test.
func (s *SpatialQC) Evaluate(obs *domain.Observation) (QCFinding, bool) {
	stat, ok := MoranI(obs, PrimaryChannel)
	if !ok {
		return QCFinding{}, false
	}
	n := 0
	for _, c := range obs.Conditions {
		n += len(c.Wells)
	}
	return QCFinding{
		Statistic: stat,
		Threshold: s.params.SeverityThreshold,
		Flagged:   stat > s.params.SeverityThreshold,
		Wells:     n,
	}, true
}

// Options builds the mitigation candidates for a flagged observation. The
// corrective costs are the well costs of the would-be mitigation proposals,
// so the affordability check in Choose sees exactly what execution will
// charge.
func (s *SpatialQC) Options(stat, replateCost, replicateCost float64) []domain.MitigationOption {
	return []domain.MitigationOption{
		{
			Action:            domain.MitigationReplate,
			Cost:              replateCost,
			ExpectedReduction: 0.8 * stat,
		},
		{
			Action:            domain.MitigationReplicate,
			Cost:              replicateCost,
			ExpectedReduction: 0.5 * stat,
		},
		{
			Action:  domain.MitigationProceed,
			Penalty: s.params.ProceedPenalty,
		},
	}
}

// Choose picks the affordable option with the largest expected reduction,
// falling back to proceed. Deterministic by construction.
func (s *SpatialQC) Choose(options []domain.MitigationOption, budgetRemaining float64) (domain.MitigationOption, string) {
	best := -1
	for i, o := range options {
		if o.Action == domain.MitigationProceed {
			continue
		}
		if o.Cost > budgetRemaining {
			continue
		}
		if best < 0 || o.ExpectedReduction > options[best].ExpectedReduction {
			best = i
		}
	}
	if best >= 0 {
		o := options[best]
		return o, fmt.Sprintf("%s affordable at cost %.1f with expected statistic reduction %.3f", o.Action, o.Cost, o.ExpectedReduction)
	}
	for _, o := range options {
		if o.Action == domain.MitigationProceed {
			return o, fmt.Sprintf("no corrective option affordable within remaining budget %.1f; proceeding with penalty %.2f", budgetRemaining, o.Penalty)
		}
	}
	// Options always include proceed; reaching here is a programming error.
	return domain.MitigationOption{Action: domain.MitigationProceed}, "proceed"
}

// MoranI computes Moran's I over well residuals (value minus condition mean)
// using rook adjacency on the plate grid. Unknown values are excluded; they
// never enter as zeros. ok is false with fewer than three known wells or
// degenerate variance.
func MoranI(obs *domain.Observation, channel string) (float64, bool) {
	type cell struct {
		row, col int
		residual float64
	}
	var cells []cell
	for _, c := range obs.Conditions {
		mean, ok := c.Mean[channel].Value()
		if !ok {
			continue
		}
		for _, w := range c.Wells {
			v, ok := w.Channels[channel].Value()
			if !ok {
				continue
			}
			cells = append(cells, cell{row: w.Row, col: w.Col, residual: v - mean})
		}
	}
	n := len(cells)
	if n < 3 {
		return 0, false
	}

	// Residuals are centered per condition; re-center globally so the
	// statistic is well defined when condition sizes differ.
	var grand float64
	for _, c := range cells {
		grand += c.residual
	}
	grand /= float64(n)

	byPos := make(map[[2]int]int, n)
	z := make([]float64, n)
	var ss float64
	for i, c := range cells {
		z[i] = c.residual - grand
		ss += z[i] * z[i]
		byPos[[2]int{c.row, c.col}] = i
	}
	if ss < 1e-18 {
		return 0, false
	}

	var num, wsum float64
	for i, c := range cells {
		for _, d := range [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
			j, ok := byPos[[2]int{c.row + d[0], c.col + d[1]}]
			if !ok {
				continue
			}
			num += z[i] * z[j]
			wsum++
		}
	}
	if wsum == 0 {
		return 0, false
	}
	i := (float64(n) / wsum) * (num / ss)
	if math.IsNaN(i) || math.IsInf(i, 0) {
		return 0, false
	}
	return i, true
}
