package service

import "math"

// entropyProxy maps the relative confidence width to a differential-entropy
// proxy in bits. Only differences of this proxy are meaningful; the loop
// uses it for information gain, the one-directional entropy penalty, and
// horizon shrinkage. ok is false before any usable width exists.
func entropyProxy(relWidth float64) (float64, bool) {
	if relWidth <= 0 || math.IsInf(relWidth, 0) || math.IsNaN(relWidth) {
		return 0, false
	}
	return math.Log2(relWidth), true
}

// rewardBreakdown keeps the cycle's reward components together for the
// decision record.
type rewardBreakdown struct {
	InfoGainBits   float64
	EntropyPenalty float64
	QCPenalty      float64
	CostTerm       float64
	Total          float64
}

func computeReward(infoGain, inflatedCost, costWeight, entropyPenalty, qcPenalty float64) rewardBreakdown {
	b := rewardBreakdown{
		InfoGainBits:   infoGain,
		EntropyPenalty: entropyPenalty,
		QCPenalty:      qcPenalty,
		CostTerm:       costWeight * inflatedCost,
	}
	b.Total = b.InfoGainBits - b.CostTerm - b.EntropyPenalty - b.QCPenalty
	return b
}
