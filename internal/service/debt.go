package service

import (
	"errors"
	"math"
	"time"

	"github.com/calyxbio/warrant/internal/domain"
	"go.uber.org/zap"
)

var (
	ErrDuplicateClaim = errors.New("claim already open for action")
	ErrUnknownClaim   = errors.New("no open claim for action")
)

// Debt never decays. Forgiveness for accurate future claims is unresolved
// product policy; do not add a decay term here without a decision.
const (
	DefaultDebtSensitivity = 0.15
	minHorizonScale        = 0.25
)

type openClaim struct {
	actionType   string
	expectedBits float64
	claimedAt    time.Time
}

// ClaimRecord is a settled (claim, resolve) pair.
type ClaimRecord struct {
	ActionID     string    `json:"action_id"`
	ActionType   string    `json:"action_type"`
	ExpectedBits float64   `json:"expected_bits"`
	ActualBits   float64   `json:"actual_bits"`
	DeltaBits    float64   `json:"delta_bits"`
	ClaimedAt    time.Time `json:"claimed_at"`
	ResolvedAt   time.Time `json:"resolved_at"`
}

// DebtLedger accounts for overclaimed information gain. Claims are opened at
// proposal time and settled against realized gain; the running total
// inflates future costs and, past the hard threshold, blocks everything but
// calibration. Single writer (the loop); no internal locking.
type DebtLedger struct {
	logger      *zap.Logger
	params      domain.DebtParams
	calibration map[string]struct{}

	debtBits float64
	open     map[string]openClaim
	history  []ClaimRecord
	now      func() time.Time
}

func NewDebtLedger(params domain.DebtParams, calibrationTemplates []string, logger *zap.Logger) *DebtLedger {
	if params.Sensitivity == 0 {
		params.Sensitivity = DefaultDebtSensitivity
	}
	calib := make(map[string]struct{}, len(calibrationTemplates))
	for _, t := range calibrationTemplates {
		calib[t] = struct{}{}
	}
	return &DebtLedger{
		logger:      logger,
		params:      params,
		calibration: calib,
		open:        make(map[string]openClaim),
		now:         time.Now,
	}
}

// Claim opens a claim that the action will deliver expectedBits of
// information gain. Open claims do not inflate cost until resolved.
func (d *DebtLedger) Claim(actionID, actionType string, expectedBits float64) error {
	if _, exists := d.open[actionID]; exists {
		return ErrDuplicateClaim
	}
	d.open[actionID] = openClaim{actionType: actionType, expectedBits: expectedBits, claimedAt: d.now()}
	return nil
}

// Resolve settles the claim. Debt grows by max(0, expected - actual):
// overclaiming is charged, underclaiming earns nothing back.
func (d *DebtLedger) Resolve(actionID string, actualBits float64) (float64, error) {
	c, exists := d.open[actionID]
	if !exists {
		return 0, ErrUnknownClaim
	}
	delete(d.open, actionID)

	delta := math.Max(0, c.expectedBits-actualBits)
	d.debtBits += delta
	d.history = append(d.history, ClaimRecord{
		ActionID:     actionID,
		ActionType:   c.actionType,
		ExpectedBits: c.expectedBits,
		ActualBits:   actualBits,
		DeltaBits:    delta,
		ClaimedAt:    c.claimedAt,
		ResolvedAt:   d.now(),
	})
	if delta > 0 {
		d.logger.Debug("debt accrued",
			zap.String("action_id", actionID),
			zap.Float64("expected_bits", c.expectedBits),
			zap.Float64("actual_bits", actualBits),
			zap.Float64("delta_bits", delta),
			zap.Float64("debt_bits", d.debtBits))
	}
	return delta, nil
}

func (d *DebtLedger) DebtBits() float64      { return d.debtBits }
func (d *DebtLedger) OpenClaims() int        { return len(d.open) }
func (d *DebtLedger) History() []ClaimRecord { return d.history }

// InflatedCost scales a base cost by accumulated debt. At zero debt the base
// cost passes through exactly.
func (d *DebtLedger) InflatedCost(base float64) float64 {
	return base * (1 + d.params.Sensitivity*d.debtBits)
}

// IsCalibration reports whether the template is in the always-executable
// calibration set.
func (d *DebtLedger) IsCalibration(template string) bool {
	_, ok := d.calibration[template]
	return ok
}

// ShouldRefuse applies the two refusal rules. Calibration templates are
// never hard-blocked so a path out of debt always exists; they remain
// subject to the budget rule.
func (d *DebtLedger) ShouldRefuse(template string, baseCost, budgetRemaining float64) (bool, domain.RefusalRule, float64) {
	inflated := d.InflatedCost(baseCost)
	if inflated > budgetRemaining {
		return true, domain.RefusalRuleCost, inflated
	}
	if d.debtBits > d.params.HardThresholdBits && !d.IsCalibration(template) {
		return true, domain.RefusalRuleThreshold, inflated
	}
	return false, "", inflated
}

// EntropyPenalty charges actions that widened uncertainty. Narrowing is
// never rewarded here; that is the reward's information-gain term.
func (d *DebtLedger) EntropyPenalty(priorEntropy, posteriorEntropy float64) float64 {
	if posteriorEntropy <= priorEntropy {
		return 0
	}
	return d.params.EntropyWeight * (posteriorEntropy - priorEntropy)
}

// HorizonScale shrinks the planning horizon when current entropy exceeds the
// recorded baseline. Returns a multiplier in [minHorizonScale, 1].
func (d *DebtLedger) HorizonScale(baselineEntropy, currentEntropy float64) float64 {
	if currentEntropy <= baselineEntropy {
		return 1
	}
	// Entropy proxies are log-scale; shrink by the excess.
	scale := 1 / (1 + (currentEntropy - baselineEntropy))
	if scale < minHorizonScale {
		return minHorizonScale
	}
	return scale
}

func (d *DebtLedger) HardThreshold() float64 { return d.params.HardThresholdBits }
