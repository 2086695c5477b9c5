package service

import (
	"fmt"
	"math"

	"github.com/calyxbio/warrant/internal/domain"
	"github.com/google/uuid"
)

// Action templates. Calibration templates are the designated always-
// executable set; which of these a run treats as calibration comes from the
// RunSpec.
const (
	TemplateBaselineReplicates = "baseline_replicates"
	TemplateNoiseCalibration   = "noise_calibration"
	TemplateDoseResponse       = "dose_response"
	TemplateExplorationScreen  = "exploration_screen"
)

const costPerWell = 1.0

// Proposer generates one candidate action per cycle from the current regime.
// Fully deterministic: the same seed, cycle, regime, and horizon always
// yield the same proposal.
type Proposer struct {
	seed        int64
	templates   []string
	calibration []string
}

func NewProposer(seed int64, templates, calibrationTemplates []string) *Proposer {
	return &Proposer{seed: seed, templates: templates, calibration: calibrationTemplates}
}

// Propose builds the cycle's candidate. Outside the gate only calibration
// actions are proposable; inside, exploration sized by the horizon scale.
func (p *Proposer) Propose(regime domain.Regime, cycle int, horizonScale float64) *domain.Proposal {
	if regime != domain.RegimeInGate {
		return p.calibrationProposal(regime, cycle)
	}
	return p.explorationProposal(cycle, horizonScale)
}

func (p *Proposer) calibrationProposal(regime domain.Regime, cycle int) *domain.Proposal {
	template := TemplateBaselineReplicates
	if len(p.calibration) > 0 {
		template = p.calibration[0]
	}
	conditions := []domain.ConditionSpec{
		{Name: "blank", Replicates: 6},
		{Name: "reference", Replicates: 6},
	}
	prop := &domain.Proposal{
		ID:               uuid.New(),
		Template:         template,
		Hypothesis:       "pooled noise statistics are stable enough to earn exploration",
		Conditions:       conditions,
		Regime:           regime,
		ExpectedGainBits: 0.4,
		LayoutSeed:       layoutSeed(p.seed, cycle),
	}
	prop.WellCost = float64(prop.TotalWells()) * costPerWell
	return prop
}

func (p *Proposer) explorationProposal(cycle int, horizonScale float64) *domain.Proposal {
	template := TemplateExplorationScreen
	if len(p.exploration()) > 0 {
		ex := p.exploration()
		template = ex[cycle%len(ex)]
	}

	// Elevated uncertainty shrinks how many conditions the agent may commit
	// to this cycle.
	nConditions := int(math.Round(4 * horizonScale))
	if nConditions < 2 {
		nConditions = 2
	}
	conditions := []domain.ConditionSpec{{Name: "reference", Replicates: 3}}
	for i := 1; i < nConditions; i++ {
		dose := 0.1 * math.Pow(2, float64(i-1))
		conditions = append(conditions, domain.ConditionSpec{
			Name:       fmt.Sprintf("dose_%0.2f", dose),
			Dose:       dose,
			Replicates: 3,
		})
	}

	prop := &domain.Proposal{
		ID:               uuid.New(),
		Template:         template,
		Hypothesis:       fmt.Sprintf("condition response exceeds noise across %d dose levels", nConditions-1),
		Conditions:       conditions,
		Regime:           domain.RegimeInGate,
		ExpectedGainBits: 0.3 + 0.25*float64(nConditions-1),
		LayoutSeed:       layoutSeed(p.seed, cycle),
	}
	prop.WellCost = float64(prop.TotalWells()) * costPerWell
	return prop
}

func (p *Proposer) exploration() []string {
	calib := make(map[string]struct{}, len(p.calibration))
	for _, t := range p.calibration {
		calib[t] = struct{}{}
	}
	var out []string
	for _, t := range p.templates {
		if _, ok := calib[t]; !ok {
			out = append(out, t)
		}
	}
	return out
}

// layoutSeed derives a per-cycle plate layout seed from the run seed.
func layoutSeed(seed int64, cycle int) int64 {
	return int64(uint64(seed) ^ uint64(cycle)*0x9E3779B97F4A7C15)
}

// nextLayoutSeed steps a layout seed for a replate, deterministically.
func nextLayoutSeed(seed int64) int64 {
	return seed*6364136223846793005 + 1442695040888963407
}
