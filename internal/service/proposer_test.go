package service

import (
	"testing"

	"github.com/calyxbio/warrant/internal/domain"
)

func newTestProposer() *Proposer {
	return NewProposer(7,
		[]string{"baseline_replicates", "noise_calibration", "dose_response", "exploration_screen"},
		[]string{"baseline_replicates", "noise_calibration"})
}

func TestProposeOutsideGateIsCalibration(t *testing.T) {
	p := newTestProposer()

	for _, regime := range []domain.Regime{domain.RegimePreGate, domain.RegimeGateRevoked} {
		prop := p.Propose(regime, 1, 1.0)
		if prop.Template != "baseline_replicates" {
			t.Fatalf("template in %s = %s, want baseline_replicates", regime, prop.Template)
		}
		if prop.TotalWells() != 12 {
			t.Fatalf("calibration wells = %d, want 12", prop.TotalWells())
		}
		if prop.WellCost != 12 {
			t.Fatalf("calibration cost = %v, want 12", prop.WellCost)
		}
	}
}

func TestProposeInGateIsExploration(t *testing.T) {
	p := newTestProposer()

	prop := p.Propose(domain.RegimeInGate, 3, 1.0)
	if prop.Template == "baseline_replicates" || prop.Template == "noise_calibration" {
		t.Fatalf("in-gate template = %s, want a non-calibration template", prop.Template)
	}
	// Full horizon: reference plus three dose conditions, three replicates
	// each.
	if len(prop.Conditions) != 4 {
		t.Fatalf("conditions = %d, want 4", len(prop.Conditions))
	}
	if prop.ExpectedGainBits <= 0 {
		t.Fatalf("ExpectedGainBits = %v, want positive", prop.ExpectedGainBits)
	}
}

func TestHorizonShrinkageReducesCommitment(t *testing.T) {
	p := newTestProposer()

	full := p.Propose(domain.RegimeInGate, 3, 1.0)
	shrunk := p.Propose(domain.RegimeInGate, 3, 0.5)

	if len(shrunk.Conditions) >= len(full.Conditions) {
		t.Fatalf("shrunk conditions = %d, full = %d, want fewer under a shrunk horizon",
			len(shrunk.Conditions), len(full.Conditions))
	}
	if shrunk.ExpectedGainBits >= full.ExpectedGainBits {
		t.Fatal("shrunk proposal claims at least as much gain as the full one")
	}
	// Never below the two-condition floor.
	tiny := p.Propose(domain.RegimeInGate, 3, 0.1)
	if len(tiny.Conditions) != 2 {
		t.Fatalf("minimum conditions = %d, want 2", len(tiny.Conditions))
	}
}

func TestProposalLayoutSeedIsDeterministic(t *testing.T) {
	p := newTestProposer()

	a := p.Propose(domain.RegimePreGate, 1, 1.0)
	b := p.Propose(domain.RegimePreGate, 1, 1.0)
	if a.LayoutSeed != b.LayoutSeed {
		t.Fatal("same cycle produced different layout seeds")
	}
	c := p.Propose(domain.RegimePreGate, 2, 1.0)
	if c.LayoutSeed == a.LayoutSeed {
		t.Fatal("different cycles produced the same layout seed")
	}

	other := NewProposer(8, []string{"baseline_replicates"}, []string{"baseline_replicates"})
	d := other.Propose(domain.RegimePreGate, 1, 1.0)
	if d.LayoutSeed == a.LayoutSeed {
		t.Fatal("different run seeds produced the same layout seed")
	}
}

func TestNextLayoutSeedAdvances(t *testing.T) {
	s := layoutSeed(7, 1)
	if nextLayoutSeed(s) == s {
		t.Fatal("nextLayoutSeed did not change the seed")
	}
	if nextLayoutSeed(s) != nextLayoutSeed(s) {
		t.Fatal("nextLayoutSeed is not deterministic")
	}
}
