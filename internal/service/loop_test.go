package service

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/calyxbio/warrant/internal/domain"
	"github.com/calyxbio/warrant/internal/world"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func testRunSpec() domain.RunSpec {
	return domain.RunSpec{
		Seed:                 7,
		TotalBudget:          200,
		MaxCycles:            10,
		Templates:            []string{"baseline_replicates", "noise_calibration", "dose_response", "exploration_screen"},
		CalibrationTemplates: []string{"baseline_replicates", "noise_calibration"},
		Gate:                 testThresholds(),
		Debt:                 testDebtParams(),
		SNR:                  domain.SNRParams{KSigma: 5, Mode: domain.SNRStrict},
		Spatial:              testSpatialParams(),
		CostWeight:           0.01,
	}
}

type loopFixture struct {
	loop        *Loop
	world       *world.MockWorld
	evidence    *mockEvidenceStore
	refusals    *mockRefusalStore
	decisions   *mockDecisionStore
	diagnostics *mockDiagnosticStore
}

func newLoopFixture(t *testing.T, spec domain.RunSpec) *loopFixture {
	t.Helper()
	f := &loopFixture{
		world:       world.NewMockWorld(),
		evidence:    &mockEvidenceStore{},
		refusals:    &mockRefusalStore{},
		decisions:   &mockDecisionStore{},
		diagnostics: &mockDiagnosticStore{},
	}
	filter := NewSNRFilter(testProfile(), spec.SNR, zap.NewNop())
	f.loop = NewLoop(uuid.New(), spec, f.world, filter, f.evidence, f.refusals, f.decisions, f.diagnostics, zap.NewNop())
	return f
}

// wellsFor lays the proposal's wells row-major, one condition per row, with
// the given per-replicate values for each condition in order.
func wellsFor(p *domain.Proposal, values map[string][]float64) []domain.RawWell {
	var raw []domain.RawWell
	for row, c := range p.Conditions {
		for i := 0; i < c.Replicates; i++ {
			raw = append(raw, domain.RawWell{
				Condition: c.Name,
				Well:      "w",
				Row:       row,
				Col:       i,
				Channels:  map[string]float64{PrimaryChannel: values[c.Name][i]},
			})
		}
	}
	return raw
}

// checkerboard values keep Moran's I negative so spatial QC never flags.
var quietValues = map[string][]float64{
	"blank":     {0.70, 0.50, 0.70, 0.50, 0.70, 0.50},
	"reference": {0.98, 1.18, 0.98, 1.18, 0.98, 1.18},
}

// clustered values put all high replicates adjacent, driving Moran's I
// above the severity threshold.
var clusteredValues = map[string][]float64{
	"blank":     {0.70, 0.70, 0.70, 0.50, 0.50, 0.50},
	"reference": {1.20, 1.20, 1.20, 1.00, 1.00, 1.00},
}

func TestRefusedCycleExecutesNothing(t *testing.T) {
	spec := testRunSpec()
	spec.TotalBudget = 5 // calibration costs 12 wells
	spec.MaxCycles = 1
	f := newLoopFixture(t, spec)

	summary, err := f.loop.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(f.world.ExecuteCalls) != 0 {
		t.Fatal("refused cycle reached the world")
	}
	if summary.Refusals != 1 || summary.ActionsExecuted != 0 {
		t.Fatalf("summary = %+v, want 1 refusal and 0 executions", summary)
	}
	if summary.BudgetRemaining != 5 {
		t.Fatalf("budget = %v, want untouched 5", summary.BudgetRemaining)
	}
	if f.loop.Debt().DebtBits() != 0 {
		t.Fatalf("debt = %v, want untouched 0", f.loop.Debt().DebtBits())
	}

	if len(f.refusals.events) != 1 {
		t.Fatalf("refusal events = %d, want 1", len(f.refusals.events))
	}
	re := f.refusals.events[0]
	if re.Rule != domain.RefusalRuleCost || re.Cycle != 1 {
		t.Fatalf("refusal = %+v, want cost rule at cycle 1", re)
	}
	if len(f.decisions.events) != 1 || f.decisions.events[0].Outcome != domain.OutcomeRefused {
		t.Fatalf("decisions = %+v, want one refused outcome", f.decisions.events)
	}
}

func TestRepeatedRefusalsStopTheRun(t *testing.T) {
	spec := testRunSpec()
	spec.TotalBudget = 5
	f := newLoopFixture(t, spec)

	summary, err := f.loop.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Refusals != maxConsecutiveRefusals {
		t.Fatalf("refusals = %d, want stop at %d", summary.Refusals, maxConsecutiveRefusals)
	}
	if summary.CyclesExecuted != maxConsecutiveRefusals {
		t.Fatalf("cycles = %d, want %d", summary.CyclesExecuted, maxConsecutiveRefusals)
	}
}

func TestExecutedCycleAccounting(t *testing.T) {
	spec := testRunSpec()
	spec.MaxCycles = 1
	f := newLoopFixture(t, spec)
	f.world.ExecuteFunc = func(ctx context.Context, p *domain.Proposal) ([]domain.RawWell, error) {
		return wellsFor(p, quietValues), nil
	}

	summary, err := f.loop.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.ActionsExecuted != 1 {
		t.Fatalf("ActionsExecuted = %d, want 1", summary.ActionsExecuted)
	}
	// First cycle has no prior entropy, so the whole 0.4-bit claim becomes
	// debt, and cost is charged at the pre-resolution (zero debt) rate.
	if math.Abs(summary.BudgetRemaining-(200-12)) > 1e-9 {
		t.Fatalf("BudgetRemaining = %v, want 188", summary.BudgetRemaining)
	}
	if math.Abs(summary.FinalDebtBits-0.4) > 1e-9 {
		t.Fatalf("FinalDebtBits = %v, want 0.4", summary.FinalDebtBits)
	}
	if f.loop.Debt().OpenClaims() != 0 {
		t.Fatal("claim left open after the cycle settled")
	}

	if len(f.decisions.events) != 1 {
		t.Fatalf("decisions = %d, want 1", len(f.decisions.events))
	}
	de := f.decisions.events[0]
	if de.Outcome != domain.OutcomeExecuted || de.Regime != domain.RegimePreGate {
		t.Fatalf("decision = %+v, want executed in pre_gate", de)
	}
	if len(f.evidence.events) == 0 {
		t.Fatal("no evidence flushed for an executed cycle")
	}
	for _, e := range f.evidence.events {
		if e.Cycle != 1 {
			t.Fatalf("evidence at cycle %d, want 1", e.Cycle)
		}
	}
}

func TestMitigationRunsExactlyOneCycleLater(t *testing.T) {
	spec := testRunSpec()
	spec.MaxCycles = 2
	f := newLoopFixture(t, spec)
	f.world.ExecuteFunc = func(ctx context.Context, p *domain.Proposal) ([]domain.RawWell, error) {
		return wellsFor(p, clusteredValues), nil
	}

	summary, err := f.loop.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.MitigationCycles != 1 {
		t.Fatalf("MitigationCycles = %d, want 1", summary.MitigationCycles)
	}

	if len(f.diagnostics.events) == 0 {
		t.Fatal("no diagnostic recorded for the flagged layout")
	}
	diag := f.diagnostics.events[0]
	if !diag.Flagged || diag.Cycle != 1 {
		t.Fatalf("diagnostic = %+v, want flagged at cycle 1", diag)
	}
	if diag.Choice != string(domain.MitigationReplate) {
		t.Fatalf("choice = %s, want replate", diag.Choice)
	}

	if len(f.decisions.events) != 2 {
		t.Fatalf("decisions = %d, want 2", len(f.decisions.events))
	}
	if f.decisions.events[0].Outcome != domain.OutcomeExecuted {
		t.Fatalf("cycle 1 outcome = %s, want executed", f.decisions.events[0].Outcome)
	}
	mit := f.decisions.events[1]
	if mit.Outcome != domain.OutcomeMitigation || mit.Cycle != 2 {
		t.Fatalf("mitigation decision = %+v, want mitigation at cycle 2", mit)
	}
	if mit.Cycle <= diag.Cycle {
		t.Fatal("mitigation did not run strictly after the flagging cycle")
	}

	// The advertised replate cost is what execution charges: 12 re-run wells
	// plus the replate overhead of 8, inflated against debt 0.4.
	if mit.BaseCost != 20 {
		t.Fatalf("mitigation base cost = %v, want 20", mit.BaseCost)
	}
	if math.Abs(mit.InflatedCost-21.2) > 1e-9 {
		t.Fatalf("mitigation inflated cost = %v, want 21.2", mit.InflatedCost)
	}
	if math.Abs(mit.BudgetRemaining-166.8) > 1e-9 {
		t.Fatalf("budget after mitigation = %v, want 166.8", mit.BudgetRemaining)
	}

	if len(f.world.ExecuteCalls) != 2 {
		t.Fatalf("world calls = %d, want 2", len(f.world.ExecuteCalls))
	}
	mp := f.world.ExecuteCalls[1]
	if !mp.Forced {
		t.Fatal("mitigation proposal not forced")
	}
	if mp.ExpectedGainBits != 0 {
		t.Fatalf("mitigation ExpectedGainBits = %v, want 0", mp.ExpectedGainBits)
	}
	// Replate re-lays the same design under a fresh seed.
	if mp.LayoutSeed == f.world.ExecuteCalls[0].LayoutSeed {
		t.Fatal("replate reused the flagged layout seed")
	}
	if mp.TotalWells() != f.world.ExecuteCalls[0].TotalWells() {
		t.Fatal("replate changed the design size")
	}
}

func TestWorldErrorAbortsRunWithClosedCycle(t *testing.T) {
	spec := testRunSpec()
	f := newLoopFixture(t, spec)
	worldErr := errors.New("robot arm jammed")
	f.world.Err = worldErr

	_, err := f.loop.Run(context.Background())
	if !errors.Is(err, worldErr) {
		t.Fatalf("Run = %v, want wrapped world error", err)
	}
	if f.loop.Ledger().CycleOpen() {
		t.Fatal("cycle left open after abort")
	}
}

func TestCancellationStopsBetweenCycles(t *testing.T) {
	spec := testRunSpec()
	f := newLoopFixture(t, spec)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	f.world.ExecuteFunc = func(_ context.Context, p *domain.Proposal) ([]domain.RawWell, error) {
		calls++
		if calls == 2 {
			cancel()
		}
		return wellsFor(p, quietValues), nil
	}

	_, err := f.loop.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
	// The cycle in flight when cancel hit still completed and flushed.
	if calls != 2 {
		t.Fatalf("world calls = %d, want 2", calls)
	}
	if f.loop.Ledger().CycleOpen() {
		t.Fatal("cycle left open after cancellation")
	}
}

// A full campaign against the simulator must be a pure function of the run
// spec: the worker count changes scheduling, never results.
func TestRunDeterministicAcrossWorkerCounts(t *testing.T) {
	runWith := func(workers int) ([]domain.DecisionEvent, int) {
		spec := testRunSpec()
		spec.MaxCycles = 4
		decisions := &mockDecisionStore{}
		evidence := &mockEvidenceStore{}
		filter := NewSNRFilter(testProfile(), spec.SNR, zap.NewNop())
		sim := world.NewSimulator(workers, zap.NewNop())
		loop := NewLoop(uuid.New(), spec, sim, filter, evidence, &mockRefusalStore{}, decisions, &mockDiagnosticStore{}, zap.NewNop())
		if _, err := loop.Run(context.Background()); err != nil {
			t.Fatalf("Run with %d workers: %v", workers, err)
		}
		return decisions.events, len(evidence.events)
	}

	serial, serialEvidence := runWith(1)
	parallel, parallelEvidence := runWith(8)

	if len(serial) != len(parallel) {
		t.Fatalf("decision counts differ: %d vs %d", len(serial), len(parallel))
	}
	if serialEvidence != parallelEvidence {
		t.Fatalf("evidence counts differ: %d vs %d", serialEvidence, parallelEvidence)
	}
	for i := range serial {
		a, b := serial[i], parallel[i]
		if a.Cycle != b.Cycle || a.Outcome != b.Outcome || a.Template != b.Template {
			t.Fatalf("decision %d differs: %+v vs %+v", i, a, b)
		}
		if a.Reward != b.Reward || a.BudgetRemaining != b.BudgetRemaining || a.DebtBits != b.DebtBits {
			t.Fatalf("decision %d accounting differs: %+v vs %+v", i, a, b)
		}
	}
}
