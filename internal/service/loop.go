package service

import (
	"context"
	"fmt"
	"time"

	"github.com/calyxbio/warrant/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// The loop stops early once this many cycles in a row were refused; with no
// executable action left, further cycles would only repeat the refusal.
const maxConsecutiveRefusals = 5

// Loop runs one experiment campaign: propose, refuse-check, execute,
// observe, update, account. Single-threaded and cooperative; a cycle is an
// atomic unit of belief mutation, and the only suspension point is the world
// call.
type Loop struct {
	logger      *zap.Logger
	runID       uuid.UUID
	spec        domain.RunSpec
	ledger      *Ledger
	debt        *DebtLedger
	snr         *SNRFilter
	spatial     *SpatialQC
	proposer    *Proposer
	world       domain.WorldClient
	evidence    domain.EvidenceStore
	refusals    domain.RefusalStore
	decisions   domain.DecisionStore
	diagnostics domain.DiagnosticStore

	budget          float64
	pending         *domain.MitigationContext
	baselineEntropy *float64
	totalReward     float64
	summary         domain.RunSummary
	now             func() time.Time
}

func NewLoop(
	runID uuid.UUID,
	spec domain.RunSpec,
	world domain.WorldClient,
	snr *SNRFilter,
	evidence domain.EvidenceStore,
	refusals domain.RefusalStore,
	decisions domain.DecisionStore,
	diagnostics domain.DiagnosticStore,
	logger *zap.Logger,
) *Loop {
	gate := NewGateMachine(spec.Gate)
	return &Loop{
		logger:      logger,
		runID:       runID,
		spec:        spec,
		ledger:      NewLedger(runID, Updaters(gate), logger),
		debt:        NewDebtLedger(spec.Debt, spec.CalibrationTemplates, logger),
		snr:         snr,
		spatial:     NewSpatialQC(spec.Spatial, logger),
		proposer:    NewProposer(spec.Seed, spec.Templates, spec.CalibrationTemplates),
		world:       world,
		evidence:    evidence,
		refusals:    refusals,
		decisions:   decisions,
		diagnostics: diagnostics,
		budget:      spec.TotalBudget,
		now:         time.Now,
	}
}

// Ledger exposes the evidence ledger, mainly for tests and summaries.
func (l *Loop) Ledger() *Ledger { return l.ledger }

// Debt exposes the debt ledger for read access.
func (l *Loop) Debt() *DebtLedger { return l.debt }

// BudgetRemaining is the shared budget counter; it only moves on executed
// actions.
func (l *Loop) BudgetRemaining() float64 { return l.budget }

// Run executes cycles 1..MaxCycles. Fatal integrity and provenance errors
// abort with full context; cancellation stops between cycles, after the
// current cycle's events have been flushed.
func (l *Loop) Run(ctx context.Context) (*domain.RunSummary, error) {
	l.logger.Info("run starting",
		zap.String("run_id", l.runID.String()),
		zap.Int64("seed", l.spec.Seed),
		zap.Float64("budget", l.spec.TotalBudget),
		zap.Int("max_cycles", l.spec.MaxCycles))

	for k := 1; k <= l.spec.MaxCycles; k++ {
		if err := ctx.Err(); err != nil {
			return l.finish(), err
		}
		if err := l.cycle(ctx, k); err != nil {
			return l.finish(), err
		}
		if l.ledger.State().RefusalStreak() >= maxConsecutiveRefusals {
			l.logger.Info("stopping run: repeated refusals, nothing executable remains",
				zap.Int("cycle", k),
				zap.Int("refusal_streak", l.ledger.State().RefusalStreak()))
			break
		}
	}
	summary := l.finish()
	l.logger.Info("run finished",
		zap.String("run_id", l.runID.String()),
		zap.Int("cycles", summary.CyclesExecuted),
		zap.Int("refusals", summary.Refusals),
		zap.Float64("final_debt_bits", summary.FinalDebtBits),
		zap.Float64("total_reward", summary.TotalReward))
	return summary, nil
}

// cycle is exactly one begin/end pair. The deferred flush guarantees no
// begin_cycle is ever left unmatched, including on error and cancellation
// paths.
func (l *Loop) cycle(ctx context.Context, k int) (err error) {
	if err = l.ledger.BeginCycle(k); err != nil {
		return err
	}
	defer func() {
		if ferr := l.flush(); ferr != nil && err == nil {
			err = ferr
		}
	}()

	if k == 1 {
		for _, ch := range l.snr.DisabledChannels() {
			l.ledger.RecordFilterDisabled(k, ch)
		}
	}

	// A pending mitigation consumes the entire cycle; the science proposal
	// is skipped.
	if mc := l.pending; mc != nil {
		l.pending = nil
		return l.runMitigation(ctx, k, mc)
	}

	regime := l.ledger.State().Regime()
	p := l.proposer.Propose(regime, k, l.horizonScale())

	refuse, rule, inflated := l.debt.ShouldRefuse(p.Template, p.WellCost, l.budget)
	if refuse {
		return l.refuseCycle(ctx, k, p, rule, inflated)
	}
	return l.execute(ctx, k, p, false)
}

// refuseCycle records the refusal and advances without executing anything.
// Budget and debt are untouched.
func (l *Loop) refuseCycle(ctx context.Context, k int, p *domain.Proposal, rule domain.RefusalRule, inflated float64) error {
	re := &domain.RefusalEvent{
		ID:              uuid.New(),
		RunID:           l.runID,
		Cycle:           k,
		Kind:            "refusal",
		SchemaVersion:   domain.RefusalSchemaVersion,
		Template:        p.Template,
		ProposedCost:    p.WellCost,
		InflatedCost:    inflated,
		DebtBits:        l.debt.DebtBits(),
		BudgetRemaining: l.budget,
		HardThreshold:   l.debt.HardThreshold(),
		Rule:            rule,
		RefusedAt:       l.now(),
	}
	if err := l.refusals.Append(ctx, re); err != nil {
		return fmt.Errorf("append refusal at cycle %d: %w", k, err)
	}
	l.ledger.RecordRefusal(k)
	l.summary.Refusals++

	l.logger.Info("action refused",
		zap.Int("cycle", k),
		zap.String("template", p.Template),
		zap.String("rule", string(rule)),
		zap.Float64("inflated_cost", inflated),
		zap.Float64("budget_remaining", l.budget),
		zap.Float64("debt_bits", l.debt.DebtBits()))

	return l.appendDecision(ctx, k, domain.OutcomeRefused, p, inflated, rewardBreakdown{})
}

// execute runs the proposal against the world and feeds the filtered
// observation through the update path. Shared by science and mitigation
// cycles.
func (l *Loop) execute(ctx context.Context, k int, p *domain.Proposal, mitigation bool) error {
	claimTime := l.now()
	if err := l.debt.Claim(p.ID.String(), p.Template, p.ExpectedGainBits); err != nil {
		return fmt.Errorf("claim for action %s at cycle %d: %w", p.ID, k, err)
	}
	inflated := l.debt.InflatedCost(p.WellCost)

	raw, err := l.world.Execute(ctx, p)
	if err != nil {
		return fmt.Errorf("world execution failed at cycle %d: %w", k, err)
	}
	rows, cols := plateDims(raw)
	obs := BuildObservation(p, raw, l.snr, k, mitigation, l.now(), rows, cols)

	state := l.ledger.State()
	prevEntropy, prevOK := entropyProxy(state.RelativeWidth())
	prevOK = prevOK && state.Observed()
	prevGate := state.Gate(GateNoiseSigma)

	if err := l.ledger.Update(obs, k, claimTime); err != nil {
		return err
	}

	if state.Gate(GateNoiseSigma) != prevGate {
		l.summary.GateTransitions++
		l.logger.Info("gate transition",
			zap.Int("cycle", k),
			zap.String("gate", GateNoiseSigma),
			zap.String("from", string(prevGate)),
			zap.String("to", string(state.Gate(GateNoiseSigma))))
	}

	newEntropy, newOK := entropyProxy(state.RelativeWidth())
	actualGain := 0.0
	if prevOK && newOK && newEntropy < prevEntropy {
		actualGain = prevEntropy - newEntropy
	}
	entropyPenalty := 0.0
	if prevOK && newOK {
		entropyPenalty = l.debt.EntropyPenalty(prevEntropy, newEntropy)
	}
	if l.baselineEntropy == nil && newOK {
		e := newEntropy
		l.baselineEntropy = &e
	}

	l.budget -= inflated
	l.summary.ActionsExecuted++
	if mitigation {
		l.summary.MitigationCycles++
	}
	l.ledger.RecordActionExecuted(k)
	if _, err := l.debt.Resolve(p.ID.String(), actualGain); err != nil {
		return fmt.Errorf("resolve claim for action %s at cycle %d: %w", p.ID, k, err)
	}
	l.ledger.UpdateDebtLevel(k, l.debt.DebtBits(), l.debt.HardThreshold())

	qcPenalty, err := l.spatialCheck(ctx, k, p, obs)
	if err != nil {
		return err
	}

	breakdown := computeReward(actualGain, inflated, l.spec.CostWeight, entropyPenalty, qcPenalty)
	l.totalReward += breakdown.Total

	outcome := domain.OutcomeExecuted
	if mitigation {
		outcome = domain.OutcomeMitigation
	}
	return l.appendDecision(ctx, k, outcome, p, inflated, breakdown)
}

// spatialCheck runs spatial QC on the just-completed observation. A
// corrective choice becomes the pending MitigationContext for the next
// cycle; it is never executed within this one.
func (l *Loop) spatialCheck(ctx context.Context, k int, p *domain.Proposal, obs *domain.Observation) (float64, error) {
	finding, ok := l.spatial.Evaluate(obs)
	if !ok {
		return 0, nil
	}
	diag := &domain.DiagnosticEvent{
		ID:            uuid.New(),
		RunID:         l.runID,
		Cycle:         k,
		Kind:          "diagnostic",
		SchemaVersion: domain.DiagnosticSchemaVersion,
		Check:         "spatial_autocorrelation",
		Statistic:     finding.Statistic,
		Threshold:     finding.Threshold,
		Flagged:       finding.Flagged,
		Details:       map[string]any{"wells": finding.Wells, "layout_seed": obs.LayoutSeed},
		ObservedAt:    l.now(),
	}

	qcPenalty := 0.0
	if finding.Flagged {
		mc := domain.MitigationContext{
			CycleFlagged:    k,
			StatisticBefore: finding.Statistic,
			Previous:        p,
			LayoutSeed:      nextLayoutSeed(p.LayoutSeed),
		}
		replate, replicate := mc, mc
		replate.Action = domain.MitigationReplate
		replicate.Action = domain.MitigationReplicate
		options := l.spatial.Options(finding.Statistic,
			l.mitigationProposal(&replate).WellCost,
			l.mitigationProposal(&replicate).WellCost)
		choice, rationale := l.spatial.Choose(options, l.budget)
		diag.Choice = string(choice.Action)
		diag.Rationale = rationale

		if choice.Action == domain.MitigationProceed {
			qcPenalty = choice.Penalty
		} else {
			mc.Action = choice.Action
			mc.Rationale = rationale
			l.pending = &mc
		}
		l.logger.Info("spatial QC flagged",
			zap.Int("cycle", k),
			zap.Float64("morans_i", finding.Statistic),
			zap.String("choice", string(choice.Action)))
	}

	if err := l.diagnostics.Append(ctx, diag); err != nil {
		return 0, fmt.Errorf("append diagnostic at cycle %d: %w", k, err)
	}
	return qcPenalty, nil
}

// runMitigation executes a deferred corrective action as the entirety of
// cycle k.
func (l *Loop) runMitigation(ctx context.Context, k int, mc *domain.MitigationContext) error {
	if mc.CycleFlagged >= k {
		return &domain.IntegrityError{
			Cycle: k, Field: "mitigation_context", Value: mc.CycleFlagged,
			Reason: "mitigation must execute strictly after the cycle that flagged it",
		}
	}
	p := l.mitigationProposal(mc)
	l.logger.Info("running mitigation cycle",
		zap.Int("cycle", k),
		zap.Int("cycle_flagged", mc.CycleFlagged),
		zap.String("action", string(mc.Action)),
		zap.Float64("statistic_before", mc.StatisticBefore))
	return l.execute(ctx, k, p, true)
}

// mitigationProposal turns the deferred context into an executable proposal.
// Replate keeps the design but re-lays it with a fresh deterministic seed;
// replicate doubles every condition's well count.
func (l *Loop) mitigationProposal(mc *domain.MitigationContext) *domain.Proposal {
	conditions := make([]domain.ConditionSpec, len(mc.Previous.Conditions))
	copy(conditions, mc.Previous.Conditions)
	seed := mc.Previous.LayoutSeed
	if mc.Action == domain.MitigationReplate {
		seed = mc.LayoutSeed
	}
	if mc.Action == domain.MitigationReplicate {
		for i := range conditions {
			conditions[i].Replicates *= 2
		}
	}
	p := &domain.Proposal{
		ID:         uuid.New(),
		Template:   mc.Previous.Template,
		Hypothesis: mc.Previous.Hypothesis,
		Conditions: conditions,
		Forced:     true,
		Regime:     mc.Previous.Regime,
		// A corrective action claims no gain, so it can never add debt.
		ExpectedGainBits: 0,
		LayoutSeed:       seed,
	}
	p.WellCost = float64(p.TotalWells()) * costPerWell
	switch mc.Action {
	case domain.MitigationReplate:
		// A fresh plate carries a fixed relayout overhead on top of the
		// re-run wells.
		p.WellCost += l.spec.Spatial.ReplateCost
	case domain.MitigationReplicate:
		p.WellCost *= l.spec.Spatial.ReplicateCostFactor
	}
	return p
}

func (l *Loop) appendDecision(ctx context.Context, k int, outcome domain.DecisionOutcome, p *domain.Proposal, inflated float64, b rewardBreakdown) error {
	de := &domain.DecisionEvent{
		ID:              uuid.New(),
		RunID:           l.runID,
		Cycle:           k,
		Kind:            "decision",
		SchemaVersion:   domain.DecisionSchemaVersion,
		Outcome:         outcome,
		Template:        p.Template,
		Regime:          p.Regime,
		BaseCost:        p.WellCost,
		InflatedCost:    inflated,
		InfoGainBits:    b.InfoGainBits,
		EntropyPenalty:  b.EntropyPenalty,
		QCPenalty:       b.QCPenalty,
		Reward:          b.Total,
		HorizonScale:    l.horizonScale(),
		BudgetRemaining: l.budget,
		DebtBits:        l.debt.DebtBits(),
		DecidedAt:       l.now(),
	}
	if err := l.decisions.Append(ctx, de); err != nil {
		return fmt.Errorf("append decision at cycle %d: %w", k, err)
	}
	return nil
}

func (l *Loop) horizonScale() float64 {
	if l.baselineEntropy == nil {
		return 1
	}
	e, ok := entropyProxy(l.ledger.State().RelativeWidth())
	if !ok {
		return 1
	}
	return l.debt.HorizonScale(*l.baselineEntropy, e)
}

// flush ends the open cycle and appends its buffered evidence on a detached
// context, so run cancellation still drains the buffer before teardown.
func (l *Loop) flush() error {
	if !l.ledger.CycleOpen() {
		return nil
	}
	events, err := l.ledger.EndCycle()
	if err != nil {
		return err
	}
	l.summary.CyclesExecuted = l.ledger.State().Cycle()
	if len(events) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := l.evidence.Append(ctx, events); err != nil {
		return fmt.Errorf("flush evidence for cycle %d: %w", l.ledger.State().Cycle(), err)
	}
	return nil
}

func (l *Loop) finish() *domain.RunSummary {
	s := l.summary
	s.CyclesExecuted = l.ledger.State().Cycle()
	s.FinalDebtBits = l.debt.DebtBits()
	s.BudgetRemaining = l.budget
	s.TotalReward = l.totalReward
	return &s
}

func plateDims(raw []domain.RawWell) (rows, cols int) {
	for _, w := range raw {
		if w.Row+1 > rows {
			rows = w.Row + 1
		}
		if w.Col+1 > cols {
			cols = w.Col + 1
		}
	}
	return rows, cols
}
