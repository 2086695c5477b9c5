package service

import (
	"strconv"
	"time"

	"github.com/calyxbio/warrant/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Updater recomputes one family of beliefs from an observation. Updaters run
// in a fixed, explicit order; the order is part of the ledger's contract.
type Updater interface {
	Name() string
	Update(txn *BeliefTxn, obs *domain.Observation) error
}

// Ledger owns the belief state and the per-cycle evidence buffer. Cycles
// must begin in strict +1 order, every begin must be matched by an end, and
// all belief mutation happens inside Update.
type Ledger struct {
	logger   *zap.Logger
	state    *BeliefState
	updaters []Updater
	now      func() time.Time
}

func NewLedger(runID uuid.UUID, updaters []Updater, logger *zap.Logger) *Ledger {
	return &Ledger{
		logger:   logger,
		state:    newBeliefState(runID),
		updaters: updaters,
		now:      time.Now,
	}
}

// State returns the belief state for read access.
func (l *Ledger) State() *BeliefState { return l.state }

// CycleOpen reports whether a begun cycle has not yet been ended.
func (l *Ledger) CycleOpen() bool { return l.state.cycleOpen }

// BeginCycle opens cycle k. k must be exactly one greater than the last
// begun cycle; reuse, gaps, and regressions are integrity violations, not
// conditions to repair.
func (l *Ledger) BeginCycle(k int) error {
	if l.state.cycleOpen {
		return &domain.IntegrityError{Cycle: k, Field: "cycle", Value: k, Reason: "previous cycle not ended"}
	}
	if k != l.state.lastBegun+1 {
		return &domain.IntegrityError{
			Cycle: k, Field: "cycle", Value: k,
			Reason: "cycle must increase by exactly 1 from " + strconv.Itoa(l.state.lastBegun),
		}
	}
	l.state.lastBegun = k
	l.state.cycleOpen = true
	l.state.buffer = l.state.buffer[:0]
	l.logger.Debug("cycle begun", zap.Int("cycle", k))
	return nil
}

// Update runs the updaters in their fixed order against the observation,
// inside a single transaction. claimTime is when the executed proposal's
// claim was made; all measurement evidence in this cycle must carry an
// evidence time at or after it.
func (l *Ledger) Update(obs *domain.Observation, k int, claimTime time.Time) error {
	if !l.state.cycleOpen || k != l.state.lastBegun {
		return &domain.IntegrityError{Cycle: k, Field: "cycle", Value: k, Reason: "update outside the begun cycle"}
	}
	if l.state.inUpdate {
		return &domain.IntegrityError{Cycle: k, Field: "update", Value: k, Reason: "nested update transaction"}
	}
	l.state.inUpdate = true
	defer func() { l.state.inUpdate = false }()

	txn := &BeliefTxn{s: l.state, cycle: k, claimTime: claimTime, mitigation: obs.Mitigation, now: l.now}
	for _, u := range l.updaters {
		if err := u.Update(txn, obs); err != nil {
			return err
		}
		l.logger.Debug("updater applied", zap.Int("cycle", k), zap.String("updater", u.Name()))
	}
	return nil
}

// EndCycle closes the open cycle and returns the buffered evidence for
// durable append. The buffer is cleared; the caller owns the returned slice.
func (l *Ledger) EndCycle() ([]domain.EvidenceEvent, error) {
	if !l.state.cycleOpen {
		return nil, &domain.IntegrityError{Cycle: l.state.lastBegun, Field: "cycle", Value: l.state.lastBegun, Reason: "end_cycle without begin_cycle"}
	}
	events := make([]domain.EvidenceEvent, len(l.state.buffer))
	copy(events, l.state.buffer)
	l.state.buffer = l.state.buffer[:0]
	l.state.cycleOpen = false
	return events, nil
}

// RecordRefusal bumps the consecutive-refusal streak. Outside the update
// path, but logged like everything else.
func (l *Ledger) RecordRefusal(k int) {
	prev := l.state.refusalStreak
	l.state.refusalStreak = prev + 1
	l.appendAux(k, domain.BeliefRefusalStreak, prev, l.state.refusalStreak, "action refused")
}

// RecordActionExecuted resets the refusal streak after a successful
// execution.
func (l *Ledger) RecordActionExecuted(k int) {
	prev := l.state.refusalStreak
	if prev == 0 {
		return
	}
	l.state.refusalStreak = 0
	l.appendAux(k, domain.BeliefRefusalStreak, prev, 0, "action executed")
}

// UpdateDebtLevel snapshots the debt ledger into the belief state and flips
// the insolvency flag against the hard threshold. Insolvency transitions are
// evidence-time exempt.
func (l *Ledger) UpdateDebtLevel(k int, debtBits, hardThreshold float64) {
	prev := l.state.debtBits
	if prev != debtBits {
		l.appendAux(k, domain.BeliefDebtBits, prev, debtBits, "debt snapshot")
	}
	l.state.debtBits = debtBits

	insolvent := debtBits > hardThreshold
	if insolvent != l.state.insolvent {
		l.state.buffer = append(l.state.buffer, domain.EvidenceEvent{
			ID:            uuid.New(),
			RunID:         l.state.runID,
			Cycle:         k,
			Kind:          domain.EvidenceKindInsolvency,
			SchemaVersion: domain.EvidenceSchemaVersion,
			Belief:        domain.BeliefInsolvency,
			Previous:      l.state.insolvent,
			New:           insolvent,
			Payload:       map[string]any{"debt_bits": debtBits, "hard_threshold": hardThreshold},
			ClaimTime:     l.now(),
		})
		l.state.insolvent = insolvent
		l.logger.Info("insolvency changed", zap.Int("cycle", k), zap.Bool("insolvent", insolvent), zap.Float64("debt_bits", debtBits))
	}
}

// RecordFilterDisabled logs that the noise-floor filter disabled itself for
// a channel whose floor was never observed. Graceful degradation, recorded,
// never silent.
func (l *Ledger) RecordFilterDisabled(k int, channel string) {
	l.state.buffer = append(l.state.buffer, domain.EvidenceEvent{
		ID:            uuid.New(),
		RunID:         l.state.runID,
		Cycle:         k,
		Kind:          domain.EvidenceKindFilterDisabled,
		SchemaVersion: domain.EvidenceSchemaVersion,
		Belief:        domain.BeliefSNRChannel,
		Previous:      "enabled",
		New:           "disabled",
		Note:          "noise floor not observable for channel " + channel,
		Payload:       map[string]any{"channel": channel},
		ClaimTime:     l.now(),
	})
}

func (l *Ledger) appendAux(k int, name domain.BeliefName, prev, next any, note string) {
	// The refusal or resolution being counted is itself the evidence, so the
	// record is stamped with the moment it happened.
	ts := l.now()
	l.state.buffer = append(l.state.buffer, domain.EvidenceEvent{
		ID:            uuid.New(),
		RunID:         l.state.runID,
		Cycle:         k,
		Kind:          domain.EvidenceKindAuxiliary,
		SchemaVersion: domain.EvidenceSchemaVersion,
		Belief:        name,
		Previous:      prev,
		New:           next,
		Note:          note,
		EvidenceTime:  &ts,
		ClaimTime:     ts,
	})
}

