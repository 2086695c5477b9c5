package service

import "github.com/calyxbio/warrant/internal/domain"

// GateMachine is the hysteresis state machine over a pooled measurement
// statistic. Enter and exit thresholds differ so a statistic hovering
// between them never toggles the gate.
type GateMachine struct {
	t domain.GateThresholds
}

func NewGateMachine(t domain.GateThresholds) *GateMachine {
	return &GateMachine{t: t}
}

func (g *GateMachine) Thresholds() domain.GateThresholds { return g.t }

// Step advances the gate one cycle. sustained counts consecutive cycles the
// enter criteria held; it resets whenever they do not.
//
// Enter (unstable/revoked -> stable): relWidth < Enter AND df >= DFMin AND
// drift < DriftMax, held for SustainCycles consecutive cycles.
// Exit (stable -> revoked): relWidth > Exit.
func (g *GateMachine) Step(cur domain.GateState, sustained int, relWidth, df, drift float64) (domain.GateState, int) {
	if cur == domain.GateStable {
		if relWidth > g.t.Exit {
			return domain.GateRevoked, 0
		}
		return domain.GateStable, 0
	}

	// First observed statistics move the gate out of not_observed.
	if cur == domain.GateNotObserved {
		cur = domain.GateUnstable
	}

	if relWidth < g.t.Enter && df >= g.t.DFMin && drift < g.t.DriftMax {
		sustained++
		if sustained >= g.t.SustainCycles {
			return domain.GateStable, 0
		}
		return cur, sustained
	}
	return cur, 0
}
