package domain

import "fmt"

// TemporalProvenanceError aborts a run: an evidence record that needed an
// evidence time was written without one, or with one preceding its claim
// time. It is never downgraded or repaired.
type TemporalProvenanceError struct {
	Cycle  int
	Belief BeliefName
	Reason string
}

func (e *TemporalProvenanceError) Error() string {
	return fmt.Sprintf("temporal provenance violation at cycle %d, belief %q: %s", e.Cycle, e.Belief, e.Reason)
}

// IntegrityError aborts a run: a cycle counter was reused, skipped, or used
// out of order, or belief state was touched outside an update transaction.
type IntegrityError struct {
	Cycle  int
	Field  string
	Value  any
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation at cycle %d, field %q (value %v): %s", e.Cycle, e.Field, e.Value, e.Reason)
}
