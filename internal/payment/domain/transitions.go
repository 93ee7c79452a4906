package domain

// transitions is the lifecycle table. Terminal states (CANCELLED, VOIDED,
// REFUNDED) have no outgoing edges, which is what absorbs a late
// PROCESSING→PAID webhook racing an administrative cancellation.
var transitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusProcessing: true,
		StatusPaid:       true,
		StatusFailed:     true,
		StatusUnpaid:     true,
		StatusOverdue:    true,
		StatusCancelled:  true,
		StatusVoided:     true,
	},
	StatusProcessing: {
		StatusPaid:      true,
		StatusFailed:    true,
		StatusDisputed:  true,
		StatusCancelled: true,
		StatusVoided:    true,
	},
	StatusPaid: {
		StatusRefunded: true,
		StatusDisputed: true,
	},
	StatusPartiallyPaid: {
		StatusPaid:      true,
		StatusOverdue:   true,
		StatusRefunded:  true,
		StatusCancelled: true,
		StatusVoided:    true,
	},
	StatusUnpaid: {
		StatusPending:       true,
		StatusProcessing:    true,
		StatusPaid:          true,
		StatusPartiallyPaid: true,
		StatusOverdue:       true,
		StatusCancelled:     true,
		StatusVoided:        true,
	},
	StatusOverdue: {
		StatusPaid:          true,
		StatusPartiallyPaid: true,
		StatusProcessing:    true,
		StatusCancelled:     true,
		StatusVoided:        true,
	},
	StatusFailed: {
		StatusPending:    true,
		StatusProcessing: true,
		StatusCancelled:  true,
		StatusVoided:     true,
	},
	StatusDisputed: {
		StatusPaid:      true,
		StatusRefunded:  true,
		StatusCancelled: true,
		StatusVoided:    true,
	},
	StatusCancelled: {},
	StatusRefunded:  {},
	StatusVoided:    {},
}

// CanTransition reports whether from→to is an allowed lifecycle edge.
// A same-state transition is not an edge; callers treat it as a no-op.
func CanTransition(from, to Status) bool {
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	return allowed[to]
}

// Terminal reports whether s has no outgoing transitions.
func Terminal(s Status) bool {
	return len(transitions[s]) == 0
}

// AdministrativeOnly reports whether entering s requires an explicit
// administrative action rather than gateway reconciliation.
func AdministrativeOnly(s Status) bool {
	return s == StatusCancelled || s == StatusVoided
}

// DerivedStatus is the single place where child aggregates could feed back
// into the payment status. Today it deliberately returns the current status
// unchanged: a partial refund does not flip the payment, and marking every
// installment paid does not settle it. Change the policy here, not in the
// transition table.
func DerivedStatus(current Status, refundedSum, total int64, installmentsAllPaid bool) Status {
	return current
}
