package payments

import (
	"time"

	"github.com/reelhouse/reelhouse/internal/money"
)

// LatePenaltyRate is the flat payout reduction for late delivery. Lateness
// is binary: there are no graduated tiers.
const LatePenaltyRate = 0.20

// Lateness captures the outcome of the one-time deadline check performed
// when a submission lands.
type Lateness struct {
	DeadlineCrossed bool
	DaysLate        int
}

// EvaluateLateness compares the submission instant against the deadline.
// The comparison is strict: a submission at exactly the deadline is on
// time, one second past it is late with daysLate rounded up to 1.
func EvaluateLateness(submittedAt, deadline time.Time) Lateness {
	if deadline.IsZero() || !submittedAt.After(deadline) {
		return Lateness{}
	}
	const day = 24 * time.Hour
	delta := submittedAt.Sub(deadline)
	days := int(delta / day)
	if delta%day != 0 {
		days++
	}
	return Lateness{DeadlineCrossed: true, DaysLate: days}
}

// PenaltyFor returns the flat-rate penalty on a payout's original amount.
// Zero when the qualifying submission was on time.
func PenaltyFor(originalAmount float64, late bool) float64 {
	if !late {
		return 0
	}
	return money.Round2(originalAmount * LatePenaltyRate)
}
