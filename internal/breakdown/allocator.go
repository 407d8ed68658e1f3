package breakdown

import (
	"fmt"
	"math"

	"github.com/reelhouse/reelhouse/internal/money"
	"github.com/reelhouse/reelhouse/internal/shared"
)

// PercentTolerance is the absolute tolerance on the percentage sum when a
// breakdown is finalized.
const PercentTolerance = 0.01

// ItemAmount computes the budget slice for a single percentage against the
// current allocated budget.
func ItemAmount(budget, percentage float64) float64 {
	return money.Round2(budget * percentage / 100)
}

// SumPercentages totals the percentages of all non-declined items.
func SumPercentages(items []Item) float64 {
	var sum float64
	for _, it := range items {
		if it.Declined() {
			continue
		}
		sum += it.Percentage
	}
	return sum
}

// ValidatePercentages checks that non-declined percentages sum to 100
// within tolerance. The returned ValidationError carries the actual sum.
func ValidatePercentages(items []Item) error {
	sum := SumPercentages(items)
	if math.Abs(sum-100) > PercentTolerance {
		return shared.NewValidationError("percentage", sum,
			fmt.Sprintf("work item percentages must sum to 100, got %g", sum))
	}
	return nil
}

// Recalculate recomputes every item's amount from its own percentage
// against the current budget. Editing one item's percentage never
// redistributes the remainder among the others.
func Recalculate(budget float64, items []Item) []Item {
	out := make([]Item, len(items))
	for i, it := range items {
		it.Amount = ItemAmount(budget, it.Percentage)
		out[i] = it
	}
	return out
}

// Progress computes overall project completion as the dual-approved share
// of all non-declined percentage weight. Derived on every read, never
// stored.
func Progress(items []Item) float64 {
	var approved, total float64
	for _, it := range items {
		if it.Declined() {
			continue
		}
		total += it.Percentage
		if it.DualApproved() {
			approved += it.Percentage
		}
	}
	if total == 0 {
		return 0
	}
	return approved / total * 100
}
