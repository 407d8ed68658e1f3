package payments

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/reelhouse/reelhouse/internal/money"
	"github.com/reelhouse/reelhouse/internal/shared"
)

// Settle closes a batch of ledger records in one logical transaction.
//
// The batch is partitioned by currency in the order ids were selected; each
// group subtotals independently and amounts are never converted or summed
// across currencies. A one-shot bonus or deduction applies to the first
// (primary) currency group only and materializes as its own ledger record,
// marked paid at the shared settlement timestamp. Editor settlements flip
// paid, client settlements flip received (and paid, which received
// implies). If any record in the batch cannot transition, nothing does.
func (s *Service) Settle(ctx context.Context, actor shared.Identity, in SettleInput) (SettlementResult, error) {
	result := SettlementResult{Kind: in.Kind}
	if len(in.PaymentIDs) == 0 {
		return result, nil
	}
	switch in.Kind {
	case SettleEditor, SettleClient:
	default:
		return SettlementResult{}, shared.NewValidationError("kind", string(in.Kind), "unknown settlement kind")
	}
	if in.Kind == SettleClient && (in.BonusAmount != 0 || in.DeductionAmount != 0) {
		return SettlementResult{}, shared.NewValidationError("bonusAmount", in.BonusAmount,
			"bonus and deduction adjustments are only valid for editor settlements")
	}
	if in.BonusAmount < 0 {
		return SettlementResult{}, shared.NewValidationError("bonusAmount", in.BonusAmount, "bonus must not be negative")
	}
	if in.DeductionAmount < 0 {
		return SettlementResult{}, shared.NewValidationError("deductionAmount", in.DeductionAmount, "deduction must not be negative")
	}

	records, err := s.repo.GetMany(ctx, in.PaymentIDs)
	if err != nil {
		return SettlementResult{}, err
	}
	byID := make(map[int64]Payment, len(records))
	for _, p := range records {
		byID[p.ID] = p
	}

	// Walk the selection in caller order so the primary currency group is
	// deterministic.
	groups := make([]*CurrencyGroup, 0, 1)
	groupIndex := make(map[string]*CurrencyGroup)
	ordered := make([]Payment, 0, len(in.PaymentIDs))
	seen := make(map[int64]struct{}, len(in.PaymentIDs))
	for _, id := range in.PaymentIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		p, ok := byID[id]
		if !ok {
			return SettlementResult{}, shared.NewNotFoundError("payment", strconv.FormatInt(id, 10))
		}
		if err := validateForSettlement(in.Kind, p); err != nil {
			return SettlementResult{}, err
		}
		if in.Kind == SettleClient {
			if err := s.chargePayable(ctx, p); err != nil {
				return SettlementResult{}, err
			}
		}
		ordered = append(ordered, p)
		group, ok := groupIndex[p.Currency]
		if !ok {
			group = &CurrencyGroup{Currency: p.Currency}
			groupIndex[p.Currency] = group
			groups = append(groups, group)
		}
		group.Subtotal = money.Round2(group.Subtotal + p.EffectiveAmount())
	}

	now := s.now()
	settlementID := uuid.New()
	primary := groups[0]
	primary.Bonus = money.Round2(in.BonusAmount)
	primary.Deduction = money.Round2(in.DeductionAmount)
	for _, g := range groups {
		g.Total = money.Round2(g.Subtotal + g.Bonus - g.Deduction)
	}

	var synthesized []Payment
	if in.BonusAmount != 0 {
		synthesized = append(synthesized, s.adjustmentRecord(TypeBonus, in.BonusAmount, in.Notes, ordered[0], settlementID, now))
	}
	if in.DeductionAmount != 0 {
		synthesized = append(synthesized, s.adjustmentRecord(TypeDeduction, in.DeductionAmount, in.Notes, ordered[0], settlementID, now))
	}

	ids := make([]int64, 0, len(ordered))
	for _, p := range ordered {
		ids = append(ids, p.ID)
	}
	err = s.repo.SettleAtomic(ctx, AtomicSettle{
		Kind:         in.Kind,
		IDs:          ids,
		SettlementID: settlementID,
		At:           now,
		Proof:        in.Proof,
		Synthesized:  synthesized,
	})
	if err != nil {
		return SettlementResult{}, err
	}

	result.SettlementID = settlementID
	result.SettledIDs = ids
	result.SettledAt = now
	result.Groups = make([]CurrencyGroup, 0, len(groups))
	currencies := make([]string, 0, len(groups))
	for _, g := range groups {
		result.Groups = append(result.Groups, *g)
		currencies = append(currencies, g.Currency)
	}

	s.recordAudit(ctx, actor.UserID, "payment.bulk_settled", settlementID.String(),
		fmt.Sprintf("%d records (%s)", len(ids), strings.Join(currencies, ", ")))
	s.emitter.Emit(ctx, shared.NewEvent(shared.EventPaymentSettled, "settlement", settlementID.String(), map[string]any{
		"kind":  string(in.Kind),
		"count": len(ids),
	}))
	s.bumpRollups(ctx)
	return result, nil
}

// adjustmentRecord synthesizes the batch-level bonus or deduction record.
// It inherits the editor/project context and currency of the primary
// group's first record and is born settled.
func (s *Service) adjustmentRecord(t PaymentType, amount float64, notes string, anchor Payment, settlementID uuid.UUID, at time.Time) Payment {
	signed := money.Round2(amount)
	if t == TypeDeduction {
		signed = -math.Abs(signed)
	}
	paidAt := at
	return Payment{
		Type:           t,
		ProjectID:      anchor.ProjectID,
		EditorID:       anchor.EditorID,
		Description:    notes,
		OriginalAmount: signed,
		FinalAmount:    signed,
		Currency:       anchor.Currency,
		Paid:           true,
		PaidAt:         &paidAt,
		SettlementID:   &settlementID,
		CreatedAt:      at,
		UpdatedAt:      at,
	}
}

func validateForSettlement(kind SettlementKind, p Payment) error {
	switch kind {
	case SettleEditor:
		if p.Type == TypeClientCharge {
			return shared.NewPolicyError(fmt.Sprintf("payment %d is a client charge and cannot join an editor settlement", p.ID))
		}
		if p.Paid {
			return shared.NewStateError("paid", fmt.Sprintf("payment %d is already settled", p.ID))
		}
	case SettleClient:
		if p.Type != TypeClientCharge {
			return shared.NewPolicyError(fmt.Sprintf("payment %d is not a client charge", p.ID))
		}
		if p.Received {
			return shared.NewStateError("received", fmt.Sprintf("payment %d is already received", p.ID))
		}
	}
	return nil
}
