package payments

import (
	"time"

	"github.com/google/uuid"
)

// PaymentType enumerates the four kinds of money-movement records.
type PaymentType string

const (
	TypeEditorPayout PaymentType = "editor_payout"
	TypeClientCharge PaymentType = "client_charge"
	TypeBonus        PaymentType = "bonus"
	TypeDeduction    PaymentType = "deduction"
)

// Valid reports whether the payment type is known.
func (t PaymentType) Valid() bool {
	switch t {
	case TypeEditorPayout, TypeClientCharge, TypeBonus, TypeDeduction:
		return true
	}
	return false
}

// Incoming reports whether money flows into the agency for this type.
func (t PaymentType) Incoming() bool {
	return t == TypeClientCharge
}

// Payment is a ledger record of money owed or paid. Records are never
// deleted and their paid/received flags are never unset once true.
type Payment struct {
	ID                int64
	Type              PaymentType
	ProjectID         int64
	WorkItemID        int64
	EditorID          int64
	ClientID          int64
	Description       string
	OriginalAmount    float64
	PenaltyAmount     float64
	FinalAmount       float64
	Currency          string
	Paid              bool
	PaidAt            *time.Time
	Received          bool
	ReceivedAt        *time.Time
	PaymentScreenshot string
	DeadlineCrossed   bool
	DaysLate          int
	SettlementID      *uuid.UUID
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// EffectiveAmount returns the amount a settlement sums for this record:
// finalAmount when set, originalAmount otherwise. Zero stands for "unset":
// every mint path writes FinalAmount and no record is minted with a zero
// amount, so the fallback only fires for rows imported from before the
// ledger tracked penalties. reports mirrors the same rule in SQL.
func (p Payment) EffectiveAmount() float64 {
	if p.FinalAmount != 0 {
		return p.FinalAmount
	}
	return p.OriginalAmount
}

// PayoutInput materializes an editor payout from a work breakdown item.
type PayoutInput struct {
	ProjectID  int64
	WorkItemID int64
	EditorID   int64
	Amount     float64
	Currency   string
	Late       Lateness
}

// ChargeInput materializes the client charge created at acceptance time.
type ChargeInput struct {
	ProjectID int64
	ClientID  int64
	Amount    float64
	Currency  string
}

// ManualInput captures an admin-initiated out-of-band record.
type ManualInput struct {
	Type                PaymentType
	Amount              float64
	Description         string
	ProjectID           int64
	EditorID            int64
	ClientID            int64
	Currency            string
	MarkPaidImmediately bool
}

// SettlementKind selects which side of the ledger a bulk settlement closes.
type SettlementKind string

const (
	SettleEditor SettlementKind = "editor"
	SettleClient SettlementKind = "client"
)

// SettleInput selects ledger records for one bulk settlement. Bonus and
// deduction apply to the whole batch and are only valid for editor
// settlements.
type SettleInput struct {
	Kind            SettlementKind
	PaymentIDs      []int64
	Proof           string
	BonusAmount     float64
	DeductionAmount float64
	Notes           string
}

// CurrencyGroup summarises one currency partition of a settlement batch.
type CurrencyGroup struct {
	Currency  string  `json:"currency"`
	Subtotal  float64 `json:"subtotal"`
	Bonus     float64 `json:"bonus,omitempty"`
	Deduction float64 `json:"deduction,omitempty"`
	Total     float64 `json:"total"`
}

// SettlementResult reports what one bulk settlement did.
type SettlementResult struct {
	SettlementID uuid.UUID       `json:"settlement_id"`
	Kind         SettlementKind  `json:"kind"`
	Groups       []CurrencyGroup `json:"groups"`
	SettledIDs   []int64         `json:"settled_ids"`
	SettledAt    time.Time       `json:"settled_at"`
}
