package reports

// Rollup aggregates the ledger for one currency. Amounts are never
// converted or mixed across currencies; each currency reports its own row.
//
// Revenue counts client money actually received, bucketed by the received
// timestamp. Expenses count outgoing money actually paid, bucketed by the
// paid timestamp; deduction records carry negative amounts and therefore
// reduce expenses. Pending figures are point-in-time snapshots.
type Rollup struct {
	Currency            string  `json:"currency"`
	Revenue             float64 `json:"revenue"`
	Expenses            float64 `json:"expenses"`
	NetProfit           float64 `json:"net_profit"`
	PendingClientIncome float64 `json:"pending_client_income"`
	PendingEditorPayout float64 `json:"pending_editor_payout"`
}

// Summary is the full rollup answer: one row per currency plus the period
// it covers. An empty month means all-time.
type Summary struct {
	Month   string   `json:"month,omitempty"`
	Rollups []Rollup `json:"rollups"`
}
