package domain

import "time"

// ProjectedTransaction is the shape a committed transaction takes on the
// realtime channel. The ledger row id does not travel on the channel; the
// push key identifies the record there.
type ProjectedTransaction struct {
	TerminalID  string `json:"terminal_id"`
	Amount      int64  `json:"amount"`
	Beneficiary string `json:"beneficiary"`
	BankName    string `json:"bank_name"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// ProjectTransaction converts a committed transaction into its channel shape.
func ProjectTransaction(tx Transaction) ProjectedTransaction {
	return ProjectedTransaction{
		TerminalID:  tx.TerminalID,
		Amount:      tx.Amount,
		Beneficiary: tx.Beneficiary,
		BankName:    tx.BankName,
		CreatedAt:   tx.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   tx.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// SameDisplayRecord reports whether two projections describe the same
// transaction as far as a viewer can tell.
func (p ProjectedTransaction) SameDisplayRecord(other ProjectedTransaction) bool {
	return p.Beneficiary == other.Beneficiary &&
		p.Amount == other.Amount &&
		p.CreatedAt == other.CreatedAt
}
