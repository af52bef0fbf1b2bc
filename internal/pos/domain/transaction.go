package domain

import (
	"errors"
	"math/rand"
	"strings"
	"time"
)

var (
	// ErrTerminalIDRequired indicates the commit request named no terminal.
	ErrTerminalIDRequired = errors.New("terminal id is required")
	// ErrAmountNotPositive indicates the commit amount was zero or negative.
	ErrAmountNotPositive = errors.New("amount must be a positive number")
)

// Transaction is one committed POS transaction.
//
// ID is assigned by the ledger on insert; a Transaction carries an ID if and
// only if it has been durably committed.
type Transaction struct {
	ID          int64
	TerminalID  string
	Amount      int64
	Beneficiary string
	BankName    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BankNames is the pool of display bank names for synthesized transactions.
var BankNames = []string{"Wema Bank", "Access Bank", "Moniepoint MFB", "GTBank"}

var firstNames = []string{"John", "Mary", "James", "Sarah", "Michael", "Elizabeth", "David", "Emma"}

var lastNames = []string{"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis"}

// ValidateCommitInput checks a commit request before any write happens.
func ValidateCommitInput(terminalID string, amount int64) error {
	if strings.TrimSpace(terminalID) == "" {
		return ErrTerminalIDRequired
	}
	if amount <= 0 {
		return ErrAmountNotPositive
	}
	return nil
}

// SynthesizeDisplayFields fills the presentation-only beneficiary and bank
// name so the ledger insert commits a complete record in one statement.
func SynthesizeDisplayFields(rng *rand.Rand) (beneficiary string, bankName string) {
	beneficiary = firstNames[rng.Intn(len(firstNames))] + " " + lastNames[rng.Intn(len(lastNames))]
	bankName = BankNames[rng.Intn(len(BankNames))]
	return beneficiary, bankName
}

// KnownBankName reports whether name belongs to the configured bank pool.
func KnownBankName(name string) bool {
	for _, candidate := range BankNames {
		if candidate == name {
			return true
		}
	}
	return false
}
