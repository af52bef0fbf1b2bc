// Package storage defines persistence contracts for the POS ledger and the
// tenant directory.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested terminal, channel instance, or
	// transaction row is missing.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a requested write conflicts with uniqueness
	// constraints.
	ErrConflict = errors.New("record conflict")
)

// TransactionRecord stores one committed ledger transaction row.
type TransactionRecord struct {
	ID          int64
	TerminalID  string
	Amount      int64
	Beneficiary string
	BankName    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TerminalRecord stores one POS terminal with its resolved channel endpoint.
type TerminalRecord struct {
	ID                string
	AccountName       string
	AccountNumber     string
	ChannelInstanceID string
	ChannelURL        string
}

// ChannelInstanceRecord stores one realtime channel endpoint row.
type ChannelInstanceRecord struct {
	ID  string
	URL string
}

// TenantRoute is the directory answer for one terminal: which channel
// instance owns it and where that instance lives.
type TenantRoute struct {
	ChannelInstanceID string
	Endpoint          string
}

// TransactionStore persists the durable ledger.
//
// CreateTransaction performs the single atomic insert that assigns the
// canonical id and timestamps, and returns the committed row as re-read from
// the ledger.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, record TransactionRecord) (TransactionRecord, error)
	GetTransaction(ctx context.Context, id int64) (TransactionRecord, error)
	ListTransactionsByTerminal(ctx context.Context, terminalID string) ([]TransactionRecord, error)
}

// TerminalStore is the tenant directory: terminal identity plus the mapping
// to its realtime channel instance.
type TerminalStore interface {
	GetTerminal(ctx context.Context, terminalID string) (TerminalRecord, error)
	GetChannelInstance(ctx context.Context, instanceID string) (ChannelInstanceRecord, error)
	ResolveTenant(ctx context.Context, terminalID string) (TenantRoute, error)
	PutTerminal(ctx context.Context, record TerminalRecord) error
	PutChannelInstance(ctx context.Context, record ChannelInstanceRecord) error
}

// Store combines the ledger and directory contracts implemented by one
// backing database.
type Store interface {
	TransactionStore
	TerminalStore
}
