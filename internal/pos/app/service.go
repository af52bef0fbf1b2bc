// Package app implements the POS commit pipeline and its HTTP API.
package app

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/osetale/poslive/internal/errors"
	"github.com/osetale/poslive/internal/pos/domain"
	"github.com/osetale/poslive/internal/pos/storage"
	"github.com/osetale/poslive/internal/realtime"
)

// ChannelRegistry hands out shared realtime channel handles per instance.
type ChannelRegistry interface {
	Acquire(ctx context.Context, instanceID string) (realtime.Channel, error)
	Release(instanceID string)
}

// Service runs the dual-write commit pipeline: durable ledger insert first,
// then a best-effort push onto the tenant's realtime channel.
type Service struct {
	store    storage.Store
	registry ChannelRegistry
	tracer   trace.Tracer

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewService wires the commit pipeline over the given ledger and registry.
func NewService(store storage.Store, registry ChannelRegistry) *Service {
	return &Service{
		store:    store,
		registry: registry,
		tracer:   otel.Tracer("pos"),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// CommitTransaction validates and durably commits one transaction, then
// mirrors it onto the terminal's realtime channel.
//
// The ledger insert is the source of truth: once it commits, the caller gets
// the transaction back even if the channel push fails. Push failures are
// logged, never returned.
func (s *Service) CommitTransaction(ctx context.Context, terminalID string, amount int64) (_ domain.Transaction, err error) {
	ctx, span := s.tracer.Start(ctx, "pos.commit_transaction",
		trace.WithAttributes(
			attribute.String("pos.terminal_id", terminalID),
			attribute.Int64("pos.amount", amount),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	if err := domain.ValidateCommitInput(terminalID, amount); err != nil {
		return domain.Transaction{}, errors.Wrap(errors.CodeValidation, "invalid commit request", err)
	}

	route, err := s.store.ResolveTenant(ctx, terminalID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return domain.Transaction{}, errors.E(errors.CodeTerminalNotFound,
				fmt.Sprintf("terminal %s is not provisioned", terminalID))
		}
		return domain.Transaction{}, errors.Wrap(errors.CodeStorage, "resolve terminal", err)
	}

	beneficiary, bankName := s.synthesize()
	committed, err := s.store.CreateTransaction(ctx, storage.TransactionRecord{
		TerminalID:  terminalID,
		Amount:      amount,
		Beneficiary: beneficiary,
		BankName:    bankName,
	})
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return domain.Transaction{}, errors.E(errors.CodeTerminalNotFound,
				fmt.Sprintf("terminal %s is not provisioned", terminalID))
		}
		return domain.Transaction{}, errors.Wrap(errors.CodeStorage, "commit transaction", err)
	}

	transaction := toTransaction(committed)
	s.project(ctx, route, transaction)
	return transaction, nil
}

// project mirrors a committed transaction onto the tenant's channel.
// Failures never reach the caller; the ledger write already succeeded.
func (s *Service) project(ctx context.Context, route storage.TenantRoute, transaction domain.Transaction) {
	child, err := json.Marshal(domain.ProjectTransaction(transaction))
	if err != nil {
		log.Printf("pos: encode projection for transaction %d: %v", transaction.ID, err)
		return
	}

	channel, err := s.registry.Acquire(ctx, route.ChannelInstanceID)
	if err != nil {
		log.Printf("pos: acquire channel %s for transaction %d: %v", route.ChannelInstanceID, transaction.ID, err)
		return
	}
	// The handle is scoped to this commit. Teardown is detached inside
	// Release, so the caller's success path never waits on it.
	defer s.registry.Release(route.ChannelInstanceID)

	if _, err := channel.Push(ctx, realtime.TransactionsNamespace, child); err != nil {
		log.Printf("pos: push transaction %d to channel %s: %v", transaction.ID, route.ChannelInstanceID, err)
	}
}

// GetTerminal loads one provisioned terminal.
func (s *Service) GetTerminal(ctx context.Context, terminalID string) (storage.TerminalRecord, error) {
	record, err := s.store.GetTerminal(ctx, terminalID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return storage.TerminalRecord{}, errors.E(errors.CodeTerminalNotFound,
				fmt.Sprintf("terminal %s is not provisioned", terminalID))
		}
		return storage.TerminalRecord{}, errors.Wrap(errors.CodeStorage, "get terminal", err)
	}
	return record, nil
}

// ListTransactions returns a terminal's committed transactions, newest first.
func (s *Service) ListTransactions(ctx context.Context, terminalID string) ([]domain.Transaction, error) {
	if _, err := s.GetTerminal(ctx, terminalID); err != nil {
		return nil, err
	}
	records, err := s.store.ListTransactionsByTerminal(ctx, terminalID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeStorage, "list transactions", err)
	}
	transactions := make([]domain.Transaction, 0, len(records))
	for _, record := range records {
		transactions = append(transactions, toTransaction(record))
	}
	return transactions, nil
}

func (s *Service) synthesize() (beneficiary string, bankName string) {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return domain.SynthesizeDisplayFields(s.rng)
}

func toTransaction(record storage.TransactionRecord) domain.Transaction {
	return domain.Transaction{
		ID:          record.ID,
		TerminalID:  record.TerminalID,
		Amount:      record.Amount,
		Beneficiary: record.Beneficiary,
		BankName:    record.BankName,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	}
}
