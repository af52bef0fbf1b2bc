// Package subscriber consumes realtime transaction projections for one
// terminal.
//
// The channel redelivers the full namespace snapshot on every change and
// again after each reconnect, so the subscriber tracks consumed push keys
// and processes each child at most once. Consumed children are deleted from
// the channel on a best-effort basis.
package subscriber

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/osetale/poslive/internal/pos/domain"
	"github.com/osetale/poslive/internal/realtime"
)

const defaultRetryInterval = 5 * time.Second

// Connector opens a fresh channel handle for the consume loop.
type Connector func(ctx context.Context) (realtime.Channel, error)

// Config wires a Subscriber.
type Config struct {
	// TerminalID filters the feed; children for other terminals are ignored.
	TerminalID string
	// Namespace is the channel namespace to consume.
	Namespace string
	// Connect opens the channel handle. Required.
	Connect Connector
	// RetryInterval is the pause between reconnect attempts. Defaults to 5s.
	RetryInterval time.Duration
	// Initial seeds the view with records from a bulk read, newest first.
	// The merge step skips channel records equivalent to one of these.
	Initial []domain.ProjectedTransaction
	// OnTransaction, if set, runs once per newly consumed transaction.
	OnTransaction func(domain.ProjectedTransaction)
}

// Subscriber drains one terminal's transaction feed into an in-memory view.
type Subscriber struct {
	terminalID    string
	namespace     string
	connect       Connector
	retryInterval time.Duration
	onTransaction func(domain.ProjectedTransaction)

	mu        sync.Mutex
	processed map[string]struct{}
	view      []domain.ProjectedTransaction
}

// New creates a subscriber from cfg.
func New(cfg Config) (*Subscriber, error) {
	if cfg.TerminalID == "" {
		return nil, fmt.Errorf("terminal id is required")
	}
	if cfg.Namespace == "" {
		return nil, fmt.Errorf("namespace is required")
	}
	if cfg.Connect == nil {
		return nil, fmt.Errorf("connector is required")
	}
	retry := cfg.RetryInterval
	if retry <= 0 {
		retry = defaultRetryInterval
	}
	view := make([]domain.ProjectedTransaction, len(cfg.Initial))
	copy(view, cfg.Initial)
	return &Subscriber{
		terminalID:    cfg.TerminalID,
		namespace:     cfg.Namespace,
		connect:       cfg.Connect,
		retryInterval: retry,
		onTransaction: cfg.OnTransaction,
		processed:     make(map[string]struct{}),
		view:          view,
	}, nil
}

// Run consumes the feed until ctx is cancelled, reconnecting after failures.
func (s *Subscriber) Run(ctx context.Context) error {
	for {
		channel, err := s.connect(ctx)
		if err != nil {
			log.Printf("subscriber: connect: %v", err)
			if !s.waitRetry(ctx) {
				return ctx.Err()
			}
			continue
		}

		err = s.consume(ctx, channel)
		if closeErr := channel.Close(); closeErr != nil {
			log.Printf("subscriber: close channel: %v", closeErr)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			log.Printf("subscriber: feed ended: %v", err)
		}
		if !s.waitRetry(ctx) {
			return ctx.Err()
		}
	}
}

func (s *Subscriber) waitRetry(ctx context.Context) bool {
	timer := time.NewTimer(s.retryInterval)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Subscriber) consume(ctx context.Context, channel realtime.Channel) error {
	sub, err := channel.Subscribe(ctx, s.namespace)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.namespace, err)
	}
	defer sub.Close()

	for {
		select {
		case snapshot, ok := <-sub.Snapshots():
			if !ok {
				if err := sub.Err(); err != nil {
					return err
				}
				return fmt.Errorf("snapshot feed closed")
			}
			s.applySnapshot(ctx, channel, snapshot)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// applySnapshot walks the snapshot's children in push order and consumes the
// ones this subscriber has not seen yet.
func (s *Subscriber) applySnapshot(ctx context.Context, channel realtime.Channel, snapshot realtime.Snapshot) {
	for _, key := range snapshot.OrderedKeys() {
		if s.isProcessed(key) {
			continue
		}

		var record domain.ProjectedTransaction
		if err := json.Unmarshal(snapshot.Children[key], &record); err != nil {
			log.Printf("subscriber: decode child %s: %v", key, err)
			s.markProcessed(key)
			continue
		}
		// Children for other terminals belong to other subscribers; they
		// stay unprocessed and untouched on the channel.
		if record.TerminalID != s.terminalID {
			continue
		}
		s.markProcessed(key)

		if s.mergeRecord(record) && s.onTransaction != nil {
			s.onTransaction(record)
		}

		// Consumed children are removed so the namespace does not grow
		// without bound. Failures here only mean redundant redelivery,
		// which the processed set already absorbs.
		if err := channel.Delete(ctx, s.namespace, key); err != nil {
			log.Printf("subscriber: delete consumed child %s: %v", key, err)
		}
	}
}

func (s *Subscriber) isProcessed(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, seen := s.processed[key]
	return seen
}

func (s *Subscriber) markProcessed(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed[key] = struct{}{}
}

// mergeRecord prepends record to the view unless an equivalent record is
// already present. Returns true when the view changed.
func (s *Subscriber) mergeRecord(record domain.ProjectedTransaction) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.view {
		if existing.SameDisplayRecord(record) {
			return false
		}
	}
	s.view = append([]domain.ProjectedTransaction{record}, s.view...)
	return true
}

// View returns the consumed transactions, newest first.
func (s *Subscriber) View() []domain.ProjectedTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	view := make([]domain.ProjectedTransaction, len(s.view))
	copy(view, s.view)
	return view
}
