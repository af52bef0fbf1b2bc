package realtime

import (
	"context"
	"encoding/json"
	"sort"
)

// TransactionsNamespace is the channel namespace that carries transaction
// projections for every terminal on one channel instance.
const TransactionsNamespace = "transactions"

// Snapshot is the full set of children in one namespace at one moment.
type Snapshot struct {
	Namespace string
	Children  map[string]json.RawMessage
}

// OrderedKeys returns the snapshot's child keys sorted ascending.
//
// Push keys sort lexically in push order, so iterating the sorted keys
// replays children in the order the channel accepted them.
func (s Snapshot) OrderedKeys() []string {
	keys := make([]string, 0, len(s.Children))
	for key := range s.Children {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Subscription is a live feed of namespace snapshots.
//
// The feed terminates when the subscription or its channel closes; Err
// reports why.
type Subscription struct {
	snapshots <-chan Snapshot
	err       func() error
	close     func()
}

// NewSubscription wraps a snapshot feed for delivery to consumers.
func NewSubscription(snapshots <-chan Snapshot, err func() error, closeFn func()) *Subscription {
	return &Subscription{snapshots: snapshots, err: err, close: closeFn}
}

// Snapshots returns the snapshot feed. The channel is closed when the
// subscription ends.
func (s *Subscription) Snapshots() <-chan Snapshot {
	if s == nil {
		return nil
	}
	return s.snapshots
}

// Err reports why the feed ended, or nil after a clean close.
func (s *Subscription) Err() error {
	if s == nil || s.err == nil {
		return nil
	}
	return s.err()
}

// Close stops the subscription.
func (s *Subscription) Close() {
	if s == nil || s.close == nil {
		return
	}
	s.close()
}

// Channel is one tenant's realtime channel handle.
type Channel interface {
	// Push stores child under a fresh server-assigned key and returns the key.
	Push(ctx context.Context, namespace string, child json.RawMessage) (string, error)
	// Subscribe starts a snapshot feed for namespace. The current snapshot is
	// delivered first, then one snapshot per change.
	Subscribe(ctx context.Context, namespace string) (*Subscription, error)
	// Delete removes a child by key. Deleting an absent key is not an error.
	Delete(ctx context.Context, namespace string, key string) error
	// Close tears down the handle and any live subscriptions.
	Close() error
}
