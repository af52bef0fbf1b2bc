// Package registry caches realtime channel handles per channel instance.
//
// Handles are created lazily on first use and shared by every request that
// targets the same instance. Construction for one instance is serialized so
// concurrent first requests produce exactly one connection.
package registry

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/osetale/poslive/internal/errors"
	"github.com/osetale/poslive/internal/realtime"
)

// EndpointResolver maps a channel instance id to a dialable endpoint URL.
type EndpointResolver func(ctx context.Context, instanceID string) (string, error)

// Dialer opens a channel handle against a resolved endpoint.
type Dialer func(endpoint string) (realtime.Channel, error)

type entry struct {
	ready   chan struct{}
	channel realtime.Channel
	err     error
}

// Registry hands out cached channel handles keyed by instance id.
type Registry struct {
	resolve EndpointResolver
	dial    Dialer

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
}

// New creates a registry using the given resolver and dialer.
func New(resolve EndpointResolver, dial Dialer) *Registry {
	return &Registry{
		resolve: resolve,
		dial:    dial,
		entries: make(map[string]*entry),
	}
}

// Acquire returns the shared handle for instanceID, creating it on first use.
//
// Callers waiting on an in-flight construction observe its outcome. A failed
// construction is not cached, so the next Acquire retries from scratch.
func (r *Registry) Acquire(ctx context.Context, instanceID string) (realtime.Channel, error) {
	if instanceID == "" {
		return nil, errors.E(errors.CodeChannelConfig, "channel instance id is required")
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, errors.E(errors.CodeChannel, "channel registry is closed")
	}
	if existing, ok := r.entries[instanceID]; ok {
		r.mu.Unlock()
		select {
		case <-existing.ready:
			return existing.channel, existing.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	pending := &entry{ready: make(chan struct{})}
	r.entries[instanceID] = pending
	r.mu.Unlock()

	channel, err := r.connect(ctx, instanceID)
	pending.channel = channel
	pending.err = err
	close(pending.ready)

	if err != nil {
		r.mu.Lock()
		if r.entries[instanceID] == pending {
			delete(r.entries, instanceID)
		}
		r.mu.Unlock()
		return nil, err
	}
	return channel, nil
}

func (r *Registry) connect(ctx context.Context, instanceID string) (realtime.Channel, error) {
	endpoint, err := r.resolve(ctx, instanceID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeChannelConfig,
			fmt.Sprintf("resolve endpoint for channel instance %s", instanceID), err)
	}
	channel, err := r.dial(endpoint)
	if err != nil {
		return nil, errors.Wrap(errors.CodeChannel,
			fmt.Sprintf("dial channel instance %s", instanceID), err)
	}
	return channel, nil
}

// Release evicts the handle for instanceID and tears it down in the
// background. The caller never waits on the teardown.
func (r *Registry) Release(instanceID string) {
	r.mu.Lock()
	evicted, ok := r.entries[instanceID]
	if ok {
		delete(r.entries, instanceID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	go func() {
		<-evicted.ready
		if evicted.channel == nil {
			return
		}
		if err := evicted.channel.Close(); err != nil {
			log.Printf("registry: close channel instance %s: %v", instanceID, err)
		}
	}()
}

// Close evicts every handle and closes each one, waiting for in-flight
// constructions to settle first.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	for instanceID, evicted := range entries {
		<-evicted.ready
		if evicted.channel == nil {
			continue
		}
		if err := evicted.channel.Close(); err != nil {
			log.Printf("registry: close channel instance %s: %v", instanceID, err)
		}
	}
}
