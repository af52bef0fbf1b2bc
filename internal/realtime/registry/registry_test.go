package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/osetale/poslive/internal/errors"
	"github.com/osetale/poslive/internal/realtime"
)

type fakeChannel struct {
	endpoint string
	closed   atomic.Bool
}

func (f *fakeChannel) Push(context.Context, string, json.RawMessage) (string, error) {
	return "", nil
}

func (f *fakeChannel) Subscribe(context.Context, string) (*realtime.Subscription, error) {
	return nil, nil
}

func (f *fakeChannel) Delete(context.Context, string, string) error { return nil }

func (f *fakeChannel) Close() error {
	f.closed.Store(true)
	return nil
}

func staticResolver(t *testing.T) EndpointResolver {
	t.Helper()
	return func(_ context.Context, instanceID string) (string, error) {
		return "ws://channel.test/" + instanceID, nil
	}
}

func TestAcquireCachesHandle(t *testing.T) {
	var dials atomic.Int64
	r := New(staticResolver(t), func(endpoint string) (realtime.Channel, error) {
		dials.Add(1)
		return &fakeChannel{endpoint: endpoint}, nil
	})
	defer r.Close()
	ctx := context.Background()

	first, err := r.Acquire(ctx, "instance-a")
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	second, err := r.Acquire(ctx, "instance-a")
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	if first != second {
		t.Fatal("repeated Acquire should return the same handle")
	}
	if got := dials.Load(); got != 1 {
		t.Fatalf("dial count = %d, want 1", got)
	}
}

func TestAcquireSeparatesInstances(t *testing.T) {
	r := New(staticResolver(t), func(endpoint string) (realtime.Channel, error) {
		return &fakeChannel{endpoint: endpoint}, nil
	})
	defer r.Close()
	ctx := context.Background()

	a, err := r.Acquire(ctx, "instance-a")
	if err != nil {
		t.Fatalf("Acquire(instance-a) error: %v", err)
	}
	b, err := r.Acquire(ctx, "instance-b")
	if err != nil {
		t.Fatalf("Acquire(instance-b) error: %v", err)
	}
	if a == b {
		t.Fatal("different instances should get different handles")
	}
	if a.(*fakeChannel).endpoint != "ws://channel.test/instance-a" {
		t.Errorf("instance-a endpoint = %q", a.(*fakeChannel).endpoint)
	}
}

func TestConcurrentAcquireDialsOnce(t *testing.T) {
	var dials atomic.Int64
	started := make(chan struct{})
	r := New(staticResolver(t), func(endpoint string) (realtime.Channel, error) {
		dials.Add(1)
		<-started
		return &fakeChannel{endpoint: endpoint}, nil
	})
	defer r.Close()
	ctx := context.Background()

	const workers = 16
	handles := make([]realtime.Channel, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handle, err := r.Acquire(ctx, "instance-a")
			if err != nil {
				t.Errorf("Acquire() error: %v", err)
				return
			}
			handles[i] = handle
		}(i)
	}
	close(started)
	wg.Wait()

	if got := dials.Load(); got != 1 {
		t.Fatalf("dial count = %d, want 1", got)
	}
	for i := 1; i < workers; i++ {
		if handles[i] != handles[0] {
			t.Fatal("concurrent Acquire should share one handle")
		}
	}
}

func TestResolveFailureIsConfigError(t *testing.T) {
	r := New(func(context.Context, string) (string, error) {
		return "", fmt.Errorf("no route")
	}, func(string) (realtime.Channel, error) {
		t.Fatal("dial should not run when resolve fails")
		return nil, nil
	})
	defer r.Close()

	_, err := r.Acquire(context.Background(), "instance-a")
	if !errors.IsCode(err, errors.CodeChannelConfig) {
		t.Fatalf("Acquire() error = %v, want code %s", err, errors.CodeChannelConfig)
	}
}

func TestFailedDialIsNotCached(t *testing.T) {
	var dials atomic.Int64
	r := New(staticResolver(t), func(endpoint string) (realtime.Channel, error) {
		if dials.Add(1) == 1 {
			return nil, fmt.Errorf("connection refused")
		}
		return &fakeChannel{endpoint: endpoint}, nil
	})
	defer r.Close()
	ctx := context.Background()

	if _, err := r.Acquire(ctx, "instance-a"); !errors.IsCode(err, errors.CodeChannel) {
		t.Fatalf("first Acquire() error = %v, want code %s", err, errors.CodeChannel)
	}
	if _, err := r.Acquire(ctx, "instance-a"); err != nil {
		t.Fatalf("second Acquire() should retry and succeed, got %v", err)
	}
	if got := dials.Load(); got != 2 {
		t.Fatalf("dial count = %d, want 2", got)
	}
}

func TestReleaseClosesHandleAndForcesRedial(t *testing.T) {
	var dials atomic.Int64
	r := New(staticResolver(t), func(endpoint string) (realtime.Channel, error) {
		dials.Add(1)
		return &fakeChannel{endpoint: endpoint}, nil
	})
	defer r.Close()
	ctx := context.Background()

	first, err := r.Acquire(ctx, "instance-a")
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	r.Release("instance-a")

	second, err := r.Acquire(ctx, "instance-a")
	if err != nil {
		t.Fatalf("Acquire() after Release error: %v", err)
	}
	if first == second {
		t.Fatal("Acquire after Release should dial a fresh handle")
	}
	if got := dials.Load(); got != 2 {
		t.Fatalf("dial count = %d, want 2", got)
	}
}

func TestReleaseUnknownInstanceIsNoOp(t *testing.T) {
	r := New(staticResolver(t), func(endpoint string) (realtime.Channel, error) {
		return &fakeChannel{endpoint: endpoint}, nil
	})
	defer r.Close()

	r.Release("never-acquired")
}

func TestCloseClosesAllHandles(t *testing.T) {
	r := New(staticResolver(t), func(endpoint string) (realtime.Channel, error) {
		return &fakeChannel{endpoint: endpoint}, nil
	})
	ctx := context.Background()

	a, err := r.Acquire(ctx, "instance-a")
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	b, err := r.Acquire(ctx, "instance-b")
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}

	r.Close()

	if !a.(*fakeChannel).closed.Load() || !b.(*fakeChannel).closed.Load() {
		t.Fatal("Close() should close every cached handle")
	}
	if _, err := r.Acquire(ctx, "instance-a"); err == nil {
		t.Fatal("Acquire() after Close should fail")
	}
}
