package realtime

import (
	"encoding/json"
	"fmt"
	"testing"
)

func TestOrderedKeysSortInPushOrder(t *testing.T) {
	snapshot := Snapshot{
		Namespace: "transactions",
		Children: map[string]json.RawMessage{
			"000000000010-cccccccc": json.RawMessage(`{}`),
			"000000000002-bbbbbbbb": json.RawMessage(`{}`),
			"000000000001-aaaaaaaa": json.RawMessage(`{}`),
		},
	}

	keys := snapshot.OrderedKeys()
	want := []string{"000000000001-aaaaaaaa", "000000000002-bbbbbbbb", "000000000010-cccccccc"}
	if len(keys) != len(want) {
		t.Fatalf("got %d keys, want %d", len(keys), len(want))
	}
	for i, key := range keys {
		if key != want[i] {
			t.Fatalf("keys[%d] = %q, want %q", i, key, want[i])
		}
	}
}

func TestOrderedKeysEmptySnapshot(t *testing.T) {
	if keys := (Snapshot{}).OrderedKeys(); len(keys) != 0 {
		t.Fatalf("empty snapshot returned keys %v", keys)
	}
}

func TestSubscriptionLifecycle(t *testing.T) {
	feed := make(chan Snapshot, 1)
	closed := false
	sub := NewSubscription(feed, func() error { return fmt.Errorf("feed broke") }, func() { closed = true })

	feed <- Snapshot{Namespace: "transactions"}
	snapshot := <-sub.Snapshots()
	if snapshot.Namespace != "transactions" {
		t.Fatalf("namespace = %q", snapshot.Namespace)
	}

	sub.Close()
	if !closed {
		t.Fatal("Close() should invoke the close hook")
	}
	if sub.Err() == nil {
		t.Fatal("Err() should surface the feed error")
	}
}

func TestNilSubscriptionIsSafe(t *testing.T) {
	var sub *Subscription
	if sub.Snapshots() != nil {
		t.Fatal("nil subscription should have nil feed")
	}
	if sub.Err() != nil {
		t.Fatal("nil subscription should have nil error")
	}
	sub.Close()
}
