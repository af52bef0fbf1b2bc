// Package wsclient implements the realtime channel contract over websocket.
package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/net/websocket"

	"github.com/osetale/poslive/internal/platform/id"
	"github.com/osetale/poslive/internal/realtime"
)

// snapshotBuffer bounds the per-subscription feed. Snapshots carry full
// namespace state, so conflating to the newest entries under a slow consumer
// loses nothing.
const snapshotBuffer = 16

var errClientClosed = errors.New("channel client is closed")

// Client is a websocket-backed channel handle.
type Client struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	encoder *json.Encoder

	mu      sync.Mutex
	pending map[string]chan realtime.Frame
	subs    map[string]chan realtime.Snapshot
	readErr error
	closed  bool

	done chan struct{}
}

// Dial connects to a channel service endpoint (ws:// or wss:// URL).
func Dial(endpoint string) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("channel endpoint is required")
	}
	origin, err := originFor(endpoint)
	if err != nil {
		return nil, err
	}

	conn, err := websocket.Dial(endpoint, "", origin)
	if err != nil {
		return nil, fmt.Errorf("dial channel endpoint %s: %w", endpoint, err)
	}

	client := &Client{
		conn:    conn,
		encoder: json.NewEncoder(conn),
		pending: make(map[string]chan realtime.Frame),
		subs:    make(map[string]chan realtime.Snapshot),
		done:    make(chan struct{}),
	}
	go client.readLoop()
	return client, nil
}

func originFor(endpoint string) (string, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse channel endpoint: %w", err)
	}
	scheme := "http"
	if parsed.Scheme == "wss" {
		scheme = "https"
	}
	return scheme + "://" + parsed.Host + "/", nil
}

// Push stores child in namespace under a server-assigned key.
func (c *Client) Push(ctx context.Context, namespace string, child json.RawMessage) (string, error) {
	payload, err := json.Marshal(realtime.PushPayload{Namespace: namespace, Child: child})
	if err != nil {
		return "", fmt.Errorf("encode push payload: %w", err)
	}
	response, err := c.roundTrip(ctx, realtime.FramePush, payload)
	if err != nil {
		return "", err
	}
	var pushed realtime.PushedPayload
	if err := json.Unmarshal(response.Payload, &pushed); err != nil {
		return "", fmt.Errorf("decode push ack: %w", err)
	}
	return pushed.Key, nil
}

// Delete removes one child by key.
func (c *Client) Delete(ctx context.Context, namespace string, key string) error {
	payload, err := json.Marshal(realtime.DeletePayload{Namespace: namespace, Key: key})
	if err != nil {
		return fmt.Errorf("encode delete payload: %w", err)
	}
	if _, err := c.roundTrip(ctx, realtime.FrameDelete, payload); err != nil {
		return err
	}
	return nil
}

// Subscribe starts the snapshot feed for namespace.
func (c *Client) Subscribe(ctx context.Context, namespace string) (*realtime.Subscription, error) {
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		return nil, fmt.Errorf("namespace is required")
	}

	feed := make(chan realtime.Snapshot, snapshotBuffer)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errClientClosed
	}
	if _, exists := c.subs[namespace]; exists {
		c.mu.Unlock()
		return nil, fmt.Errorf("namespace %s already has a subscription", namespace)
	}
	c.subs[namespace] = feed
	c.mu.Unlock()

	payload, err := json.Marshal(realtime.SubscribePayload{Namespace: namespace})
	if err != nil {
		c.dropSubscription(namespace)
		return nil, fmt.Errorf("encode subscribe payload: %w", err)
	}
	if err := c.writeFrame(realtime.Frame{Type: realtime.FrameSubscribe, Payload: payload}); err != nil {
		c.dropSubscription(namespace)
		return nil, err
	}

	errFn := func() error {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.readErr
	}
	closeFn := func() { c.dropSubscription(namespace) }
	return realtime.NewSubscription(feed, errFn, closeFn), nil
}

// Close tears down the connection and ends all subscriptions.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.conn.Close()
}

func (c *Client) dropSubscription(namespace string) {
	// Closing under the lock serializes with deliverSnapshot, which only
	// sends while holding the same lock.
	c.mu.Lock()
	defer c.mu.Unlock()
	if feed, exists := c.subs[namespace]; exists {
		delete(c.subs, namespace)
		close(feed)
	}
}

func (c *Client) roundTrip(ctx context.Context, frameType string, payload json.RawMessage) (realtime.Frame, error) {
	requestID, err := id.NewID()
	if err != nil {
		return realtime.Frame{}, fmt.Errorf("generate request id: %w", err)
	}

	waiter := make(chan realtime.Frame, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return realtime.Frame{}, errClientClosed
	}
	c.pending[requestID] = waiter
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, requestID)
		c.mu.Unlock()
	}()

	if err := c.writeFrame(realtime.Frame{Type: frameType, RequestID: requestID, Payload: payload}); err != nil {
		return realtime.Frame{}, err
	}

	select {
	case response, ok := <-waiter:
		if !ok {
			return realtime.Frame{}, c.closedErr()
		}
		if response.Type == realtime.FrameError {
			var wireErr realtime.ErrorPayload
			if err := json.Unmarshal(response.Payload, &wireErr); err != nil {
				return realtime.Frame{}, fmt.Errorf("channel request failed")
			}
			return realtime.Frame{}, fmt.Errorf("channel request failed: %s: %s", wireErr.Code, wireErr.Message)
		}
		return response, nil
	case <-ctx.Done():
		return realtime.Frame{}, ctx.Err()
	case <-c.done:
		return realtime.Frame{}, c.closedErr()
	}
}

func (c *Client) closedErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return c.readErr
	}
	return errClientClosed
}

func (c *Client) writeFrame(frame realtime.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.encoder.Encode(frame); err != nil {
		return fmt.Errorf("write channel frame: %w", err)
	}
	return nil
}

func (c *Client) readLoop() {
	decoder := json.NewDecoder(c.conn)
	var loopErr error
	for {
		var frame realtime.Frame
		if err := decoder.Decode(&frame); err != nil {
			loopErr = err
			break
		}

		if frame.RequestID != "" {
			c.mu.Lock()
			waiter, exists := c.pending[frame.RequestID]
			c.mu.Unlock()
			if exists {
				waiter <- frame
			}
			continue
		}

		if frame.Type != realtime.FrameSnapshot {
			continue
		}
		var payload realtime.SnapshotPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			continue
		}
		c.deliverSnapshot(realtime.Snapshot{Namespace: payload.Namespace, Children: payload.Children})
	}

	c.mu.Lock()
	if c.readErr == nil {
		c.readErr = loopErr
	}
	c.closed = true
	pending := c.pending
	subs := c.subs
	c.pending = make(map[string]chan realtime.Frame)
	c.subs = make(map[string]chan realtime.Snapshot)
	c.mu.Unlock()

	close(c.done)
	for _, waiter := range pending {
		close(waiter)
	}
	for _, feed := range subs {
		close(feed)
	}
	_ = c.conn.Close()
}

// deliverSnapshot conflates when the consumer lags: the oldest queued
// snapshot is discarded so delivery never blocks the read loop, which still
// has to route push/delete acks for this connection.
func (c *Client) deliverSnapshot(snapshot realtime.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	feed, exists := c.subs[snapshot.Namespace]
	if !exists {
		return
	}

	for {
		select {
		case feed <- snapshot:
			return
		default:
		}
		select {
		case <-feed:
		default:
		}
	}
}
