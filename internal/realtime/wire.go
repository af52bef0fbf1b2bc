package realtime

import "encoding/json"

// Frame types exchanged between channel clients and the channel service.
const (
	FramePush      = "channel.push"
	FramePushed    = "channel.pushed"
	FrameSubscribe = "channel.subscribe"
	FrameSnapshot  = "channel.snapshot"
	FrameDelete    = "channel.delete"
	FrameDeleted   = "channel.deleted"
	FrameError     = "channel.error"
)

// Frame is one websocket message on the channel wire.
type Frame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// PushPayload asks the service to store a child under a fresh key.
type PushPayload struct {
	Namespace string          `json:"namespace"`
	Child     json.RawMessage `json:"child"`
}

// PushedPayload acknowledges a push with the assigned key.
type PushedPayload struct {
	Key string `json:"key"`
}

// SubscribePayload registers a snapshot listener on a namespace.
type SubscribePayload struct {
	Namespace string `json:"namespace"`
}

// SnapshotPayload carries the full child set of one namespace.
type SnapshotPayload struct {
	Namespace string                     `json:"namespace"`
	Children  map[string]json.RawMessage `json:"children"`
}

// DeletePayload removes one child by key.
type DeletePayload struct {
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
}

// DeletedPayload acknowledges a delete.
type DeletedPayload struct {
	Key string `json:"key"`
}

// ErrorPayload reports a wire-level failure.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
