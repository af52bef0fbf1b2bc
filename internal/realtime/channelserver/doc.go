// Package channelserver hosts the realtime channel store service.
//
// It serves the channel wire contract over websocket: keyed children grouped
// by namespace, server-assigned push keys that sort in push order, and a full
// namespace snapshot broadcast to every subscriber after each change.
// Children persist in a bbolt file so unconsumed records survive restarts.
package channelserver
