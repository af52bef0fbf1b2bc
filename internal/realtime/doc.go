// Package realtime defines the keyed-children realtime channel contract.
//
// A channel is a live-delivery transport, not a system of record: producers
// push uniquely-keyed children into a namespace, subscribers receive the full
// namespace snapshot on every change, and consumers delete children they have
// handled. Any backing store offering create-with-generated-key,
// subscribe-with-snapshot, and delete-by-key can implement it.
package realtime
