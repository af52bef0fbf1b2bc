// Package domain defines the POS transaction entity and its commit rules.
//
// The ledger row is the canonical transaction; realtime copies are ephemeral
// projections and never carry authority. Validation here runs before any
// write so a rejected request has no side effects.
package domain
