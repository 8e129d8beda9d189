// Package snapshot persists the in-memory state of the engine: resting
// orders, live envelopes, id counters and last prices, tagged with the
// operation log sequence they reflect.
//
// A snapshot plus the log records after its Seq rebuilds the state.
// Balances are not part of it; they live in their own store.
package snapshot
