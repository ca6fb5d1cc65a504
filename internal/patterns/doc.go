// Package patterns implements the shared pattern store: a low-latency
// key-value store holding learned patterns, fix outcomes, and workflow
// analytics.
//
// The store is shared by every agent and every concurrent workflow
// execution. Mutating operations are atomic per key; cross-key operations
// carry no transactional guarantee. Payloads are anonymized before the
// first write, and a payload whose sensitive content cannot be safely
// redacted is rejected outright.
//
// Two implementations exist: BadgerStore persists to an embedded Badger
// database, MemoryStore backs tests and degraded mode. Both satisfy Store.
package patterns
