// Package domain contains the core entities and value objects of a dropship run.
//
// This package is the innermost layer. It has no dependencies on the ledger
// wire format, the RPC transport, storage or logging; it only describes what a
// distribution is and what can happen to it.
//
// # Entities
//
//   - [Entry]: one normalized (recipient, amount, direction) distribution line
//   - [Chunk]: an ordered group of entries that will become one envelope
//   - [Envelope]: the ordered directives and signer set submitted atomically
//   - [Outcome]: what happened to one envelope submission
//   - [Report]: the aggregate result of a run
//
// # Design Principles
//
// Domain values are:
//   - Immutable after construction (where practical)
//   - Free of infrastructure dependencies
//   - Testable without mocks or external systems
package domain
