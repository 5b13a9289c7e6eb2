// Package ports defines the interfaces (ports) that connect the application
// layer to infrastructure adapters.
//
// Ports are the boundaries between the distribution pipeline and the outside
// world. They state what the pipeline needs from external systems without
// specifying how those needs are fulfilled.
//
// # Port Interfaces
//
//   - [Ledger]: account lookups, submission, status and sequencing tokens
//   - [Compiler]: turns an envelope into the exact message signers sign
//   - [AddressDeriver]: derives holding, pool and program accounts
//   - [RecipientSource]: loads the recipient snapshot for a run
//   - [ReportRepository]: persists run reports
//   - [ReportNotifier]: announces finished runs to an external service
//   - [Logger]: structured logging abstraction
//
// # Usage
//
// The application layer (internal/app) depends only on these interfaces.
// Infrastructure adapters (internal/adapters) implement them with concrete
// implementations (Solana JSON-RPC, Postgres, files, zerolog, Prometheus).
package ports
