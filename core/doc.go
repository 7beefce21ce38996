// Package core provides the foundational domain types, interfaces and execution
// contexts used by AgencyKit. It defines the core abstractions for:
//
//   - Content blocks (typed text / image / file units carried between agents and tools)
//   - Turns and the append-only Thread (the durable audit trail of one run)
//   - RunContext / ToolContext (scoped execution & tool sandboxing)
//   - The structured error taxonomy shared by orchestration and tools
//   - Pluggable interfaces for session resources and artifact persistence
//
// The package intentionally keeps implementation concerns (persistence,
// orchestration, concrete tools) out of scope, exposing small interfaces to
// enable custom backends and extensions.
package core
