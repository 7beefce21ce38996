// Package model defines the provider-agnostic abstractions for driving
// language / reasoning models inside AgencyKit.
//
// Core goals:
//   - Normalize one reasoning step behind a single interface (Model.Decide)
//   - Unify tool / function call representation (ToolDefinition, ToolCallRequest)
//   - Surface agent routing uniformly (HandoffRequest) regardless of how the
//     provider expresses it on the wire
//   - Facilitate deterministic scripting for tests (MockModel)
//
// Providers (e.g. OpenAI, Anthropic) implement the Model interface from this
// package so higher layers (agents, the runner) remain decoupled from vendor
// SDKs.
package model
