// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - KBStore: Partitioned documents, metadata and clusters
//   - KnowledgeBaseStore: Knowledge base registry and per-principal defaults
//   - SeedStore: Build idea seeds and generation markers
//   - ConfigStore: Application configuration
//   - PromptStore: Prompt templates for each LLM task
//
// # Optional Interfaces
//
// These can be nil and the application degrades gracefully:
//
//   - LLMService: Without it, documents stop at the clustered stage and
//     synthesis reports ErrLLMUnavailable.
//   - Telemetry: Without it, stage counters and spans are dropped.
//   - LLMProbe: Without it, provider settings are saved unchecked.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
