// Package provider defines the adapter contract for AI task-execution
// providers and the registry that owns live adapter instances.
//
// Three adapter shapes converge on the same contract:
//   - SubprocessAdapter: shells out to a provider CLI binary
//   - APIAdapter: calls a provider's HTTP API
//   - MultiAgentAdapter: routes across a pool of in-process agents
//
// The contract's load-bearing rule is that Execute never errors: any
// internal failure, timeout or panic becomes a StatusFailure response,
// so the engine can dispatch to many adapters concurrently without
// special-casing exceptions per provider.
//
// Example:
//
//	reg := provider.NewRegistry()
//	reg.RegisterFactory("claude", func() provider.Adapter {
//	    return provider.NewSubprocessAdapter()
//	})
//	adapter, err := reg.Create(ctx, "claude", provider.Config{BinaryPath: "claude"})
package provider
