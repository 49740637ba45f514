// Package quorum orchestrates AI task execution across heterogeneous
// providers. A caller builds a task.Request, obtains a strategy
// Assessment (from whatever planner it uses) and hands both to an
// Engine, which dispatches per the assessed approach:
//
//   - single-provider: one call to the top recommendation
//   - parallel: fan-out to a provider pool, consensus over the answers
//   - sequential: a phase pipeline where each phase builds on the
//     successful output of the phases before it
//   - hierarchical: a coordinator plans, workers execute the plan
//
// Providers plug in through the provider.Adapter interface and are
// looked up in a provider.Registry. Multi-provider answers are
// reconciled by the consensus package; results can be persisted
// through memory.Store and spend is bounded by metering.Guard.
//
// Basic use:
//
//	registry := provider.NewRegistry()
//	registry.Register(adapter)
//
//	engine := quorum.NewEngine(registry,
//		quorum.WithConsensusMode(consensus.Majority))
//
//	req := task.NewRequest(task.Code, "refactor the parser")
//	res, err := engine.Execute(ctx, req, plan)
package quorum
