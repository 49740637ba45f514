// Package metering gates dispatch on resource limits. The engine
// consults a Guard before any provider call; a violated limit aborts
// the orchestration with a LimitError naming the specific limit.
package metering
