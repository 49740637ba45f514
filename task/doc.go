// Package task defines the shared task data model for orchestration:
// requests, responses, and task-type based model selection.
//
// Core types:
//   - Request: an immutable unit of work dispatched to providers
//   - Response: the terminal outcome of one adapter invocation
//   - Type: task classification (code, research, analysis, ...)
//
// Model selection maps task types onto llmkit model tiers:
//
//	model := task.SelectModel(task.Research) // reasoning tier
//	tier := task.TierFor(req)                // honors speed requirement
package task
