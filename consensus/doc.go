// Package consensus reconciles multiple provider responses to the
// same logical task into a single confidence-scored decision.
//
// Three modes are supported:
//   - Majority: confidence is the success ratio
//   - Byzantine: tolerates a configured fraction of faulty
//     participants before degrading confidence to 0.5
//   - Raft: full confidence once a strict majority succeeded
//
// Evaluation is deterministic; the engine invokes it only when it
// collected at least two responses for one task.
package consensus
