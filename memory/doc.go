// Package memory persists completed orchestration results across
// sessions, keyed by (namespace, sessionID). The engine stores a
// result only when the request asks for it via metadata; retrieval
// is keyed the same way.
package memory
