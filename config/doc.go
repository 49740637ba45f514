// Package config provides hierarchical configuration for the engine.
//
// Resolution order (later wins):
//  1. Built-in defaults
//  2. Global config: ~/.config/quorum/config.yaml
//  3. Local config: .quorum.yaml in the project directory
//  4. QUORUM_* environment variables
package config
