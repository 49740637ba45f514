// Package prompt loads and renders system-prompt templates for
// providers. Templates are plain text files named after task types;
// project-local files override the embedded defaults.
//
// Example usage:
//
//	loader := prompt.NewLoader(".")
//	systemPrompt, err := loader.Load("research")
package prompt
