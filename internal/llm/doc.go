// Package llm defines the provider-neutral contract between the planner and
// external language models: the planning request, the structured plan that
// comes back, and the Client interface concrete providers implement. The
// OpenAI-compatible implementation lives in internal/llm/openai.
package llm
