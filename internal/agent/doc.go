// Package agent contains the core orchestrator responsible for translating
// natural-language tasks into executed analysis tools. It drives the planner,
// resolves each plan step against the tool registry, keeps per-step status
// bookkeeping, and persists the resulting run record.
package agent
