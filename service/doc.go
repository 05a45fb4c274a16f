// Package service is the orchestration layer: it merges operator
// requirements, allocates workspaces through the domain core, and
// threads every lifecycle step through the trace journal and the
// allocation ledger so leaks and unsafe frees are observable after
// the fact.
package service
