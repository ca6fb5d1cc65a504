// Package agents implements the workflow capability set.
//
// Each agent wraps one pipeline stage behind the same capability contract:
// take the execution's shared state, return an output to merge back in. The
// coordinator depends only on the Agent interface, never on a concrete
// type, so agents are swappable and mockable. External collaborators
// (analysis engine, suggestion source, PR host) are consumed through
// interfaces defined here and injected at construction.
package agents
