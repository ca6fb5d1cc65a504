// Package coordinator drives workflow executions through their steps.
//
// A workflow is a named template: an ordered list of step names, each
// resolved to a registered agent. The coordinator owns the execution
// state machine (pending, running, completed, failed, cancelled,
// partial), classifies step errors to decide between retry, skip, and
// abort, and persists finished executions to history.
package coordinator
