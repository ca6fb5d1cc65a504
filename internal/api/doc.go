// Package api provides the HTTP API for fixd: health and metrics
// endpoints, execution history queries, workflow triggering and
// scheduling, and a scrub preview for operators.
package api
