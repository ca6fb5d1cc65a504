// Package publish pushes applied fixes to a remote and opens pull
// requests for them on GitHub.
package publish
