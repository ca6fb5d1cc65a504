// Package secrets detects and redacts sensitive substrings before content
// leaves the process or reaches persistent storage.
//
// The pattern store uses the scrubber to anonymize every payload prior to a
// write; the HTTP API exposes a preview endpoint backed by the same rules.
// Redaction is irreversible: findings never carry the matched text, only
// positions and the rule that fired.
package secrets
