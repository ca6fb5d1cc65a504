package safety

import "regexp"

// dangerousConstruct pairs a detection pattern with the name reported in the
// rejection reason.
type dangerousConstruct struct {
	name    string
	pattern *regexp.Regexp
}

// dangerousConstructs lists code shapes a generated fix may never introduce:
// dynamic code evaluation, shell invocation, and the disabling of safety
// checks. The list applies regardless of suggestion confidence.
var dangerousConstructs = []dangerousConstruct{
	{
		name:    "dynamic code evaluation",
		pattern: regexp.MustCompile(`(?i)\beval\s*\(|\bnew\s+Function\s*\(|\b__import__\s*\(|\bexec\s*\(`),
	},
	{
		name:    "shell invocation",
		pattern: regexp.MustCompile(`\bexec\.Command\b|\bos/exec\b|\bos\.system\s*\(|\bsubprocess\.|\bchild_process\b|\bpopen\s*\(|\bsystem\s*\(|\b(?:sh|bash)\s+-c\b`),
	},
	{
		name:    "disabled safety check",
		pattern: regexp.MustCompile(`#\s*nosec|//\s*nolint|eslint-disable|#\s*noqa|#\s*type:\s*ignore`),
	},
	{
		name:    "process replacement",
		pattern: regexp.MustCompile(`\bsyscall\.Exec\b|\bos\.execve?\s*\(`),
	},
}

// findDangerousConstruct returns the first dangerous construct present in
// the suggested code.
func findDangerousConstruct(code string) (string, bool) {
	for _, dc := range dangerousConstructs {
		if dc.pattern.MatchString(code) {
			return dc.name, true
		}
	}
	return "", false
}
