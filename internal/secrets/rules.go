package secrets

// DefaultRules returns the anonymization catalog applied before any pattern
// store write. The classes covered are credential assignments, bearer and
// provider tokens, email addresses, IP literals, private URLs, and private
// key blocks.
func DefaultRules() []Rule {
	return []Rule{
		// Credential assignments: password = "...", api_key: '...', SECRET=...
		{
			ID:          "credential-assignment",
			Description: "Credential assignment",
			Pattern:     `(?i)(?:password|passwd|pwd|secret|token|api[_-]?key|apikey|access[_-]?key|auth)\s*[:=]\s*['"]?[^\s'"]{4,}['"]?`,
			Keywords:    []string{"password", "passwd", "pwd", "secret", "token", "key", "auth"},
			Severity:    "high",
		},

		// Bearer tokens in headers or code.
		{
			ID:          "bearer-token",
			Description: "Bearer token",
			Pattern:     `(?i)bearer\s+[A-Za-z0-9\-._~+/]{16,}=*`,
			Keywords:    []string{"bearer"},
			Severity:    "high",
		},

		// Provider tokens with self-identifying prefixes.
		{
			ID:          "github-token",
			Description: "GitHub token",
			Pattern:     `(?:ghp|gho|ghu|ghs|ghr)_[A-Za-z0-9]{36}`,
			Severity:    "high",
		},
		{
			ID:          "github-fine-grained",
			Description: "GitHub fine-grained personal access token",
			Pattern:     `github_pat_[A-Za-z0-9_]{22,}`,
			Severity:    "high",
		},
		{
			ID:          "aws-access-key-id",
			Description: "AWS Access Key ID",
			Pattern:     `(A3T[A-Z0-9]|AKIA|AGPA|AIDA|AROA|AIPA|ANPA|ANVA|ASIA)[A-Z0-9]{16}`,
			Severity:    "high",
		},

		// Email addresses.
		{
			ID:          "email-address",
			Description: "Email address",
			Pattern:     `[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`,
			Severity:    "medium",
		},

		// IPv4 literals.
		{
			ID:          "ip-literal",
			Description: "IPv4 address literal",
			Pattern:     `\b(?:\d{1,3}\.){3}\d{1,3}\b`,
			Severity:    "medium",
		},

		// Private or internal URLs, including credentials embedded in URLs.
		{
			ID:          "url-credentials",
			Description: "URL with embedded credentials",
			Pattern:     `[a-z][a-z0-9+\-.]*://[^\s/@:]+:[^\s/@]+@[^\s]+`,
			Severity:    "high",
		},
		{
			ID:          "private-url",
			Description: "Private or internal URL",
			Pattern:     `https?://(?:localhost|[^\s/]+\.(?:internal|local|corp|lan)|(?:10|127|192\.168)(?:\.\d{1,3}){2,3})(?::\d+)?[^\s]*`,
			Keywords:    []string{"http"},
			Severity:    "medium",
		},

		// Private key blocks.
		{
			ID:          "private-key",
			Description: "Private key block",
			Pattern:     `-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?:[- ]BLOCK)?-----`,
			Severity:    "high",
		},
	}
}
