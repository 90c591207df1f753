package secrets

// DefaultRules covers the credentials that show up in support tickets and
// deployment output for the managed app: Supabase, Stripe, PayPal, Groq,
// OpenAI, Hetzner, Telegram and Resend keys, database URLs and private keys.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:          "private-key",
			Description: "PEM private key block",
			Pattern:     `-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?:[- ]BLOCK)?-----[\s\S]*?(?:-----END [A-Z ]*PRIVATE KEY(?:[- ]BLOCK)?-----|\z)`,
			Severity:    "high",
		},
		{
			ID:          "supabase-jwt",
			Description: "Supabase anon or service role JWT",
			Pattern:     `eyJ[A-Za-z0-9_-]{10,}\.eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`,
			Severity:    "high",
		},
		{
			ID:          "supabase-access-token",
			Description: "Supabase personal access token",
			Pattern:     `sbp_[a-f0-9]{40}`,
			Severity:    "high",
		},
		{
			ID:          "stripe-key",
			Description: "Stripe secret or restricted key",
			Pattern:     `(?:sk|rk)_(?:live|test)_[A-Za-z0-9]{16,}`,
			Severity:    "high",
		},
		{
			ID:          "stripe-webhook-secret",
			Description: "Stripe webhook signing secret",
			Pattern:     `whsec_[A-Za-z0-9]{24,}`,
			Severity:    "high",
		},
		{
			ID:          "groq-api-key",
			Description: "Groq API key",
			Pattern:     `gsk_[A-Za-z0-9]{32,}`,
			Severity:    "high",
		},
		{
			ID:          "openai-api-key",
			Description: "OpenAI API key",
			Pattern:     `sk-(?:proj-|svcacct-)?[A-Za-z0-9_-]{20,}`,
			Severity:    "high",
		},
		{
			ID:          "resend-api-key",
			Description: "Resend API key",
			Pattern:     `re_[A-Za-z0-9]{8,}_[A-Za-z0-9]{16,}`,
			Severity:    "medium",
		},
		{
			ID:          "telegram-bot-token",
			Description: "Telegram bot token",
			Pattern:     `\b[0-9]{8,10}:AA[A-Za-z0-9_-]{33}\b`,
			Severity:    "high",
		},
		{
			ID:          "hetzner-api-token",
			Description: "Hetzner Cloud API token",
			Pattern:     `(?i)hetzner[A-Z0-9_]*(?:token|key)\s*[:=]\s*['"]?([A-Za-z0-9]{64})`,
			Keywords:    []string{"hetzner"},
			Severity:    "high",
		},
		{
			ID:          "paypal-client-secret",
			Description: "PayPal client secret",
			Pattern:     `(?i)paypal[A-Z0-9_]*secret\s*[:=]\s*['"]?([A-Za-z0-9_-]{32,})`,
			Keywords:    []string{"paypal"},
			Severity:    "high",
		},
		{
			ID:          "aws-access-key-id",
			Description: "AWS access key ID",
			Pattern:     `\b(?:A3T[A-Z0-9]|AKIA|AGPA|AIDA|AROA|AIPA|ANPA|ANVA|ASIA)[A-Z0-9]{16}\b`,
			Severity:    "high",
		},
		{
			ID:          "github-token",
			Description: "GitHub token",
			Pattern:     `(?:ghp|gho|ghu|ghs|ghr)_[A-Za-z0-9]{36}|github_pat_[A-Za-z0-9_]{22,}`,
			Severity:    "high",
		},
		{
			ID:          "database-url-password",
			Description: "Password embedded in a database URL",
			Pattern:     `(?i)\b(?:postgres(?:ql)?|mysql|redis|rediss|mongodb(?:\+srv)?)://[^:/\s@]+:([^@\s]+)@`,
			Severity:    "high",
		},
		{
			ID:          "bearer-token",
			Description: "HTTP bearer token",
			Pattern:     `(?i)\bbearer\s+([A-Za-z0-9._~+/-]{20,}=*)`,
			Keywords:    []string{"bearer"},
			Severity:    "medium",
		},
		{
			ID:          "env-assignment",
			Description: "Secret-looking env assignment",
			Pattern:     `\b[A-Z][A-Z0-9_]*(?:SECRET|PASSWORD|TOKEN|API_KEY|PRIVATE_KEY|ROLE_KEY)[A-Z0-9_]*\s*[=:]\s*['"]?([^\s'"]{8,})`,
			Severity:    "medium",
		},
	}
}
