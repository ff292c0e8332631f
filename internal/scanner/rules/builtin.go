package rules

// NewBuiltinRuleSet returns the frozen built-in rule bundle (spec.md §4.3:
// "The built-in rule set is frozen at build time"). Rules are expressed in
// Go rather than loaded from disk so the bundle genuinely cannot drift at
// runtime; LoadBuiltinFromDir remains available for operators who want to
// layer an alternate bundle in test environments.
func NewBuiltinRuleSet() *RuleSet {
	rs := NewRuleSet()
	for _, r := range builtinRules {
		rs.Add(r)
	}
	return rs
}

var builtinRules = []Rule{
	{
		ID:          "SEC-JBR-001",
		Category:    "jailbreak",
		Severity:    "critical",
		Confidence:  0.9,
		MatcherType: "regex",
		Pattern:     `(?i)ignore\s+(all\s+)?(previous|prior|above)\s+instructions`,
		Description: "instructs the model to disregard prior instructions",
	},
	{
		ID:          "SEC-JBR-002",
		Category:    "jailbreak",
		Severity:    "critical",
		Confidence:  0.85,
		MatcherType: "regex",
		Pattern:     `(?i)\byou\s+are\s+now\s+(DAN|in\s+developer\s+mode|unrestricted)\b`,
		Description: "attempts a known persona-override jailbreak",
	},
	{
		ID:          "SEC-PRV-001",
		Category:    "priv-escalation",
		Severity:    "critical",
		Confidence:  0.8,
		MatcherType: "regex",
		Pattern:     `(?i)\bsudo\s+rm\s+-rf\s+/`,
		Description: "instructs destructive root-level filesystem removal",
	},
	{
		ID:          "SEC-PRV-002",
		Category:    "priv-escalation",
		Severity:    "high",
		Confidence:  0.7,
		MatcherType: "regex",
		Pattern:     `(?i)\bchmod\s+777\b|\bdisable\s+(selinux|firewall|apparmor)\b`,
		Description: "weakens host security controls",
	},
	{
		ID:          "SEC-EXF-001",
		Category:    "exfiltration",
		Severity:    "high",
		Confidence:  0.75,
		MatcherType: "regex",
		Pattern:     `(?i)\bcurl\s+[^\n]*\s(-X\s*POST|--data)[^\n]*\b(env|\.ssh|\.aws|credentials)\b`,
		Description: "exfiltrates sensitive local files or environment to a remote endpoint",
		Keywords:    []string{"curl", "wget", "http"},
	},
	{
		ID:          "SEC-EXF-002",
		Category:    "exfiltration",
		Severity:    "medium",
		Confidence:  0.5,
		MatcherType: "entropy",
		Description: "high-entropy encoded payload embedded in skill body",
	},
	{
		ID:          "SEC-PATH-001",
		Category:    "sensitive-path",
		Severity:    "high",
		Confidence:  0.7,
		MatcherType: "regex",
		Pattern:     `(?i)(~|/home/[\w-]+|\$HOME)/\.(ssh|aws|gnupg|netrc)\b`,
		Description: "references a sensitive credential directory",
	},
	{
		ID:          "SEC-LEAK-001",
		Category:    "prompt-leak",
		Severity:    "medium",
		Confidence:  0.6,
		MatcherType: "regex",
		Pattern:     `(?i)\b(reveal|print|output|dump)\s+(your\s+)?(system\s+prompt|instructions)\b`,
		Description: "attempts to exfiltrate the system prompt",
	},
	{
		ID:          "SEC-SOC-001",
		Category:    "social-engineering",
		Severity:    "medium",
		Confidence:  0.55,
		MatcherType: "regex",
		Pattern:     `(?i)\b(this\s+is\s+urgent|act\s+immediately|do\s+not\s+verify|bypass\s+approval)\b`,
		Description: "uses urgency or authority framing to discourage verification",
	},
	{
		ID:          "SEC-CODE-001",
		Category:    "suspicious-code",
		Severity:    "high",
		Confidence:  0.65,
		MatcherType: "regex",
		Pattern:     `(?i)\beval\s*\(\s*(base64|atob)\b`,
		Description: "decodes and evaluates an encoded payload at runtime",
	},
	{
		ID:          "SEC-URL-001",
		Category:    "url-reputation",
		Severity:    "low",
		Confidence:  0.4,
		MatcherType: "regex",
		Pattern:     `https?://[\w.-]+\.(tk|ml|ga|cf|gq)\b`,
		Description: "links to a domain on a free TLD frequently abused for phishing",
	},
	{
		ID:          "SEC-AID-001",
		Category:    "ai-defense",
		Severity:    "medium",
		Confidence:  0.5,
		MatcherType: "regex",
		Pattern:     `(?i)\bdisable\s+(content\s+)?(safety|moderation|guardrails)\b`,
		Description: "instructs disabling AI safety guardrails",
	},
}
