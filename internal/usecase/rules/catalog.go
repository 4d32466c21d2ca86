package rules

import (
	"regexp"
	"strings"

	"github.com/sentinelci/pr-sentinel/internal/domain"
)

// Rule is one entry in the static catalog. Match inspects a single
// added line and returns an optional detail string used to specialize
// the title (for example which secret type or weak algorithm matched).
type Rule struct {
	ID          string
	Severity    string
	Category    string
	Title       string
	Description string
	Suggestion  string
	Match       func(code string) (detail string, ok bool)
}

// title specializes the rule title with the match detail when the
// title carries a placeholder.
func (r Rule) title(detail string) string {
	if detail == "" || !strings.Contains(r.Title, "%s") {
		return r.Title
	}
	return strings.Replace(r.Title, "%s", detail, 1)
}

func matchPattern(pattern string) func(string) (string, bool) {
	re := regexp.MustCompile(pattern)
	return func(code string) (string, bool) {
		return "", re.MatchString(code)
	}
}

// matchAny returns the label of the first matching pattern.
func matchAny(pairs ...labeledPattern) func(string) (string, bool) {
	return func(code string) (string, bool) {
		for _, p := range pairs {
			if p.re.MatchString(code) {
				return p.label, true
			}
		}
		return "", false
	}
}

type labeledPattern struct {
	re    *regexp.Regexp
	label string
}

func labeled(pattern, label string) labeledPattern {
	return labeledPattern{re: regexp.MustCompile(pattern), label: label}
}

var (
	magicNumberPattern = regexp.MustCompile(`(?:^|[^\w.])(\d{2,})\b`)
	constantAssignment = regexp.MustCompile(`^[A-Z_]+\s*=`)

	riskyCallPatterns = []labeledPattern{
		labeled(`requests\.(get|post)`, "HTTP request"),
		labeled(`open\s*\(`, "file operation"),
		labeled(`json\.loads?`, "JSON parsing"),
		labeled(`\b(?:int|float)\(`, "type conversion"),
	}
)

// Catalog is the full static rule set. The enabled-rule set filters it;
// the order here determines candidate order within a line.
var Catalog = []Rule{
	{
		ID:          "no_eval",
		Severity:    domain.SeverityCritical,
		Category:    domain.CategorySecurity,
		Title:       "Dangerous eval() usage detected",
		Description: "eval() can execute arbitrary code and poses a security risk",
		Suggestion:  "Avoid using eval(). Use safer alternatives like JSON.parse() or ast.literal_eval()",
		Match:       matchPattern(`\beval\s*\(`),
	},
	{
		ID:          "sql_injection_risk",
		Severity:    domain.SeverityHigh,
		Category:    domain.CategorySecurity,
		Title:       "Potential SQL injection vulnerability",
		Description: "String concatenation in SQL queries can lead to SQL injection",
		Suggestion:  "Use parameterized queries or prepared statements",
		Match:       matchPattern(`(execute|query|raw)\s*\([^)]*[\+\%\{]`),
	},
	{
		ID:          "hardcoded_secrets",
		Severity:    domain.SeverityCritical,
		Category:    domain.CategorySecurity,
		Title:       "Hardcoded %s detected",
		Description: "A credential literal was found in code. Committed secrets must be rotated.",
		Suggestion:  "Use environment variables or a secret management system",
		Match: matchAny(
			labeled(`(?i)password\s*=\s*["'][^"']{4,}["']`, "password"),
			labeled(`(?i)api[_-]?key\s*=\s*["'][^"']{10,}["']`, "API key"),
			labeled(`(?i)secret\s*=\s*["'][^"']{10,}["']`, "secret"),
			labeled(`(?i)token\s*=\s*["'][^"']{10,}["']`, "token"),
		),
	},
	{
		ID:          "command_injection",
		Severity:    domain.SeverityCritical,
		Category:    domain.CategorySecurity,
		Title:       "Command injection risk: %s",
		Description: "Executing shell commands built from user input can lead to command injection",
		Suggestion:  "Use parameterized commands, avoid shell=True, validate and sanitize inputs",
		Match: matchAny(
			labeled(`os\.system\s*\([^)]*[\+\%\{]`, "os.system with string concatenation"),
			labeled(`subprocess\.(call|run|Popen)\s*\([^)]*[\+\%\{]`, "subprocess with string concatenation"),
			labeled(`\bexec\s*\(`, "exec() call"),
			labeled(`shell\s*=\s*True`, "shell=True in subprocess"),
		),
	},
	{
		ID:          "unsafe_deserialization",
		Severity:    domain.SeverityHigh,
		Category:    domain.CategorySecurity,
		Title:       "Unsafe deserialization: %s",
		Description: "Deserializing untrusted data can lead to remote code execution",
		Suggestion:  "Use yaml.safe_load(), validate data structure, avoid pickle for untrusted data",
		Match: matchAny(
			labeled(`pickle\.loads?\s*\(`, "pickle"),
			labeled(`yaml\.load\s*\([^,)]*\)`, "yaml.load without SafeLoader"),
			labeled(`(?i)json\.loads?\s*\([^)]*user`, "JSON from user input"),
		),
	},
	{
		ID:          "weak_crypto",
		Severity:    domain.SeverityMedium,
		Category:    domain.CategorySecurity,
		Title:       "Weak cryptography: %s",
		Description: "Using weak or outdated cryptographic algorithms",
		Suggestion:  "Use SHA256 or better, AES-256, and a cryptographic random source",
		Match: matchAny(
			labeled(`\bMD5\b|\bmd5\b`, "MD5 hash"),
			labeled(`\bSHA1\b|\bsha1\b`, "SHA1 hash"),
			labeled(`\bDES\b`, "DES encryption"),
			labeled(`Random\(\)`, "Random() instead of a secure source"),
		),
	},
	{
		ID:          "path_traversal",
		Severity:    domain.SeverityHigh,
		Category:    domain.CategorySecurity,
		Title:       "Path traversal risk in file operations",
		Description: "File paths constructed from user input can lead to path traversal attacks",
		Suggestion:  "Validate file paths, strip directory components, restrict to allowed directories",
		Match:       matchPattern(`open\s*\([^)]*[\+\%\{]`),
	},
	{
		ID:          "no_console_log",
		Severity:    domain.SeverityLow,
		Category:    domain.CategoryStyle,
		Title:       "Debug logging statement found",
		Description: "Remove debug output before committing to production",
		Suggestion:  "Use a proper logging library or remove the debug statement",
		Match:       matchPattern(`console\.(log|debug|info)`),
	},
	{
		ID:          "magic_numbers",
		Severity:    domain.SeverityLow,
		Category:    domain.CategoryBestPractice,
		Title:       "Magic number detected",
		Description: "Numeric literals should be defined as named constants",
		Suggestion:  "Extract to a named constant with a descriptive name",
		Match: func(code string) (string, bool) {
			if constantAssignment.MatchString(strings.TrimSpace(code)) {
				return "", false
			}
			// RE2 has no lookahead, so the 0/1/100 allowlist is
			// applied to the captured literal instead.
			for _, match := range magicNumberPattern.FindAllStringSubmatch(code, -1) {
				if match[1] != "100" {
					return "", true
				}
			}
			return "", false
		},
	},
	{
		ID:          "missing_error_handling",
		Severity:    domain.SeverityMedium,
		Category:    domain.CategoryBug,
		Title:       "Missing error handling for %s",
		Description: "A risky operation without error handling can crash the process",
		Suggestion:  "Wrap in a try block with appropriate error handling",
		Match: func(code string) (string, bool) {
			// Crude single-line heuristic: a risky call is tolerated
			// only when "try" appears on the same line.
			if strings.Contains(strings.ToLower(code), "try") {
				return "", false
			}
			for _, p := range riskyCallPatterns {
				if p.re.MatchString(code) {
					return p.label, true
				}
			}
			return "", false
		},
	},
}

// RuleIDs returns the IDs of every catalog entry, in catalog order.
func RuleIDs() []string {
	ids := make([]string, 0, len(Catalog))
	for _, rule := range Catalog {
		ids = append(ids, rule.ID)
	}
	return ids
}
