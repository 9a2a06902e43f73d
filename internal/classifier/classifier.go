// Package classifier maps a captured test failure to a root-cause category
// and each category to the remediation handler that owns it.
package classifier

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xkilldash9x/flowcheck/api/schemas"
)

// HandlerID identifies a remediation capability.
type HandlerID string

const (
	HandlerBuild       HandlerID = "build-remediation"
	HandlerDatabase    HandlerID = "database-remediation"
	HandlerGeneral     HandlerID = "general-debug"
	HandlerCodeReview  HandlerID = "code-review"
	HandlerPerformance HandlerID = "performance-remediation"
)

var routes = map[schemas.ErrorKind]HandlerID{
	schemas.KindBuild:    HandlerBuild,
	schemas.KindDatabase: HandlerDatabase,
	schemas.KindRuntime:  HandlerGeneral,
	schemas.KindNetwork:  HandlerGeneral,
	schemas.KindUI:       HandlerCodeReview,
	schemas.KindTimeout:  HandlerPerformance,
	schemas.KindUnknown:  HandlerGeneral,
}

// Classification is the full result of classifying one failure.
type Classification struct {
	Kind     schemas.ErrorKind `json:"kind"`
	Handler  HandlerID         `json:"handler"`
	Evidence []string          `json:"evidence"`
}

// failure is what a rule sees: the error plus its lower-cased message.
type failure struct {
	msg string
	err schemas.TestError
}

type classificationRule struct {
	kind     schemas.ErrorKind
	match    func(f failure) bool
	evidence func(f failure) []string
}

var (
	tsDiagnosticPattern    = regexp.MustCompile(`\bts\d{4}\b|\btsc\b|\btypescript\b`)
	notAssignablePattern   = regexp.MustCompile(`type '[^']*' is not assignable`)
	propertyMissingPattern = regexp.MustCompile(`property '?[^ ']*'? does not exist`)

	rlsPattern = regexp.MustCompile(`\brls\b|row[- ]level security`)
	sqlPattern = regexp.MustCompile(`\bsql\b|syntax error at or near`)

	httpStatusPattern = regexp.MustCompile(
		`\b(?:http|status(?: code)?)\s*:?\s*[45]\d{2}\b` +
			`|\b[45]\d{2}\s+\(?(?:bad request|unauthorized|forbidden|not found|method not allowed|conflict|unprocessable entity|too many requests|internal server error|bad gateway|service unavailable|gateway timeout)`)

	selectorWaitPattern = regexp.MustCompile(`waiting for (?:selector|element)`)
)

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func firstOf(s string, needles ...string) string {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return n
		}
	}
	return ""
}

// classificationRules is evaluated in order; the first match wins.
var classificationRules = []classificationRule{
	{
		kind: schemas.KindBuild,
		match: func(f failure) bool {
			return tsDiagnosticPattern.MatchString(f.msg) ||
				notAssignablePattern.MatchString(f.msg) ||
				propertyMissingPattern.MatchString(f.msg) ||
				strings.Contains(f.msg, "cannot find name")
		},
		evidence: func(f failure) []string {
			return []string{"Message uses type-checker vocabulary"}
		},
	},
	{
		kind: schemas.KindDatabase,
		match: func(f failure) bool {
			return rlsPattern.MatchString(f.msg) ||
				sqlPattern.MatchString(f.msg) ||
				containsAny(f.msg, "violates", "permission denied", "foreign key", "unique constraint")
		},
		evidence: func(f failure) []string {
			if rlsPattern.MatchString(f.msg) {
				return []string{"Row-level security rejected the operation"}
			}
			if hit := firstOf(f.msg, "violates", "permission denied", "foreign key", "unique constraint"); hit != "" {
				return []string{fmt.Sprintf("Database constraint wording: %q", hit)}
			}
			return []string{"Message references SQL"}
		},
	},
	{
		kind: schemas.KindNetwork,
		match: func(f failure) bool {
			return len(f.err.NetworkErrors) > 0 ||
				containsAny(f.msg, "network error", "fetch failed", "api error", "net::err_") ||
				httpStatusPattern.MatchString(f.msg)
		},
		evidence: func(f failure) []string {
			ev := make([]string, 0, len(f.err.NetworkErrors)+1)
			for _, ne := range f.err.NetworkErrors {
				ev = append(ev, fmt.Sprintf("%s %s returned %d", ne.Method, ne.URL, ne.Status))
			}
			if len(ev) == 0 {
				ev = append(ev, "Message describes a failed request")
			}
			return ev
		},
	},
	{
		kind: schemas.KindUI,
		match: func(f failure) bool {
			return (f.err.Selector != "" && !f.err.ElementFound) ||
				strings.Contains(f.msg, "element not found") ||
				selectorWaitPattern.MatchString(f.msg)
		},
		evidence: func(f failure) []string {
			if f.err.Selector != "" && !f.err.ElementFound {
				return []string{fmt.Sprintf("Selector '%s' not found in current DOM", f.err.Selector)}
			}
			return []string{"Message describes a missing element"}
		},
	},
	{
		kind: schemas.KindRuntime,
		match: func(f failure) bool {
			return f.err.Stack != "" ||
				containsAny(f.msg, "cannot read property", "cannot read properties", "is not a function",
					"reference error", "referenceerror", "is not defined") ||
				(strings.Contains(f.msg, "undefined") && strings.Contains(f.msg, " of "))
		},
		evidence: func(f failure) []string {
			if f.err.Stack != "" {
				return []string{"A stack trace was captured"}
			}
			return []string{"Message matches a JavaScript exception"}
		},
	},
	{
		kind: schemas.KindTimeout,
		match: func(f failure) bool {
			return containsAny(f.msg, "timeout", "timed out", "exceeded")
		},
		evidence: func(f failure) []string {
			return []string{"Operation did not complete in time"}
		},
	},
}

// Classify returns the kind of the first rule that matches err, or
// unknown-error when none does. It is pure.
func Classify(err schemas.TestError) schemas.ErrorKind {
	return Explain(err).Kind
}

// Explain classifies err and routes it, with the evidence behind the decision.
func Explain(err schemas.TestError) Classification {
	f := failure{msg: strings.ToLower(err.Message), err: err}
	for _, rule := range classificationRules {
		if rule.match(f) {
			return Classification{Kind: rule.kind, Handler: Route(rule.kind), Evidence: rule.evidence(f)}
		}
	}
	return Classification{
		Kind:     schemas.KindUnknown,
		Handler:  Route(schemas.KindUnknown),
		Evidence: []string{"No classification rule matched"},
	}
}

// Route maps a kind to its handler. Unrecognized kinds go to general-debug.
func Route(kind schemas.ErrorKind) HandlerID {
	if h, ok := routes[kind]; ok {
		return h
	}
	return HandlerGeneral
}
