package agent

import (
	"regexp"
	"strings"
)

// dangerousPatterns block an invocation outright before any side effect.
var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)rm\s+-rf\s+/`),
	regexp.MustCompile(`(?i)dd\s+if=`),
	regexp.MustCompile(`(?i)mkfs\.`),
	regexp.MustCompile(`:\(\)\{\s*:\|:&\s*\};:`),
	regexp.MustCompile(`(?i)>\s*/dev/sd[a-z]`),
	regexp.MustCompile(`(?i)chmod\s+-R\s+777\s+/`),
	regexp.MustCompile(`(?i)wget\s+.*\|\s*sh`),
	regexp.MustCompile(`(?i)curl\s+.*\|\s*bash`),
}

// routingHints map task keywords to the agent usually suited for them.
// A mismatch only warns; it never blocks.
var routingHints = map[string]string{
	"research":         "web-researcher",
	"search":           "web-researcher",
	"find information": "web-researcher",
	"look up":          "web-researcher",
	"review":           "git-reviewer",
	"commit":           "git-reviewer",
	"analyze":          "academic-researcher",
	"hypothesis":       "academic-researcher",
	"synthesize":       "academic-researcher",
}

// checkTask screens a task before invocation. A returned *BlockedTaskError
// blocks; a non-empty warning is logged by the caller and execution
// continues.
func checkTask(task, agentName string) (warning string, err error) {
	for _, pat := range dangerousPatterns {
		if pat.MatchString(task) {
			return "", &BlockedTaskError{Pattern: pat.String()}
		}
	}
	lower := strings.ToLower(task)
	for keyword, suggested := range routingHints {
		if strings.Contains(lower, keyword) && agentName != suggested {
			return "task mentions '" + keyword + "' but is routed to @" + agentName +
				"; consider @" + suggested, nil
		}
	}
	return "", nil
}

var projectPattern = regexp.MustCompile(`projects/([^/\s]+)/`)

// extractProject pulls a project name out of a task that references
// projects/<name>/. Namespace directories are skipped.
func extractProject(task string) string {
	m := projectPattern.FindStringSubmatch(task)
	if m == nil {
		return ""
	}
	if m[1] == "work" || m[1] == "personal" {
		return ""
	}
	return m[1]
}
