package session

import (
	"strings"
	"time"
)

// Classification thresholds. A fatal error only marks the session errored
// once activity has stopped for errorQuiet; a session that recovered and
// kept working is not broken.
const (
	errorQuiet     = 2 * time.Minute
	stuckQuiet     = 15 * time.Minute
	abandonedQuiet = 120 * time.Minute
)

// minFatalLength filters very short error messages from unknown tools;
// those are usually benign status codes, not real failures.
const minFatalLength = 50

// Classifier decides session status and fatal-vs-non-fatal tool errors.
// The substring tables are acknowledged approximations; they are fields so
// deployments can extend them without code changes.
type Classifier struct {
	// NonFatalTools are tools whose errors are expected during
	// exploration (missing files, empty matches, command failures).
	NonFatalTools map[string]bool
	// NonFatalPatterns override everything: an error matching one of
	// these is never fatal regardless of source tool.
	NonFatalPatterns []string
	// FatalPatterns always mark an error fatal: OS-level permission
	// problems, rate limits, auth failures.
	FatalPatterns []string
	// MutatingTools fail fatally by default: the requested mutation did
	// not happen.
	MutatingTools map[string]bool
}

// NewClassifier returns a Classifier with the default decision table.
func NewClassifier() *Classifier {
	return &Classifier{
		NonFatalTools: map[string]bool{
			"read_file": true,
			"grep":      true,
			"glob":      true,
			"exec":      true,
		},
		NonFatalPatterns: []string{
			"no such file or directory",
			"no matches found",
			"pattern not found",
			"does not exist",
			"enoent",
			"exit code 1",
			"requested permissions",
			"haven't granted",
			"permission request",
			"modified since read",
			"read it again",
			"tool_use_error",
			"is not running",
			"cannot be killed",
			"status: completed",
		},
		FatalPatterns: []string{
			"permission denied",
			"rate limit",
			"syntax error",
			"authentication failed",
			"unauthorized",
			"forbidden",
			"access denied",
		},
		MutatingTools: map[string]bool{
			"write_file": true,
			"edit_file":  true,
		},
	}
}

// IsFatal decides whether a tool error blocks the session. Evaluation
// order: non-fatal patterns win over everything, then always-fatal
// patterns, then mutating tools default to fatal, then exploration tools
// default to non-fatal, and unknown tools are fatal only when the message
// is long enough to be a real failure.
func (c *Classifier) IsFatal(toolName, errContent string) bool {
	if errContent == "" {
		return false
	}
	lower := strings.ToLower(errContent)

	for _, pat := range c.NonFatalPatterns {
		if strings.Contains(lower, pat) {
			return false
		}
	}
	for _, pat := range c.FatalPatterns {
		if strings.Contains(lower, pat) {
			return true
		}
	}
	if c.MutatingTools[toolName] {
		return true
	}
	if c.NonFatalTools[toolName] {
		return false
	}
	return len(errContent) >= minFatalLength
}

// Classify derives the session status at the given instant. It is a pure
// function of (todos, last activity, last fatal error, now): two logs
// producing identical derived inputs classify identically. Rules are
// evaluated top to bottom; the first match wins.
func (c *Classifier) Classify(s *Session, now time.Time) Status {
	if s.LastActivity.IsZero() {
		return StatusEmpty
	}
	quiet := now.Sub(s.LastActivity)

	hasIncomplete := false
	for _, t := range s.Todos {
		if t.Status == "pending" || t.Status == "in_progress" {
			hasIncomplete = true
			break
		}
	}

	switch {
	case s.LastError != "" && quiet > errorQuiet:
		return StatusError
	case hasIncomplete && quiet > stuckQuiet:
		return StatusStuck
	case hasIncomplete:
		return StatusInProgress
	case len(s.Todos) > 0:
		// No incomplete todos and at least one exists: all completed.
		return StatusCompleted
	case quiet > abandonedQuiet:
		return StatusAbandoned
	default:
		return StatusInProgress
	}
}
