// Package transcript holds the stateless formatters that turn execution
// events into the deterministic, one-line summaries a session's durable
// transcript is made of.
package transcript

import (
	"fmt"
	"strings"
)

// NormalizeRole lower-cases and trims r, defaulting to "system" when empty.
func NormalizeRole(r string) string {
	r = strings.ToLower(strings.TrimSpace(r))
	if r == "" {
		return "system"
	}
	return r
}

// ToolSummary renders "[tool:<recipient>] ok|failed (<ms>ms)" for a completed
// tool invocation. durationMS < 0 omits the duration suffix.
func ToolSummary(recipient string, ok bool, durationMS int64) string {
	status := "ok"
	if !ok {
		status = "failed"
	}
	if durationMS < 0 {
		return fmt.Sprintf("[tool:%s] %s", recipient, status)
	}
	return fmt.Sprintf("[tool:%s] %s (%dms)", recipient, status, durationMS)
}

// PreflightBlockedSummary renders the transcript line recorded when a script
// message is blocked for missing n required tools.
func PreflightBlockedSummary(missingCount int) string {
	return fmt.Sprintf("[preflight] blocked: missing %d required tool(s)", missingCount)
}
