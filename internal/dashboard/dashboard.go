// Package dashboard builds the operator-facing URL for a run's status
// page. It is a pure string template, not a service: nothing in the
// core depends on the dashboard being reachable.
package dashboard

import (
	"fmt"
	"net/url"
)

// BaseURL is the root of the dashboard application. It is configured once
// at process start and passed to URLForRun explicitly rather than read
// from a global.
type BaseURL string

// URLForRun builds the URL an operator follows to watch runID's progress.
func URLForRun(base BaseURL, runID string) string {
	return fmt.Sprintf("%s/runs/%s", base, url.PathEscape(runID))
}
