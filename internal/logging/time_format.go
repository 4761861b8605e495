package logging

import "time"

// consoleTimeLayout is the stamp the pretty console handler prints; the
// JSON handler keeps full RFC 3339 precision instead.
const consoleTimeLayout = "2006-01-02 15:04:05"

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.In(time.Local).Format(consoleTimeLayout)
}
