package expresspay

import (
	"strings"
	"time"
)

// GatewayDateLayout is the date format used by gateway responses.
const GatewayDateLayout = "2006-01-02 15:04:05"

var dateLayouts = []string{
	GatewayDateLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseGatewayDate parses a gateway date in UTC. It reports false when the
// value matches none of the known layouts.
func ParseGatewayDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatGatewayDate is the inverse of ParseGatewayDate for the primary layout.
func FormatGatewayDate(t time.Time) string {
	return t.UTC().Format(GatewayDateLayout)
}
