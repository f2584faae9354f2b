package booking

import (
	"fmt"
	"strings"
	"time"
)

// slotTimeLayout is the canonical slot label form: zero-padded hour, uppercase
// AM/PM marker ("09:00 AM").
const slotTimeLayout = "03:04 PM"

var clockLayouts = []string{
	"03:04 PM",
	"3:04 PM",
	"3 PM",
	"03 PM",
	"15:04",
}

// NormalizeClockTime parses a spoken-style clock time ("9 am", "9:00AM",
// "09:00") into the canonical slot label form used across the catalog and the
// appointment table.
func NormalizeClockTime(raw string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	// "9AM" -> "9 AM" so the space-separated layouts match.
	if strings.HasSuffix(s, "AM") || strings.HasSuffix(s, "PM") {
		marker := s[len(s)-2:]
		body := strings.TrimSpace(s[:len(s)-2])
		s = body + " " + marker
	}
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(slotTimeLayout), nil
		}
	}
	return "", fmt.Errorf("unrecognized clock time %q", raw)
}
