package state

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// ValidateDate checks that s is a calendar date in YYYY-MM-DD form.
func ValidateDate(s string) error {
	if len(s) != len(dateLayout) {
		return fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	if _, err := time.Parse(dateLayout, s); err != nil {
		return fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return nil
}

// TableForDate derives the partition table name for a YYYY-MM-DD date.
// The caller must have validated the date first.
func TableForDate(date string) string {
	return "feed_entries_" + strings.ReplaceAll(date, "-", "")
}

// Today returns the current UTC date in wire form.
func Today() string {
	return time.Now().UTC().Format(dateLayout)
}
