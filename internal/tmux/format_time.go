package tmux

import (
	"strconv"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"
)

// formatStrftime applies strftime(3) directives to s in local time.
func formatStrftime(s string, t time.Time) string {
	return strftime.Format(s, t.Local())
}

// formatCtime renders t like ctime(3) without the trailing newline.
func formatCtime(t time.Time) string {
	return t.Local().Format(time.ANSIC)
}

// formatPrettyTime renders t relative to now: time of day within the last
// 24 hours, weekday and day within the month or 28 days, day and month
// within the last year, otherwise month and two-digit year.
func formatPrettyTime(t, now time.Time) string {
	if now.Before(t) {
		now = t
	}
	age := now.Sub(t)
	lt, ln := t.Local(), now.Local()

	if age < 24*time.Hour {
		return strftime.Format("%H:%M", lt)
	}
	if (lt.Year() == ln.Year() && lt.Month() == ln.Month()) || age < 28*24*time.Hour {
		return strftime.Format("%a%d", lt)
	}
	if (lt.Year() == ln.Year() && lt.Month() < ln.Month()) ||
		(lt.Year() == ln.Year()-1 && lt.Month() > ln.Month()) {
		return strftime.Format("%d%b", lt)
	}
	return strftime.Format("%h%y", lt)
}

// parseTimeString reads a decimal Unix timestamp; 0 means none.
func parseTimeString(s string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
