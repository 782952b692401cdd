// Package userutil resolves user names for format variables and socket paths.
package userutil

import (
	"os"
	"os/user"
	"regexp"
	"strconv"
	"strings"
)

var invalidUsernameRune = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// lookupUID is replaced in tests.
var lookupUID = user.LookupId

// SanitizeUsername normalizes username-like values used in socket directory names.
func SanitizeUsername(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return invalidUsernameRune.ReplaceAllString(value, "_")
}

// NameForUID returns the login name for uid, or "" when it cannot be resolved.
func NameForUID(uid int) string {
	if uid < 0 {
		return ""
	}
	u, err := lookupUID(strconv.Itoa(uid))
	if err != nil || u == nil {
		return ""
	}
	return u.Username
}

// Current returns the name of the user running the server, falling back to
// $USER.
func Current() string {
	if name := NameForUID(os.Getuid()); name != "" {
		return name
	}
	return os.Getenv("USER")
}
