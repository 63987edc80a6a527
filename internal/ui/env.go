package ui

import (
	"os"
	"strings"
)

// ParseBoolDefault parses a boolean-like environment value with a fallback default.
// True values: 1, true, yes, on, y
// False values: 0, false, no, off, n
// Empty/unknown values return defaultValue.
func ParseBoolDefault(raw string, defaultValue bool) bool {
	switch strings.TrimSpace(strings.ToLower(raw)) {
	case "1", "true", "yes", "on", "y":
		return true
	case "0", "false", "no", "off", "n":
		return false
	}
	return defaultValue
}

// PlainOutput reports whether the interactive UI is disabled through
// PROMPTLY_PLAIN or TERM=dumb.
func PlainOutput() bool {
	if ParseBoolDefault(os.Getenv("PROMPTLY_PLAIN"), false) {
		return true
	}
	return os.Getenv("TERM") == "dumb"
}
