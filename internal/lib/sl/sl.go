// Package sl holds slog attribute helpers shared across packages.
package sl

import (
	"log/slog"
	"strings"
)

// Err returns the error as an "error" attribute. A nil error is logged as an empty string.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

// Secret masks value so that only its first two characters are logged.
// Invite tokens are bearer secrets and must never appear in full.
func Secret(key, value string) slog.Attr {
	switch {
	case value == "":
		return slog.String(key, "?")
	case len(value) <= 2:
		return slog.String(key, "***")
	default:
		return slog.String(key, value[:2]+strings.Repeat("*", len(value)-2))
	}
}

// Module tags log lines with the emitting component.
func Module(mod string) slog.Attr {
	return slog.String("mod", mod)
}
