package util

import (
	"log/slog"
	"os"
	"strings"
)

// ParseBoolEnv reads a boolean switch from the environment. Unset keys and
// unrecognized values fall back to def. Recognized forms, in any case:
// true/false, 1/0, yes/no, on/off.
func ParseBoolEnv(key string, def bool) bool {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	slog.Warn("ParseBoolEnv: unrecognized value, keeping default", "key", key, "value", raw, "default", def)
	return def
}
