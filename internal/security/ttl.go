package security

import (
	"strconv"
	"strings"
	"time"
)

// ParseTTL converts expiry strings such as "15m", "7d", "2w", "1h30m" or a bare number
// of seconds ("3600") into a duration. Malformed or non-positive input returns def.
func ParseTTL(s string, def time.Duration) time.Duration {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return def
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n <= 0 {
			return def
		}
		return time.Duration(n) * time.Second
	}
	unit := time.Duration(0)
	switch s[len(s)-1] {
	case 'd':
		unit = 24 * time.Hour
	case 'w':
		unit = 7 * 24 * time.Hour
	}
	if unit != 0 {
		n, err := strconv.ParseInt(s[:len(s)-1], 10, 64)
		if err != nil || n <= 0 {
			return def
		}
		return time.Duration(n) * unit
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
