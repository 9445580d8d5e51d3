package bot

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseKeywords splits command arguments into 1-3 keywords.
func ParseKeywords(args string) ([]string, error) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		return nil, fmt.Errorf("at least one keyword is required")
	}
	if len(parts) > 3 {
		return nil, fmt.Errorf("at most 3 keywords are allowed, got %d", len(parts))
	}
	return parts, nil
}

// ParseIDArg extracts a numeric subscription ID from a command argument string.
func ParseIDArg(args string) (int64, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return 0, fmt.Errorf("subscription ID is required")
	}
	id, err := strconv.ParseInt(strings.Fields(s)[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid subscription ID %q", s)
	}
	return id, nil
}
