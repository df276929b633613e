package main

import (
	"fmt"
	"strconv"
	"strings"
)

// parsePortRange parses "start-end" (e.g. "8000-8099") into its bounds.
func parsePortRange(s string) (start, end int, err error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid port range %q, want START-END", s)
	}
	start, err = strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid port range %q: %w", s, err)
	}
	end, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid port range %q: %w", s, err)
	}
	if start > end {
		return 0, 0, fmt.Errorf("invalid port range %q: start after end", s)
	}
	return start, end, nil
}
