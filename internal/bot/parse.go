package bot

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseAccountID extracts a numeric account id from a command argument string.
func ParseAccountID(args string) (int64, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return 0, fmt.Errorf("account ID is required")
	}
	id, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid account ID %q", fields[0])
	}
	return id, nil
}

// ParseOnOff parses an on/off switch argument.
func ParseOnOff(args string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(args)) {
	case "on", "yes", "true", "1":
		return true, nil
	case "off", "no", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", args)
}
