package denylist

import (
	"strconv"
	"strings"
)

// ParseExport parses the CAS export: one row per account, the id in the
// first comma-separated column. A leading header row and malformed rows
// are skipped.
func ParseExport(body string) map[int64]struct{} {
	ids := make(map[int64]struct{})
	for line := range strings.Lines(body) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		field, _, _ := strings.Cut(line, ",")
		field = strings.Trim(strings.TrimSpace(field), `"`)
		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			// header row or junk
			continue
		}
		ids[id] = struct{}{}
	}
	return ids
}

// ParseList parses a plain list with one integer id per line.
func ParseList(body string) map[int64]struct{} {
	ids := make(map[int64]struct{})
	for line := range strings.Lines(body) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		id, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			continue
		}
		ids[id] = struct{}{}
	}
	return ids
}
