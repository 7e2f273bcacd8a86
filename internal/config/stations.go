package config

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

const maxStationID = 999999

// ParseStationID validates a station identifier and returns it without leading zeros.
func ParseStationID(s string) (string, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return "", invalid("invalid station id %q: empty", s)
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return "", invalid("invalid station id %q: must be numeric", s)
		}
	}
	trimmed := strings.TrimLeft(raw, "0")
	if trimmed == "" {
		return "", invalid("invalid station id %q: must be between 1 and %d", s, maxStationID)
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil || n < 1 || n > maxStationID {
		return "", invalid("invalid station id %q: must be between 1 and %d", s, maxStationID)
	}
	return trimmed, nil
}

// ParseStationList splits a comma or whitespace separated list. Duplicates keep
// their first position.
func ParseStationList(s string) ([]string, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	out := make([]string, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		id, err := ParseStationID(f)
		if err != nil {
			return nil, err
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}

// ReadStationsFile reads one station id per line. Blank lines and lines starting with # are skipped.
func ReadStationsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, invalid("open stations file %q: %w", path, err)
	}
	defer f.Close()

	var b strings.Builder
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return nil, invalid("read stations file %q: %w", path, err)
	}
	return ParseStationList(b.String())
}

func stationsFromEnv() ([]string, error) {
	if path := strings.TrimSpace(os.Getenv("STATIONS_FILE")); path != "" {
		return ReadStationsFile(path)
	}
	return ParseStationList(os.Getenv("STATIONS"))
}
