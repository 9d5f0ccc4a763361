package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// ReadFields prints a prompt to w and reads "name=value" lines from reader
// until an empty line or EOF. See ParseAssignments for the value rules.
func ReadFields(reader *bufio.Reader, w io.Writer) (map[string]any, error) {
	if _, err := fmt.Fprint(w, "Enter fields as name=value (empty line to finish)\n"); err != nil {
		return nil, err
	}

	var lines []string
	for {
		line, err := reader.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		lines = append(lines, line)
		if err != nil {
			break
		}
	}
	return ParseAssignments(lines)
}

// ParseAssignments turns "name=value" pairs into a field map. A value that
// is valid JSON (a number, true, false, null, a quoted string, an object or
// an array) is decoded; anything else is kept as a plain string, so
// status=stable and age=42 both work.
func ParseAssignments(pairs []string) (map[string]any, error) {
	fields := make(map[string]any, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("expected name=value, got %q", p)
		}
		fields[name] = ParseValue(strings.TrimSpace(value))
	}
	return fields, nil
}

// ParseValue decodes s as JSON when it is valid JSON and returns it
// unchanged otherwise.
func ParseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}
