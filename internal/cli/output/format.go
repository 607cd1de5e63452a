// Package output renders command results as tables, JSON or YAML.
package output

import (
	"fmt"
	"strings"
)

// Format selects how a command renders its result.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// formats maps accepted flag values to formats. The empty string
// falls back to the table format.
var formats = map[string]Format{
	"":      FormatTable,
	"table": FormatTable,
	"json":  FormatJSON,
	"yaml":  FormatYAML,
	"yml":   FormatYAML,
}

// ParseFormat parses the value of an --output flag.
func ParseFormat(s string) (Format, error) {
	f, ok := formats[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("invalid output format: %q (valid: table, json, yaml)", s)
	}
	return f, nil
}

func (f Format) String() string {
	return string(f)
}
