package report

import (
	"fmt"
	"io"
	"strings"
)

// Format selects a renderer.
type Format string

const (
	FormatPlain      Format = "plain"
	FormatJSON       Format = "json"
	FormatPrometheus Format = "prometheus"
)

// notAvailable is printed for identity fields the host did not report.
const notAvailable = "Not available"

// ParseFormat validates a format name.
func ParseFormat(value string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(value))) {
	case FormatPlain:
		return FormatPlain, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatPrometheus:
		return FormatPrometheus, nil
	default:
		return "", fmt.Errorf("unknown format %q (expected plain, json or prometheus)", value)
	}
}

// Render writes r to w in the given format.
func Render(w io.Writer, r Report, format Format) error {
	switch format {
	case FormatPlain, "":
		return WritePlain(w, r)
	case FormatJSON:
		return WriteJSON(w, r)
	case FormatPrometheus:
		return WritePrometheus(w, r)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
