// Package similarity turns retrieval diagnostics into scored records and
// grades them for display.
//
// Scores follow a distance convention: lower means the retrieved chunk is
// closer to the query.
package similarity

import (
	"errors"
	"strconv"
	"strings"
)

// Record is one retrieved chunk as reported during a single query.
type Record struct {
	Score   float64 `json:"score"`
	Preview string  `json:"preview"`
}

const (
	scoreMarker  = "Score:"
	fieldSep     = "|"
	previewLabel = "Content Preview:"
)

// Parse extracts records from diagnostic text of the form
//
//	Score: <number> | Content Preview: <text>
//
// one per line. Lines without the score marker, without a second field, or
// with a non-numeric score are skipped. A score too large to represent
// parses as ±Inf. Parse never fails; malformed input only yields fewer
// records. Order follows the input.
func Parse(text string) []Record {
	var out []Record
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		if rec, ok := parseLine(line); ok {
			out = append(out, rec)
		}
	}
	return out
}

func parseLine(line string) (Record, bool) {
	if !strings.Contains(line, scoreMarker) {
		return Record{}, false
	}
	fields := strings.Split(line, fieldSep)
	if len(fields) < 2 {
		return Record{}, false
	}

	// The number sits between the first marker and the next one, if any.
	_, after, found := strings.Cut(fields[0], scoreMarker)
	if !found {
		return Record{}, false
	}
	raw, _, _ := strings.Cut(after, scoreMarker)
	// Out-of-range numbers keep the ±Inf ParseFloat returns with ErrRange.
	score, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return Record{}, false
	}

	preview := strings.ReplaceAll(strings.TrimSpace(fields[1]), previewLabel, "")
	return Record{Score: score, Preview: strings.TrimSpace(preview)}, true
}
