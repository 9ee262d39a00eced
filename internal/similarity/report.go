package similarity

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	verdictUse    = "WILL USE"
	verdictFilter = "FILTERED OUT"
)

// Entry is a record together with its grade and inclusion verdict.
type Entry struct {
	Record
	Band     Band `json:"-"`
	Included bool `json:"included"`
}

// Verdict is the display text for the inclusion decision.
func (e Entry) Verdict() string {
	if e.Included {
		return verdictUse
	}
	return verdictFilter
}

// Report is the display-only similarity analysis of one turn. It is never
// stored beyond the turn that produced it.
type Report struct {
	Threshold float64 `json:"threshold"`
	Entries   []Entry `json:"entries"`
}

// BuildReport grades records against threshold, keeping their order.
func BuildReport(records []Record, threshold float64) Report {
	r := Report{Threshold: threshold}
	if len(records) == 0 {
		return r
	}
	r.Entries = make([]Entry, len(records))
	for i, rec := range records {
		r.Entries[i] = Entry{
			Record:   rec,
			Band:     Classify(rec.Score),
			Included: Included(rec.Score, threshold),
		}
	}
	return r
}

// Empty reports whether there is nothing to show.
func (r Report) Empty() bool {
	return len(r.Entries) == 0
}

// Counts returns how many entries pass and fail the threshold.
func (r Report) Counts() (used, filtered int) {
	for _, e := range r.Entries {
		if e.Included {
			used++
		} else {
			filtered++
		}
	}
	return used, filtered
}

// ThresholdText formats the threshold the way it was configured (0.65, not
// 0.6500).
func (r Report) ThresholdText() string {
	return strconv.FormatFloat(r.Threshold, 'f', -1, 64)
}

// Text renders the report as plain text, one three-line block per entry.
func (r Report) Text() string {
	if r.Empty() {
		return ""
	}
	var sb strings.Builder
	th := r.ThresholdText()
	for i, e := range r.Entries {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "Similarity Score: %.4f - %s\n", e.Score, e.Band.Label())
		fmt.Fprintf(&sb, "%s (Threshold: %s)\n", e.Verdict(), th)
		fmt.Fprintf(&sb, "Preview: %s\n", e.Preview)
	}
	return sb.String()
}
