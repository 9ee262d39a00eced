package similarity

// Band is a qualitative grade derived from a score.
type Band int

const (
	Excellent Band = iota
	Good
	Fair
	Poor
)

// DefaultThreshold is the inclusion ceiling used when none is configured.
const DefaultThreshold = 0.65

func (b Band) String() string {
	switch b {
	case Excellent:
		return "excellent"
	case Good:
		return "good"
	case Fair:
		return "fair"
	default:
		return "poor"
	}
}

// Label is the human-facing name shown next to a score.
func (b Band) Label() string {
	switch b {
	case Excellent:
		return "Excellent Match"
	case Good:
		return "Good Match"
	case Fair:
		return "Fair Match"
	default:
		return "Poor Match"
	}
}

// Classify grades a score. Cutpoints are exclusive upper bounds; anything
// not below 0.8 (including NaN) is Poor.
func Classify(score float64) Band {
	switch {
	case score < 0.3:
		return Excellent
	case score < 0.5:
		return Good
	case score < 0.8:
		return Fair
	default:
		return Poor
	}
}

// Included reports whether a record with this score may be used as context.
// The comparison is inclusive, unlike the band cutpoints, and the two are
// independent: a Poor record can still be included under a lenient
// threshold.
func Included(score, threshold float64) bool {
	return score <= threshold
}
