package knowledge

import (
	"strings"
	"unicode"
)

// Default chunking parameters, in runes.
const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
)

// Splitter cuts text into chunks of at most Size runes. Consecutive chunks
// share roughly Overlap runes. Cuts prefer whitespace so words stay whole.
type Splitter struct {
	Size    int
	Overlap int
}

// NewSplitter returns a Splitter, substituting defaults for invalid values.
func NewSplitter(size, overlap int) Splitter {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
		if overlap >= size {
			overlap = size / 10
		}
	}
	return Splitter{Size: size, Overlap: overlap}
}

// Split returns the chunks of text. Whitespace-only text yields nil.
func (s Splitter) Split(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	n := len(runes)
	if n == 0 {
		return nil
	}

	var chunks []string
	start := 0
	for start < n {
		end := start + s.Size
		if end >= n {
			end = n
		} else if cut := lastSpace(runes, start+s.Size/2, end); cut > start {
			end = cut
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == n {
			break
		}

		next := end - s.Overlap
		if next <= start {
			next = end
		}
		// Start the overlap on a word boundary when one is close.
		if next < end {
			if sp := firstSpace(runes, next, end); sp >= 0 {
				next = sp + 1
			}
		}
		start = next
	}
	return chunks
}

// lastSpace returns the index of the last whitespace rune in runes[from:to],
// or -1.
func lastSpace(runes []rune, from, to int) int {
	for i := to; i > from; i-- {
		if i < len(runes) && unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return -1
}

// firstSpace returns the index of the first whitespace rune in runes[from:to],
// or -1.
func firstSpace(runes []rune, from, to int) int {
	if from > 0 && unicode.IsSpace(runes[from-1]) {
		return from - 1
	}
	for i := from; i < to; i++ {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return -1
}
