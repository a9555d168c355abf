package chunking

import (
	"strings"
	"unicode"
)

type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 1600
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

// Split cuts text into windows of at most ChunkSize runes. A window ends at
// the last sentence or word boundary inside it when one exists, and the next
// window starts Overlap runes before that end.
func (s *Splitter) Split(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}

	out := make([]string, 0, len(runes)/s.ChunkSize+1)
	for start := 0; start < len(runes); {
		end := start + s.ChunkSize
		if end >= len(runes) {
			end = len(runes)
		} else if cut := boundary(runes[start:end]); cut > 0 {
			end = start + cut
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			out = append(out, chunk)
		}
		if end == len(runes) {
			break
		}

		next := end - s.Overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

// boundary returns the cut position after the last sentence end in window,
// falling back to the last whitespace. It ignores cuts in the first half so
// windows stay reasonably full.
func boundary(window []rune) int {
	half := len(window) / 2
	for i := len(window) - 1; i > half; i-- {
		if (window[i-1] == '.' || window[i-1] == '?' || window[i-1] == '!') && unicode.IsSpace(window[i]) {
			return i
		}
	}
	for i := len(window) - 1; i > half; i-- {
		if unicode.IsSpace(window[i]) {
			return i
		}
	}
	return 0
}
