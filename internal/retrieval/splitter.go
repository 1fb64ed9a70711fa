package retrieval

import (
	"strings"
)

// defaultSeparators are tried in order: paragraph breaks first, then line
// breaks, then sentence ends, then words. Hard character truncation is the
// last resort only when a run of text has no separators at all.
var defaultSeparators = []string{"\n\n", "\n", ". ", " "}

// Splitter cuts document text into overlapping chunks. Splitting is a pure
// function of (text, chunk size, overlap): the same input always yields the
// same chunks, so re-ingesting a document reproduces identical boundaries.
type Splitter struct {
	chunkSize  int
	overlap    int
	separators []string
}

// NewSplitter creates a Splitter with the given target chunk size and
// overlap window (both in bytes). Non-positive values fall back to 1000/200;
// the overlap always ends up strictly below the chunk size, so hardSplit's
// step stays positive.
func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 200
		if overlap >= chunkSize {
			overlap = chunkSize / 5
		}
	}
	return &Splitter{
		chunkSize:  chunkSize,
		overlap:    overlap,
		separators: defaultSeparators,
	}
}

// Split returns the ordered chunks of text. Whitespace-only input yields nil.
func (s *Splitter) Split(text string) []string {
	return s.split(text, s.separators)
}

func (s *Splitter) split(text string, seps []string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if len(text) <= s.chunkSize {
		return []string{text}
	}

	sep, rest := pickSeparator(text, seps)
	if sep == "" {
		return s.hardSplit(text)
	}

	// SplitAfter keeps the separator attached so rejoining is lossless.
	var parts []string
	for _, p := range strings.SplitAfter(text, sep) {
		if p == "" {
			continue
		}
		if len(p) > s.chunkSize {
			parts = append(parts, s.split(p, rest)...)
			continue
		}
		parts = append(parts, p)
	}
	return s.merge(parts)
}

// pickSeparator returns the first candidate present in text and the
// remaining candidates to use for oversized sub-splits.
func pickSeparator(text string, seps []string) (string, []string) {
	for i, cand := range seps {
		if strings.Contains(text, cand) {
			return cand, seps[i+1:]
		}
	}
	return "", nil
}

// merge greedily packs parts into chunks up to chunkSize, carrying the
// trailing parts of each emitted chunk into the next one as overlap.
func (s *Splitter) merge(parts []string) []string {
	var chunks []string
	var cur []string
	curLen := 0

	flush := func() {
		chunk := strings.Join(cur, "")
		if strings.TrimSpace(chunk) != "" {
			chunks = append(chunks, chunk)
		}
	}

	for _, p := range parts {
		if curLen+len(p) > s.chunkSize && curLen > 0 {
			flush()
			// Drop leading parts until what remains fits in the overlap
			// window and leaves room for the incoming part.
			for len(cur) > 0 && (curLen > s.overlap || curLen+len(p) > s.chunkSize) {
				curLen -= len(cur[0])
				cur = cur[1:]
			}
		}
		cur = append(cur, p)
		curLen += len(p)
	}
	if curLen > 0 {
		flush()
	}
	return chunks
}

// hardSplit cuts text at fixed byte offsets with overlap. Only reached when
// a span longer than chunkSize contains none of the separators.
func (s *Splitter) hardSplit(text string) []string {
	step := s.chunkSize - s.overlap
	var chunks []string
	for start := 0; start < len(text); start += step {
		end := start + s.chunkSize
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[start:end])
		if end == len(text) {
			break
		}
	}
	return chunks
}
