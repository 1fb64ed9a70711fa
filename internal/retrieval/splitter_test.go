package retrieval

import (
	"strings"
	"testing"
)

func TestSplitShortTextSingleChunk(t *testing.T) {
	s := NewSplitter(1000, 200)
	chunks := s.Split("Revenue grew 12% YoY driven by cloud services.")
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
}

func TestSplitEmptyText(t *testing.T) {
	s := NewSplitter(1000, 200)
	if got := s.Split(""); got != nil {
		t.Errorf("Split(\"\") = %v, want nil", got)
	}
	if got := s.Split("   \n\n  "); got != nil {
		t.Errorf("Split(whitespace) = %v, want nil", got)
	}
}

func TestSplitDeterministic(t *testing.T) {
	s := NewSplitter(100, 20)
	text := strings.Repeat("The quarter closed strong. Margins expanded again. ", 40)

	first := s.Split(text)
	second := s.Split(text)

	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
}

func TestSplitRespectsChunkSize(t *testing.T) {
	s := NewSplitter(100, 20)
	text := strings.Repeat("Operating cash flow improved materially this period. ", 50)

	for i, c := range s.Split(text) {
		if len(c) > 100 {
			t.Errorf("chunk %d has length %d, want <= 100", i, len(c))
		}
	}
}

func TestSplitPrefersParagraphBreaks(t *testing.T) {
	para1 := strings.Repeat("a", 60)
	para2 := strings.Repeat("b", 60)
	text := para1 + "\n\n" + para2

	s := NewSplitter(100, 20)
	chunks := s.Split(text)

	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want >= 2", len(chunks))
	}
	// The first chunk must end at the paragraph break, not mid-paragraph.
	if !strings.HasSuffix(strings.TrimRight(chunks[0], "\n"), para1) {
		t.Errorf("first chunk %q does not end at paragraph boundary", chunks[0])
	}
}

func TestSplitOverlapCarriesContext(t *testing.T) {
	var sentences []string
	for i := 0; i < 30; i++ {
		sentences = append(sentences, "Sentence number "+string(rune('a'+i%26))+" covers results. ")
	}
	text := strings.Join(sentences, "")

	s := NewSplitter(120, 40)
	chunks := s.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want >= 2", len(chunks))
	}

	for i := 1; i < len(chunks); i++ {
		// Each chunk must start with text already seen at the end of the
		// previous chunk.
		head := chunks[i]
		if idx := strings.IndexByte(head, '.'); idx > 0 {
			head = head[:idx]
		}
		if !strings.Contains(chunks[i-1], strings.TrimSpace(head)) {
			t.Errorf("chunk %d does not overlap with its predecessor:\nprev: %q\ncur:  %q", i, chunks[i-1], chunks[i])
		}
	}
}

func TestSplitSmallChunkSizeClampsOverlap(t *testing.T) {
	// Chunk sizes at or below the default overlap must still split safely:
	// the overlap is clamped below the chunk size instead of being left at
	// a value that would drive hardSplit's step negative.
	cases := []struct {
		name      string
		chunkSize int
		overlap   int
	}{
		{"chunk size below default overlap", 150, 200},
		{"chunk size equals default overlap", 200, 200},
		{"overlap equals chunk size", 100, 100},
		{"tiny chunk size", 10, 200},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewSplitter(tc.chunkSize, tc.overlap)
			text := strings.Repeat("x", 400)

			chunks := s.Split(text)
			if len(chunks) == 0 {
				t.Fatal("got no chunks")
			}
			for i, c := range chunks {
				if len(c) > tc.chunkSize {
					t.Errorf("chunk %d has length %d, want <= %d", i, len(c), tc.chunkSize)
				}
			}
			if !strings.HasSuffix(chunks[len(chunks)-1], "x") {
				t.Error("last chunk lost the tail of the text")
			}
		})
	}
}

func TestSplitHardTruncationFallback(t *testing.T) {
	// No separators at all: a single unbroken token longer than the chunk size.
	text := strings.Repeat("x", 350)
	s := NewSplitter(100, 20)

	chunks := s.Split(text)
	if len(chunks) < 4 {
		t.Fatalf("got %d chunks, want >= 4", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 100 {
			t.Errorf("chunk %d has length %d, want <= 100", i, len(c))
		}
	}
	// Adjacent hard-split chunks share the overlap window.
	if !strings.HasPrefix(chunks[1], strings.Repeat("x", 20)) {
		t.Error("hard split lost the overlap window")
	}
}
