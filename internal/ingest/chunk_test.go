package ingest

import (
	"strings"
	"testing"
)

func TestChunk(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		text    string
		size    int
		overlap int
		want    []string
	}{
		{
			name: "empty text",
			text: "", size: 10, overlap: 2,
			want: nil,
		},
		{
			name: "shorter than size is one chunk",
			text: "ngắn", size: 100, overlap: 10,
			want: []string{"ngắn"},
		},
		{
			name: "exact windows with overlap",
			text: "abcdefghij", size: 4, overlap: 2,
			want: []string{"abcd", "cdef", "efgh", "ghij"},
		},
		{
			name: "tail shorter than size",
			text: "abcdefg", size: 4, overlap: 2,
			want: []string{"abcd", "cdef", "efg"},
		},
		{
			name: "invalid overlap falls back to whole text",
			text: "abcdef", size: 4, overlap: 4,
			want: []string{"abcdef"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := Chunk(tt.text, tt.size, tt.overlap)
			if len(got) != len(tt.want) {
				t.Fatalf("Chunk = %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("chunk[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestChunkRuneSafe(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("điểm chuẩn ", 200)
	for _, chunk := range Chunk(text, 100, 20) {
		for _, r := range chunk {
			if r == '�' {
				t.Fatalf("chunk contains replacement character: %q", chunk)
			}
		}
	}
}

func TestChunkCoversAllText(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("x", 95)
	chunks := Chunk(text, 40, 10)

	// Overlapping windows with step 30 over 95 runes.
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	if chunks[len(chunks)-1] != strings.Repeat("x", 35) {
		t.Errorf("tail chunk = %d runes, want 35", len(chunks[len(chunks)-1]))
	}
}
