package ingest

// Chunk splits text into overlapping windows of at most size runes, with
// overlap runes shared between consecutive chunks. Boundaries are rune-safe
// so Vietnamese diacritics are never split. Invalid parameters fall back to
// a single chunk.
func Chunk(text string, size, overlap int) []string {
	if text == "" {
		return nil
	}
	if size <= 0 || overlap < 0 || overlap >= size {
		return []string{text}
	}

	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}

	step := size - overlap
	chunks := make([]string, 0, (len(runes)+step-1)/step)
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
