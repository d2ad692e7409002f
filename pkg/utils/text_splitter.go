package utils

import "unicode"

// SplitText chunks document text for embedding. Chunks are at most chunkSize
// runes and consecutive chunks share roughly overlap runes so passage
// boundaries do not cut a clinical statement off from its context. When a
// whitespace break exists near the cut point the chunk ends there instead of
// mid-word.
func SplitText(text string, chunkSize int, overlap int) []string {
	runes := []rune(text)
	if len(runes) <= chunkSize {
		return []string{text}
	}

	step := chunkSize - overlap
	if step <= 0 {
		step = chunkSize
	}

	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + chunkSize
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}
		end = snapToBreak(runes, start, end)
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

// snapToBreak moves end back to the nearest whitespace within the last tenth
// of the chunk. Text without any break point, such as unspaced Korean prose,
// is cut at the hard limit.
func snapToBreak(runes []rune, start, end int) int {
	limit := end - (end-start)/10
	for i := end; i > limit; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return end
}
