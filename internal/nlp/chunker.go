package nlp

import "strings"

const (
	// DefaultChunkChars is the ceiling for a single inference request.
	DefaultChunkChars = 20000
	// minTailChars keeps the model from seeing a starved final chunk: a tail
	// shorter than this is folded back into the previous chunk.
	minTailChars = 5000
)

// SplitChunks cuts text into pieces no longer than chunkChars without ever
// breaking a line. A single line longer than chunkChars becomes its own
// oversized chunk rather than being split mid-line.
func SplitChunks(text string, chunkChars int) []string {
	if chunkChars <= 0 {
		chunkChars = DefaultChunkChars
	}
	if text == "" {
		return nil
	}
	if len(text) <= chunkChars {
		return []string{text}
	}

	var chunks []string
	var cur strings.Builder
	for _, line := range strings.Split(text, "\n") {
		need := len(line)
		if cur.Len() > 0 {
			need += cur.Len() + 1
		}
		if need > chunkChars && cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(line)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}

	if n := len(chunks); n >= 2 && len(chunks[n-1]) < minTailChars {
		chunks[n-2] = chunks[n-2] + "\n" + chunks[n-1]
		chunks = chunks[:n-1]
	}
	return chunks
}
