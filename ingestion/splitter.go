package ingestion

import "strings"

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 200
)

// separators, in preference order: paragraph, line, sentence, word.
// An empty separator means "cut between runes".
var separators = []string{"\n\n", "\n", ". ", " ", ""}

// Document pairs a source filename with its extracted text.
type Document struct {
	Name string
	Text string
}

// Chunk is a bounded span of one document's text, tagged with the file
// it came from.
type Chunk struct {
	Source string
	Text   string
}

// Splitter cuts long text into chunks of at most ChunkSize bytes while
// preferring natural boundaries. Neighbouring chunks share up to Overlap
// bytes, copied verbatim from the tail of the previous chunk.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) Splitter {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if overlap < 0 {
		overlap = defaultChunkOverlap
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 5
	}
	return Splitter{ChunkSize: chunkSize, Overlap: overlap}
}

// Split cuts text into ordered chunks. Separators stay attached to the
// text that precedes them, so concatenating the chunks (minus the
// overlapping prefixes) reconstructs the input.
func (s Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if len(text) <= s.ChunkSize {
		return []string{text}
	}

	return s.merge(s.pieces(text, separators))
}

// SplitTagged chunks every document independently and prefixes each
// chunk with a source tag. Chunks never span two documents.
func (s Splitter) SplitTagged(docs []Document) []Chunk {
	chunks := make([]Chunk, 0)
	for _, doc := range docs {
		for _, piece := range s.Split(doc.Text) {
			chunks = append(chunks, Chunk{
				Source: doc.Name,
				Text:   "[Source: " + doc.Name + "]\n" + piece,
			})
		}
	}
	return chunks
}

// pieces subdivides text until every piece fits in a chunk, trying each
// separator in turn before falling back to rune boundaries.
func (s Splitter) pieces(text string, seps []string) []string {
	if len(text) <= s.ChunkSize {
		return []string{text}
	}
	if len(seps) == 0 || seps[0] == "" {
		return splitRunes(text, s.ChunkSize)
	}

	parts := strings.SplitAfter(text, seps[0])
	if len(parts) == 1 {
		return s.pieces(text, seps[1:])
	}

	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		if len(part) <= s.ChunkSize {
			result = append(result, part)
			continue
		}
		result = append(result, s.pieces(part, seps[1:])...)
	}
	return result
}

// merge greedily packs pieces into chunks, seeding each new chunk with
// the tail of the previous one to preserve context across boundaries.
func (s Splitter) merge(parts []string) []string {
	chunks := make([]string, 0)
	current := make([]string, 0)
	currentLen := 0

	for _, part := range parts {
		if currentLen+len(part) > s.ChunkSize && currentLen > 0 {
			chunks = append(chunks, strings.Join(current, ""))

			tail, tailLen := overlapTail(current, s.Overlap)
			if tailLen+len(part) > s.ChunkSize {
				tail, tailLen = nil, 0
			}
			current = tail
			currentLen = tailLen
		}

		current = append(current, part)
		currentLen += len(part)
	}

	if currentLen > 0 {
		chunks = append(chunks, strings.Join(current, ""))
	}

	return chunks
}

// overlapTail returns the longest suffix of parts whose total length
// stays within limit.
func overlapTail(parts []string, limit int) ([]string, int) {
	if limit <= 0 {
		return nil, 0
	}

	total := 0
	start := len(parts)
	for i := len(parts) - 1; i >= 0; i-- {
		if total+len(parts[i]) > limit {
			break
		}
		total += len(parts[i])
		start = i
	}

	if start == len(parts) {
		return nil, 0
	}

	tail := make([]string, len(parts)-start)
	copy(tail, parts[start:])
	return tail, total
}

func splitRunes(text string, size int) []string {
	parts := make([]string, 0, len(text)/size+1)
	current := make([]byte, 0, size)

	for _, r := range text {
		runeLen := len(string(r))
		if len(current)+runeLen > size && len(current) > 0 {
			parts = append(parts, string(current))
			current = current[:0]
		}
		current = append(current, string(r)...)
	}

	if len(current) > 0 {
		parts = append(parts, string(current))
	}
	return parts
}
