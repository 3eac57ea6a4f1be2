// Package chunk splits extracted text into overlapping bounded-size chunks.
// Chunks are ordered: chunk i semantically precedes chunk i+1, and the
// concatenation of chunks (ignoring overlap words) reconstructs the original
// sentence sequence.
package chunk

import (
	"regexp"
	"strings"
)

// QAPairMaxSize is the length ceiling below which Q&A content is emitted as
// a single chunk instead of being split.
const QAPairMaxSize = 1000

// avgWordLength approximates characters per word when converting the overlap
// size (characters) into a word count. The exact overlap is a tunable
// approximation, not a guaranteed character count.
const avgWordLength = 6

// Chunk is one bounded substring of a document's extracted text.
type Chunk struct {
	ID       int
	Text     string
	Metadata map[string]string
}

// Chunker produces sentence-aligned chunks with word overlap.
type Chunker struct {
	maxChunkSize int
	overlapSize  int
	splitter     *regexp.Regexp
}

// New creates a Chunker. maxChunkSize bounds chunk length in characters;
// overlapSize controls how much of the previous chunk seeds the next one.
func New(maxChunkSize, overlapSize int) *Chunker {
	if maxChunkSize <= 0 {
		maxChunkSize = 1000
	}
	if overlapSize < 0 {
		overlapSize = 0
	}
	return &Chunker{
		maxChunkSize: maxChunkSize,
		overlapSize:  overlapSize,
		splitter:     regexp.MustCompile(`[.!?]+`),
	}
}

// Split breaks text into sentence-aligned chunks. Sentences are accumulated
// greedily; when a sentence would overflow maxChunkSize the current chunk is
// closed and the next one is seeded with the trailing overlap words. A single
// sentence longer than maxChunkSize becomes its own chunk.
func (c *Chunker) Split(text string) []Chunk {
	sentences := c.splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []Chunk
	var buffer string
	for _, sentence := range sentences {
		if buffer == "" {
			buffer = sentence
			continue
		}
		if len(buffer)+len(sentence)+1 <= c.maxChunkSize {
			buffer = buffer + " " + sentence
			continue
		}
		chunks = append(chunks, Chunk{ID: len(chunks), Text: buffer + "."})
		buffer = c.overlapSeed(buffer, sentence)
	}
	if strings.TrimSpace(buffer) != "" {
		chunks = append(chunks, Chunk{ID: len(chunks), Text: buffer + "."})
	}
	return chunks
}

// SplitQA emits Q&A content as a single tagged chunk when it fits under
// QAPairMaxSize, otherwise falls back to regular chunking.
func (c *Chunker) SplitQA(question, answer string) []Chunk {
	combined := "Question: " + question + "\nAnswer: " + answer
	if len(combined) <= QAPairMaxSize {
		return []Chunk{{
			ID:   0,
			Text: combined,
			Metadata: map[string]string{
				"type":     "qa_pair",
				"question": question,
				"answer":   answer,
			},
		}}
	}
	return c.Split(combined)
}

// splitSentences splits on ., !, ? boundaries and discards empties.
func (c *Chunker) splitSentences(text string) []string {
	parts := c.splitter.Split(text, -1)
	sentences := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			sentences = append(sentences, trimmed)
		}
	}
	return sentences
}

// overlapSeed builds the opening of a new chunk: the last overlapSize/6
// whitespace-delimited words of the closed buffer, rejoined, then the
// sentence that triggered the split.
func (c *Chunker) overlapSeed(closed, sentence string) string {
	overlapWords := c.overlapSize / avgWordLength
	if overlapWords <= 0 {
		return sentence
	}
	words := strings.Fields(closed)
	if len(words) > overlapWords {
		words = words[len(words)-overlapWords:]
	}
	return strings.Join(words, " ") + ". " + sentence
}
