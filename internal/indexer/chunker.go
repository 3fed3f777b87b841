package indexer

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultChunkSize is the target chunk length in runes.
	DefaultChunkSize = 1200
	// DefaultChunkOverlap is how many runes consecutive chunks share.
	DefaultChunkOverlap = 220

	// A boundary cut is only taken if it keeps the chunk substantial.
	paragraphMinAdvance = 250
	sentenceMinAdvance  = 200
)

var blankLines = regexp.MustCompile(`\n{3,}`)

// Chunker splits normalized document text into overlapping, boundary-aware
// segments. Cuts prefer paragraph breaks, then sentence terminators, then a
// hard cut at the size limit.
type Chunker struct {
	Size    int
	Overlap int
}

// NewChunker creates a chunker. Non-positive size or overlap fall back to
// the defaults.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap <= 0 {
		overlap = DefaultChunkOverlap
	}
	return &Chunker{Size: size, Overlap: overlap}
}

// NormalizeText canonicalizes line endings and whitespace: CRLF to LF,
// non-breaking spaces to plain spaces, runs of 3+ newlines collapsed to a
// paragraph break, and the whole text trimmed.
func NormalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\u00a0", " ")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Split chunks the text. Empty or whitespace-only input yields an empty
// slice. The cursor always advances by at least one rune, so irregular
// inputs cannot loop.
func (c *Chunker) Split(text string) []TextChunk {
	normalized := NormalizeText(text)
	if normalized == "" {
		return []TextChunk{}
	}

	runes := []rune(normalized)
	length := len(runes)

	var chunks []TextChunk
	cursor := 0
	for cursor < length {
		end := cursor + c.Size
		if end < length {
			end = c.cutPoint(runes, cursor, end)
		} else {
			end = length
		}

		content := strings.TrimSpace(string(runes[cursor:end]))
		if content != "" {
			chunks = append(chunks, TextChunk{
				Content:    content,
				Index:      len(chunks),
				TokenCount: estimateTokens(content),
			})
		}

		if end >= length {
			break
		}
		next := end - c.Overlap
		if next <= cursor {
			next = cursor + 1
		}
		cursor = next
	}

	return chunks
}

// cutPoint finds the best cut at or before maxEnd: the last paragraph break
// if it leaves more than paragraphMinAdvance runes, else the last sentence
// terminator past sentenceMinAdvance, else maxEnd itself.
func (c *Chunker) cutPoint(runes []rune, cursor, maxEnd int) int {
	for i := maxEnd - 2; i > cursor+paragraphMinAdvance; i-- {
		if runes[i] == '\n' && runes[i+1] == '\n' {
			return i
		}
	}
	for i := maxEnd - 2; i > cursor+sentenceMinAdvance; i-- {
		if runes[i+1] == ' ' && (runes[i] == '.' || runes[i] == '?' || runes[i] == '!') {
			return i + 2
		}
	}
	return maxEnd
}

// estimateTokens approximates token count as ceil(runes/4).
func estimateTokens(text string) int {
	runeCount := utf8.RuneCountInString(text)
	return (runeCount + 3) / 4
}
