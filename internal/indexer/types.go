package indexer

// TextChunk is a bounded, overlap-aware slice of a document's text, the
// atomic unit of retrieval.
type TextChunk struct {
	Content    string // Trimmed chunk text
	Index      int    // Zero-based position within the document
	TokenCount int    // Cheap estimate: ceil(runes/4), not a real tokenizer
}
