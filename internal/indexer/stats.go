package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
)

// ChunkerVersion identifies the chunking implementation. Bump it when the
// cut heuristics change so stale indexes can be detected.
const ChunkerVersion = "v1.0"

// CoverageStats describes the current state of the index.
type CoverageStats struct {
	// DocsProcessed is the total number of indexed documents.
	DocsProcessed int `json:"docs_processed"`
	// DocsWithoutChunks is the number of documents that produced 0 chunks.
	DocsWithoutChunks int `json:"docs_without_chunks"`
	// ChunksStored is the number of chunks currently in the index.
	ChunksStored int `json:"chunks_stored"`
	// TokenStats summarizes estimated token counts per chunk.
	TokenStats TokenStats `json:"token_stats"`
	// ChunkerVersion is the version of the chunker used.
	ChunkerVersion string `json:"chunker_version"`
	// IndexVersion is a hash identifying the index build
	// (chunker + embedding model + chunking params).
	IndexVersion string `json:"index_version"`
}

// TokenStats summarizes token counts across chunks.
type TokenStats struct {
	Min  int     `json:"min"`
	Max  int     `json:"max"`
	Mean float64 `json:"mean"`
	P95  int     `json:"p95"`
}

// CoverageStats computes index coverage statistics from the database.
func (p *Pipeline) CoverageStats(ctx context.Context, embeddingModel string) (*CoverageStats, error) {
	stats := &CoverageStats{ChunkerVersion: ChunkerVersion}

	var err error
	if stats.DocsProcessed, err = p.documents.Count(ctx); err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	if stats.DocsWithoutChunks, err = p.documents.CountWithoutChunks(ctx); err != nil {
		return nil, fmt.Errorf("failed to count empty documents: %w", err)
	}

	tokenCounts, err := p.chunks.TokenCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load token counts: %w", err)
	}
	stats.ChunksStored = len(tokenCounts)
	stats.TokenStats = computeTokenStats(tokenCounts)

	versionInput := fmt.Sprintf("%s|%s|size=%d|overlap=%d",
		ChunkerVersion, embeddingModel, p.chunker.Size, p.chunker.Overlap)
	hash := sha256.Sum256([]byte(versionInput))
	stats.IndexVersion = hex.EncodeToString(hash[:])[:16]

	return stats, nil
}

// computeTokenStats computes min, max, mean, and p95 from token counts.
func computeTokenStats(tokenCounts []int) TokenStats {
	if len(tokenCounts) == 0 {
		return TokenStats{}
	}

	sorted := make([]int, len(tokenCounts))
	copy(sorted, tokenCounts)
	sort.Ints(sorted)

	sum := 0
	for _, count := range sorted {
		sum += count
	}
	mean := float64(sum) / float64(len(sorted))

	p95Index := int(math.Ceil(float64(len(sorted)) * 0.95))
	if p95Index >= len(sorted) {
		p95Index = len(sorted) - 1
	}

	return TokenStats{
		Min:  sorted[0],
		Max:  sorted[len(sorted)-1],
		Mean: math.Round(mean*100) / 100,
		P95:  sorted[p95Index],
	}
}
