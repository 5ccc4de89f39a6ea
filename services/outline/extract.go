package outline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Extract runs one full parse-and-collect cycle over a source buffer and
// returns the annotated result.
//
// Description:
//
//	Extract is the one-shot entry point for batch consumers (CLI printing,
//	indexers) that do not need a live session. The returned CollectResult
//	carries the symbol forest plus provenance: the grammar used, timings,
//	and a content hash so callers can detect whether a cached result is
//	still current.
//
// Inputs:
//   - ctx: Context for cancellation.
//   - path: Document path; selects the grammar.
//   - content: Raw source bytes.
//
// Outputs:
//   - *CollectResult: Symbols plus provenance. Never nil on nil error.
//   - error: ErrUnsupportedFile, ErrFileTooLarge, ErrInvalidContent, or a
//     context error.
func Extract(ctx context.Context, path string, content []byte) (*CollectResult, error) {
	parser := NewParser()

	start := time.Now()
	tree, err := parser.ParseFull(ctx, content, path)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	symbols, errs := NewCollector().Collect(tree.RootNode(), content)
	elapsed := time.Since(start)

	sum := sha256.Sum256(content)

	result := &CollectResult{
		Path:            path,
		Language:        parser.LanguageName(path),
		Symbols:         symbols,
		ParsedAtMilli:   time.Now().UnixMilli(),
		ParseDurationMs: elapsed.Milliseconds(),
		Errors:          errs,
		Hash:            hex.EncodeToString(sum[:]),
	}

	recordParseMetrics(ctx, result.Language, elapsed, result.SymbolCount(), true)
	return result, nil
}
