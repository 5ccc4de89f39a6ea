package outline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
)

// File size constants for security validation.
const (
	// DefaultMaxFileSize is the maximum file size the parser will accept (10MB).
	DefaultMaxFileSize = 10 * 1024 * 1024

	// WarnFileSize is the threshold at which a warning is logged (1MB).
	WarnFileSize = 1 * 1024 * 1024
)

// ErrFileTooLarge is returned when input content exceeds the maximum file size.
var ErrFileTooLarge = errors.New("file exceeds maximum size limit")

// ErrInvalidContent is returned when input content is not valid UTF-8.
var ErrInvalidContent = errors.New("invalid content")

// ErrUnsupportedFile is returned for documents outside the supported
// extension set.
var ErrUnsupportedFile = errors.New("unsupported file type")

// ErrNoTree is returned when tree-sitter produces no tree at all.
var ErrNoTree = errors.New("parser returned no tree")

// cppExtensions are extensions parsed with the C++ grammar. Headers are
// parsed as C++ as well: a C header is almost always valid C++, while the
// reverse is not true.
var cppExtensions = map[string]bool{
	".cc":  true,
	".cpp": true,
	".cxx": true,
	".h":   true,
	".hpp": true,
	".hxx": true,
	".inl": true,
	".ipp": true,
	".tpp": true,
}

// cExtensions are extensions parsed with the plain C grammar.
var cExtensions = map[string]bool{
	".c": true,
}

// IsSupportedPath reports whether the document at path can produce an
// outline.
func IsSupportedPath(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return cppExtensions[ext] || cExtensions[ext]
}

// SupportedExtensions returns the full supported extension set, sorted by
// convention (C first, then C++).
func SupportedExtensions() []string {
	return []string{".c", ".cc", ".cpp", ".cxx", ".h", ".hpp", ".hxx", ".inl", ".ipp", ".tpp"}
}

// ParserOption configures a Parser instance.
type ParserOption func(*Parser)

// WithMaxFileSize sets the maximum file size the parser will accept.
//
// Parameters:
//   - bytes: Maximum file size in bytes. Must be positive.
//
// Example:
//
//	parser := NewParser(WithMaxFileSize(5 * 1024 * 1024)) // 5MB limit
func WithMaxFileSize(bytes int64) ParserOption {
	return func(p *Parser) {
		if bytes > 0 {
			p.maxFileSize = bytes
		}
	}
}

// Parser parses C and C++ source buffers with tree-sitter.
//
// Description:
//
//	Parser selects the C or C++ grammar per file extension and produces
//	tree-sitter trees, either from scratch or incrementally from a previous
//	tree that has had the pending edits applied. It supports concurrent use
//	from multiple goroutines - each parse call creates its own tree-sitter
//	parser instance internally.
//
// Thread Safety:
//
//	Parser instances are safe for concurrent use. Note that a *sitter.Tree
//	passed as the previous tree for an incremental parse must not be shared
//	with concurrent callers; tree ownership is the caller's concern (see
//	ParseState).
type Parser struct {
	maxFileSize int64
}

// NewParser creates a new Parser with the given options.
//
// Outputs:
//   - *Parser: Configured parser instance, never nil
//
// Thread Safety:
//
//	The returned Parser is safe for concurrent use.
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{
		maxFileSize: DefaultMaxFileSize,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// LanguageName returns the grammar name used for path: "cpp", "c", or ""
// for unsupported files.
func (p *Parser) LanguageName(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case cExtensions[ext]:
		return "c"
	case cppExtensions[ext]:
		return "cpp"
	default:
		return ""
	}
}

// languageFor maps a document path to its tree-sitter grammar.
func (p *Parser) languageFor(path string) (*sitter.Language, error) {
	switch p.LanguageName(path) {
	case "c":
		return c.GetLanguage(), nil
	case "cpp":
		return cpp.GetLanguage(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, filepath.Ext(path))
	}
}

// ParseFull parses content from scratch.
//
// Description:
//
//	ParseFull runs a complete parse of the buffer, producing a new tree that
//	the caller owns (and must Close). Used for newly opened documents and for
//	explicit invalidation; the result is error-tolerant and usable even when
//	the source contains syntax errors.
//
// Inputs:
//   - ctx: Context for cancellation. Checked before and after parsing.
//     Note: Tree-sitter parsing itself cannot be interrupted mid-parse.
//   - content: Raw source bytes. Must be valid UTF-8.
//   - path: Document path; selects the grammar and appears in log output.
//
// Outputs:
//   - *sitter.Tree: The parsed tree. Caller owns it and must Close it.
//   - error: ErrFileTooLarge, ErrInvalidContent, ErrUnsupportedFile,
//     ErrNoTree, or a context error.
func (p *Parser) ParseFull(ctx context.Context, content []byte, path string) (*sitter.Tree, error) {
	return p.parse(ctx, nil, content, path)
}

// ParseIncremental re-parses content against a previous tree.
//
// Description:
//
//	The previous tree must already have had every pending EditDescriptor
//	applied via Tree.Edit, and content must be the post-edit source the
//	edits describe. Tree-sitter reuses unchanged subtrees, making this far
//	cheaper than a full parse for localized edits.
//
// Outputs:
//   - *sitter.Tree: A new tree. The previous tree remains owned by the
//     caller and should be closed once the new tree is installed.
//   - error: Same failure modes as ParseFull.
func (p *Parser) ParseIncremental(ctx context.Context, oldTree *sitter.Tree, content []byte, path string) (*sitter.Tree, error) {
	return p.parse(ctx, oldTree, content, path)
}

// parse is the shared implementation behind ParseFull and ParseIncremental.
func (p *Parser) parse(ctx context.Context, oldTree *sitter.Tree, content []byte, path string) (*sitter.Tree, error) {
	// Check context before starting
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}

	// Validate file size
	if int64(len(content)) > p.maxFileSize {
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, len(content), p.maxFileSize)
	}

	// Log warning for large files
	if len(content) > WarnFileSize {
		slog.Warn("parsing large file",
			slog.String("file", path),
			slog.Int("size_bytes", len(content)))
	}

	// Validate UTF-8
	if !utf8.Valid(content) {
		return nil, fmt.Errorf("%w: content is not valid UTF-8", ErrInvalidContent)
	}

	lang, err := p.languageFor(path)
	if err != nil {
		return nil, err
	}

	// Create tree-sitter parser (new instance per call for thread safety)
	parser := sitter.NewParser()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, oldTree, content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	if tree == nil || tree.RootNode() == nil {
		return nil, ErrNoTree
	}

	// Check context after parsing
	if err := ctx.Err(); err != nil {
		tree.Close()
		return nil, fmt.Errorf("parse canceled after tree-sitter: %w", err)
	}

	return tree, nil
}
