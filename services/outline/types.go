// Package outline extracts a live, hierarchical symbol outline from C/C++
// source buffers and keeps it synchronized with edits.
//
// The package is organized as a pipeline: host change notifications are
// translated into tree-sitter edit descriptors (edit.go), a debounced
// scheduler drives incremental reparses (scheduler.go), the collector walks
// the resulting AST into a forest of SymbolNode (collector.go), and the tree
// manager reconciles that forest against the previously displayed one so
// expand/selection state survives rebuilds (tree.go).
//
// Design principles:
//   - The AST and its source snapshot are owned exclusively by a ParseState;
//     node handles never outlive the owning state
//   - Traversal context is an explicit value, copied per recursive call,
//     never ambient mutable state
//   - No map[string]interface{} - concrete types only
package outline

import (
	"encoding/json"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// SymbolKind represents the type of code symbol extracted from C/C++ source.
type SymbolKind int

const (
	// KindUnknown indicates an unrecognized or unparseable symbol.
	KindUnknown SymbolKind = iota

	// KindNamespace represents a namespace definition.
	KindNamespace

	// KindClass represents a class definition.
	KindClass

	// KindStruct represents a struct definition.
	KindStruct

	// KindUnion represents a union definition.
	KindUnion

	// KindEnum represents an enum or enum class definition.
	KindEnum

	// KindEnumMember represents a single enumerator inside an enum.
	KindEnumMember

	// KindFunction represents a function or method, free or member,
	// definition or bare prototype.
	KindFunction

	// KindField represents a data member of a class/struct/union.
	KindField

	// KindVariable represents a namespace- or file-scope variable.
	KindVariable

	// KindMacro represents a preprocessor object or function macro.
	KindMacro

	// KindTypeDef represents a typedef declaration.
	KindTypeDef

	// KindUsingAlias represents a C++ using alias (using X = Y).
	KindUsingAlias
)

// symbolKindNames maps SymbolKind values to their string representations.
var symbolKindNames = map[SymbolKind]string{
	KindUnknown:    "unknown",
	KindNamespace:  "namespace",
	KindClass:      "class",
	KindStruct:     "struct",
	KindUnion:      "union",
	KindEnum:       "enum",
	KindEnumMember: "enum_member",
	KindFunction:   "function",
	KindField:      "field",
	KindVariable:   "variable",
	KindMacro:      "macro",
	KindTypeDef:    "typedef",
	KindUsingAlias: "using_alias",
}

// String returns the string representation of the SymbolKind.
//
// Returns "unknown" for unrecognized values.
func (k SymbolKind) String() string {
	if name, ok := symbolKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON implements json.Marshaler for SymbolKind.
//
// Serializes the kind as a JSON string (e.g., "function") rather than
// a number for better readability and forward compatibility.
func (k SymbolKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON implements json.Unmarshaler for SymbolKind.
//
// Accepts both string values (e.g., "function") and numeric values
// for backward compatibility.
func (k *SymbolKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*k = ParseSymbolKind(s)
		return nil
	}

	var i int
	if err := json.Unmarshal(data, &i); err != nil {
		return fmt.Errorf("SymbolKind must be string or int: %w", err)
	}
	*k = SymbolKind(i)
	return nil
}

// ParseSymbolKind converts a string to a SymbolKind.
//
// Returns KindUnknown if the string is not recognized.
func ParseSymbolKind(s string) SymbolKind {
	for kind, name := range symbolKindNames {
		if name == s {
			return kind
		}
	}
	return KindUnknown
}

// AccessLevel represents C++ member access.
type AccessLevel int

const (
	// AccessPublic is the default inside struct, union, and namespace scope.
	AccessPublic AccessLevel = iota

	// AccessProtected is only ever set by an explicit access specifier.
	AccessProtected

	// AccessPrivate is the default inside class scope.
	AccessPrivate
)

// String returns the lowercase keyword for the access level.
func (a AccessLevel) String() string {
	switch a {
	case AccessProtected:
		return "protected"
	case AccessPrivate:
		return "private"
	default:
		return "public"
	}
}

// MarshalJSON implements json.Marshaler for AccessLevel.
func (a AccessLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON implements json.Unmarshaler for AccessLevel.
//
// Accepts both string values (e.g., "private") and numeric values
// for backward compatibility.
func (a *AccessLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = ParseAccessLevel(s)
		return nil
	}

	var i int
	if err := json.Unmarshal(data, &i); err != nil {
		return fmt.Errorf("AccessLevel must be string or int: %w", err)
	}
	*a = AccessLevel(i)
	return nil
}

// ParseAccessLevel converts an access-specifier keyword to an AccessLevel.
//
// Unrecognized input returns AccessPublic.
func ParseAccessLevel(s string) AccessLevel {
	switch strings.TrimSpace(s) {
	case "private":
		return AccessPrivate
	case "protected":
		return AccessProtected
	default:
		return AccessPublic
	}
}

// SymbolNode is one entry in the outline forest.
//
// Line numbers are 1-indexed, columns 0-indexed, matching the convention
// used by most editors and LSP. Children appear in source order; they are
// only re-ordered by the tree manager when sorting is enabled.
//
// Expanded, Selected, and Visible are transient UI state. They are not part
// of a node's semantic identity; they are re-associated across rebuilds via
// StableKey.
type SymbolNode struct {
	// Kind indicates what type of symbol this is.
	Kind SymbolKind `json:"kind"`

	// Access is the member access level at the point of declaration.
	Access AccessLevel `json:"access"`

	// Name is the composed display name, e.g. "int Foo::Bar(int, char*)".
	// Built from return type + qualified name + parameter list.
	Name string `json:"name"`

	// StartLine is the 1-indexed line where the symbol starts.
	StartLine int `json:"start_line"`

	// StartCol is the 0-indexed column where the symbol starts.
	StartCol int `json:"start_col"`

	// EndLine is the 1-indexed line where the symbol ends.
	EndLine int `json:"end_line"`

	// Declaration is true for bare prototypes (no body).
	Declaration bool `json:"declaration,omitempty"`

	// Children contains nested symbols in source order.
	Children []*SymbolNode `json:"children,omitempty"`

	// Expanded is transient UI state, preserved across rebuilds by key.
	Expanded bool `json:"expanded"`

	// Selected is transient UI state, cleared on every rebuild unless
	// re-applied by follow-cursor.
	Selected bool `json:"selected"`

	// Visible is transient UI state set by the filter pass.
	Visible bool `json:"visible"`
}

// StableKey derives a deterministic key used solely to re-associate transient
// UI state across a tree that was rebuilt from scratch.
//
// The key is the parent's key plus "kind:name". It is NOT a semantic
// identifier: two overloads with identical display names collide, which is an
// accepted limitation.
func (n *SymbolNode) StableKey(parentKey string) string {
	own := n.Kind.String() + ":" + n.Name
	if parentKey == "" {
		return own
	}
	return parentKey + "/" + own
}

// ContainsLine reports whether the 1-indexed line falls within the node's
// line range, inclusive on both ends.
func (n *SymbolNode) ContainsLine(line int) bool {
	return line >= n.StartLine && line <= n.EndLine
}

// ValidationError represents a validation failure with field context.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the node's invariants.
//
// Returns nil if valid, or a ValidationError describing the first violation.
//
// Validates:
//   - Name is non-empty
//   - StartLine is positive (1-indexed)
//   - EndLine >= StartLine
//   - StartCol is non-negative (0-indexed)
//   - Every child range is contained within this node's range
func (n *SymbolNode) Validate() error {
	if n.Name == "" {
		return ValidationError{Field: "Name", Message: "must not be empty"}
	}

	if n.StartLine < 1 {
		return ValidationError{Field: "StartLine", Message: "must be >= 1 (1-indexed)"}
	}

	if n.EndLine < n.StartLine {
		return ValidationError{Field: "EndLine", Message: "must be >= StartLine"}
	}

	if n.StartCol < 0 {
		return ValidationError{Field: "StartCol", Message: "must be >= 0 (0-indexed)"}
	}

	for i, child := range n.Children {
		if child.StartLine < n.StartLine || child.EndLine > n.EndLine {
			return ValidationError{
				Field:   fmt.Sprintf("Children[%d]", i),
				Message: "range not contained within parent",
			}
		}
		if err := child.Validate(); err != nil {
			return ValidationError{
				Field:   fmt.Sprintf("Children[%d]", i),
				Message: err.Error(),
			}
		}
	}

	return nil
}

// EditDescriptor is one contiguous text mutation expressed in the units
// tree-sitter expects: byte offsets plus (row, column) points computed
// against the pre-edit and post-edit line maps.
type EditDescriptor struct {
	// StartIndex is the byte offset where the change begins.
	StartIndex uint32 `json:"start_index"`

	// OldEndIndex is the byte offset where the replaced region ended.
	OldEndIndex uint32 `json:"old_end_index"`

	// NewEndIndex is the byte offset where the inserted region ends.
	NewEndIndex uint32 `json:"new_end_index"`

	// StartPoint is StartIndex located in the pre-edit snapshot.
	StartPoint sitter.Point `json:"start_point"`

	// OldEndPoint is OldEndIndex located in the pre-edit snapshot.
	OldEndPoint sitter.Point `json:"old_end_point"`

	// NewEndPoint is NewEndIndex located in the post-edit snapshot.
	NewEndPoint sitter.Point `json:"new_end_point"`
}

// EditInput converts the descriptor to tree-sitter's native edit struct.
func (e EditDescriptor) EditInput() sitter.EditInput {
	return sitter.EditInput{
		StartIndex:  e.StartIndex,
		OldEndIndex: e.OldEndIndex,
		NewEndIndex: e.NewEndIndex,
		StartPoint:  e.StartPoint,
		OldEndPoint: e.OldEndPoint,
		NewEndPoint: e.NewEndPoint,
	}
}

// CollectResult contains the output of one parse-and-collect cycle for a
// single source buffer.
//
// Note: All timestamps are int64 UnixMilli per project conventions.
type CollectResult struct {
	// Path is the path of the parsed document.
	Path string `json:"path"`

	// Language is the grammar used: "cpp" or "c".
	Language string `json:"language"`

	// Symbols is the extracted forest in source order.
	Symbols []*SymbolNode `json:"symbols"`

	// ParsedAtMilli is the Unix timestamp in milliseconds when parsing completed.
	ParsedAtMilli int64 `json:"parsed_at_milli"`

	// ParseDurationMs is how long the parse-and-collect cycle took.
	ParseDurationMs int64 `json:"parse_duration_ms"`

	// Errors contains non-fatal problems encountered during collection.
	// The result may still contain partial symbols despite errors.
	Errors []string `json:"errors,omitempty"`

	// Hash is the SHA256 hash of the source content at parse time.
	Hash string `json:"hash"`
}

// HasErrors returns true if the result contains any non-fatal errors.
func (r *CollectResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// MaxSymbolDepth is the maximum nesting depth for symbol traversal.
// This prevents stack overflow from maliciously crafted input.
const MaxSymbolDepth = 100

// SymbolCount returns the total number of symbols including nested children,
// up to MaxSymbolDepth levels.
//
// Uses an iterative approach with an explicit stack to prevent stack
// overflow from deeply nested symbol hierarchies.
func (r *CollectResult) SymbolCount() int {
	if r.Symbols == nil {
		return 0
	}

	type stackEntry struct {
		symbols []*SymbolNode
		depth   int
	}

	count := 0
	stack := []stackEntry{{symbols: r.Symbols, depth: 0}}

	for len(stack) > 0 {
		entry := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, s := range entry.symbols {
			count++
			if s.Children != nil && entry.depth < MaxSymbolDepth {
				stack = append(stack, stackEntry{
					symbols: s.Children,
					depth:   entry.depth + 1,
				})
			}
		}
	}

	return count
}

// Validate checks every symbol in the result.
func (r *CollectResult) Validate() error {
	for i, sym := range r.Symbols {
		if err := sym.Validate(); err != nil {
			return ValidationError{
				Field:   fmt.Sprintf("Symbols[%d]", i),
				Message: err.Error(),
			}
		}
	}
	return nil
}

// Snapshot is the value handed to UI-facing collaborators: the reconciled
// forest plus the status line shown when no forest is available.
type Snapshot struct {
	// Status is StatusNoDocument, StatusUnsupported, or the active
	// document's filename once an outline is populated.
	Status string `json:"status"`

	// Generation increments on every applied parse result. Collaborators
	// use it to discard out-of-order updates.
	Generation uint64 `json:"generation"`

	// Roots is the reconciled symbol forest. Nil when Status indicates
	// no outline.
	Roots []*SymbolNode `json:"roots,omitempty"`
}

// Status strings surfaced to collaborators when no outline is available.
const (
	// StatusNoDocument is shown before any document has been opened.
	StatusNoDocument = "no active document"

	// StatusUnsupported is shown for documents outside the supported
	// extension set.
	StatusUnsupported = "no outline for this file type"
)

// NavigationTarget is emitted when an outline node is activated.
type NavigationTarget struct {
	// Line is the 1-indexed line of the symbol's start.
	Line int `json:"line"`

	// Column is the 0-indexed column of the symbol's start.
	Column int `json:"column"`
}
