package outline

import (
	"fmt"
	"log/slog"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// anonymousName is the display name for unnamed namespaces, types, and enums.
const anonymousName = "<anonymous>"

// walkContext is the traversal context threaded through the collector's
// recursive descent. It is passed by value and copied, never mutated in
// place, so state cannot leak across sibling branches.
type walkContext struct {
	// scopePath is the ordered list of enclosing namespace/type names from
	// the root down to the current node.
	scopePath []string

	// access is the running member access level. Default Private inside
	// class bodies, Public everywhere else.
	access AccessLevel

	// insideFunctionBody is true while descending a function body. C++
	// forbids nested function definitions, so any function-like node seen
	// with this flag set is a parser misinterpretation and is skipped.
	insideFunctionBody bool

	// enclosingTypeName is the name of the nearest enclosing
	// class/struct/union, used to recognize constructors.
	enclosingTypeName string

	// depth guards against pathological nesting.
	depth int
}

// pushScope returns a copy of the context with name appended to the scope
// path. The original's slice is never aliased for writing.
func (wc walkContext) pushScope(name string) walkContext {
	path := make([]string, 0, len(wc.scopePath)+1)
	path = append(path, wc.scopePath...)
	path = append(path, name)
	wc.scopePath = path
	wc.depth++
	return wc
}

// Collector walks a tree-sitter C/C++ AST into an ordered forest of
// SymbolNode.
//
// Description:
//
//	Collection is a pure function of the (tree, source) pair: calling
//	Collect twice on the same immutable inputs yields structurally
//	identical forests. The collector never mutates the tree.
//
// Failure semantics:
//
//	Any unrecoverable error while traversing one subtree is caught, logged,
//	and treated as "that subtree produced no symbols"; traversal continues
//	with siblings rather than aborting the whole collection.
//
// Thread Safety:
//
//	Collector is stateless and safe for concurrent use, provided no two
//	goroutines share the same *sitter.Tree.
type Collector struct{}

// NewCollector creates a Collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Collect extracts the symbol forest from the tree rooted at root.
//
// Inputs:
//   - root: the tree's root node. Must belong to a live tree.
//   - source: the exact source text the tree was parsed from.
//
// Outputs:
//   - forest of SymbolNode in source order
//   - non-fatal error strings for subtrees that were skipped
func (c *Collector) Collect(root *sitter.Node, source []byte) ([]*SymbolNode, []string) {
	if root == nil {
		return nil, nil
	}

	run := &collectRun{src: source}
	wc := walkContext{access: AccessPublic}
	nodes, _ := run.walkSiblings(root, wc)
	return nodes, run.errs
}

// collectRun holds per-collection state: the source text and accumulated
// non-fatal errors.
type collectRun struct {
	src  []byte
	errs []string
}

// walkSiblings visits the named children of parent in order, threading the
// running access level across siblings. Preprocessor conditionals are
// transparent: the walk recurses straight through them, and an access
// specifier inside a conditional branch continues to apply to the siblings
// that follow it, across #ifdef/#else boundaries.
//
// Returns the collected nodes and the context as left by the last sibling
// (access may have advanced).
func (r *collectRun) walkSiblings(parent *sitter.Node, wc walkContext) ([]*SymbolNode, walkContext) {
	if wc.depth > MaxSymbolDepth {
		r.errs = append(r.errs, "max traversal depth exceeded")
		return nil, wc
	}

	var out []*SymbolNode
	for i := 0; i < int(parent.NamedChildCount()); i++ {
		child := parent.NamedChild(i)

		switch child.Type() {
		case "access_specifier":
			wc.access = ParseAccessLevel(strings.TrimSuffix(child.Content(r.src), ":"))

		case "preproc_if", "preproc_ifdef", "preproc_else", "preproc_elif", "preproc_elifdef":
			var nested []*SymbolNode
			nested, wc = r.walkSiblings(child, wc)
			out = append(out, nested...)

		default:
			out = append(out, r.safeVisit(child, wc)...)
		}
	}
	return out, wc
}

// safeVisit dispatches one node, converting a panic in that subtree into a
// logged skip.
func (r *collectRun) safeVisit(n *sitter.Node, wc walkContext) (nodes []*SymbolNode) {
	defer func() {
		if rec := recover(); rec != nil {
			msg := fmt.Sprintf("skipping subtree %q at line %d: %v", n.Type(), n.StartPoint().Row+1, rec)
			slog.Error("symbol collection anomaly", slog.String("detail", msg))
			r.errs = append(r.errs, msg)
			nodes = nil
		}
	}()
	return r.visitNode(n, wc)
}

// visitNode dispatches a single named node by type.
func (r *collectRun) visitNode(n *sitter.Node, wc walkContext) []*SymbolNode {
	switch n.Type() {
	case "namespace_definition":
		return r.collectNamespace(n, wc)

	case "class_specifier", "struct_specifier", "union_specifier":
		if node := r.collectType(n, wc); node != nil {
			return []*SymbolNode{node}
		}
		return nil

	case "enum_specifier":
		if node := r.collectEnum(n, wc); node != nil {
			return []*SymbolNode{node}
		}
		return nil

	case "function_definition":
		return r.collectFunction(n, wc)

	case "declaration":
		return r.collectDeclaration(n, wc)

	case "field_declaration":
		return r.collectField(n, wc)

	case "template_declaration":
		return r.collectTemplate(n, wc)

	case "linkage_specification":
		return r.collectLinkage(n, wc)

	case "preproc_def", "preproc_function_def":
		if node := r.collectMacro(n, wc); node != nil {
			return []*SymbolNode{node}
		}
		return nil

	case "type_definition":
		return r.collectTypedef(n, wc)

	case "alias_declaration":
		if node := r.collectAlias(n, wc); node != nil {
			return []*SymbolNode{node}
		}
		return nil

	case "declaration_list":
		nodes, _ := r.walkSiblings(n, wc)
		return nodes

	case "ERROR":
		// Error-tolerant: declarations inside a damaged region still count.
		nodes, _ := r.walkSiblings(n, wc)
		return nodes

	default:
		// Inside a function body, statements are transparent so that local
		// type definitions are still discovered. At file scope unknown
		// nodes are leaves.
		if wc.insideFunctionBody && n.NamedChildCount() > 0 {
			nodes, _ := r.walkSiblings(n, wc)
			return nodes
		}
		return nil
	}
}

// collectNamespace emits a namespace container and recurses into its body.
func (r *collectRun) collectNamespace(n *sitter.Node, wc walkContext) []*SymbolNode {
	name := anonymousName
	if nameNode := n.ChildByFieldName("name"); nameNode != nil {
		name = nameNode.Content(r.src)
	}

	node := newSymbolNode(KindNamespace, name, AccessPublic, n)

	if body := n.ChildByFieldName("body"); body != nil {
		inner := wc.pushScope(name)
		inner.access = AccessPublic
		node.Children, _ = r.walkSiblings(body, inner)
	}

	return []*SymbolNode{node}
}

// collectType emits a class/struct/union container.
//
// Forward declarations (no body) are skipped. Member functions nested under
// a type are always legitimate even when the type itself is declared inside
// a function body, so insideFunctionBody resets here.
func (r *collectRun) collectType(n *sitter.Node, wc walkContext) *SymbolNode {
	body := n.ChildByFieldName("body")
	if body == nil {
		return nil
	}

	name := anonymousName
	if nameNode := n.ChildByFieldName("name"); nameNode != nil {
		name = nameNode.Content(r.src)
	}

	var kind SymbolKind
	defaultAccess := AccessPublic
	switch n.Type() {
	case "class_specifier":
		kind = KindClass
		defaultAccess = AccessPrivate
	case "struct_specifier":
		kind = KindStruct
	default:
		kind = KindUnion
	}

	node := newSymbolNode(kind, name, wc.access, n)

	inner := wc.pushScope(name)
	inner.access = defaultAccess
	inner.insideFunctionBody = false
	inner.enclosingTypeName = name
	node.Children, _ = r.walkSiblings(body, inner)

	return node
}

// collectEnum emits an enum container with one EnumMember child per
// enumerator.
func (r *collectRun) collectEnum(n *sitter.Node, wc walkContext) *SymbolNode {
	body := n.ChildByFieldName("body")
	if body == nil {
		return nil
	}

	name := anonymousName
	if nameNode := n.ChildByFieldName("name"); nameNode != nil {
		name = nameNode.Content(r.src)
	}

	node := newSymbolNode(KindEnum, name, wc.access, n)

	for i := 0; i < int(body.NamedChildCount()); i++ {
		child := body.NamedChild(i)
		if child.Type() != "enumerator" {
			continue
		}
		memberName := child.Content(r.src)
		if nameNode := child.ChildByFieldName("name"); nameNode != nil {
			memberName = nameNode.Content(r.src)
		}
		node.Children = append(node.Children,
			newSymbolNode(KindEnumMember, memberName, wc.access, child))
	}

	return node
}

// collectFunction emits a function definition, provided it survives the
// macro-vs-function test, and descends into its body for local types.
func (r *collectRun) collectFunction(n *sitter.Node, wc walkContext) []*SymbolNode {
	// C++ forbids nested function definitions; a function-like node inside
	// a function body is a parser misinterpretation of statement-like
	// constructs (e.g. local struct literals).
	if wc.insideFunctionBody {
		return nil
	}

	decl := n.ChildByFieldName("declarator")
	typeNode := n.ChildByFieldName("type")

	info := r.resolveFunctionDeclarator(n, decl)

	// A function is accepted only if it exposes a return type, or it is a
	// special member function (constructor/destructor/operator). Everything
	// else is a macro masquerading as a function.
	if typeNode == nil && !isSpecialMember(info, wc) {
		return nil
	}

	returnType := ""
	if typeNode != nil && !info.Destructor && !info.Operator && !info.ConversionOperator {
		returnType = typeNode.Content(r.src)
	}

	name := qualifyName(info.Name, wc.scopePath)
	if name == "" {
		return nil
	}

	display := composeFunctionName(returnType, name, renderParameters(info.Params, r.src))
	node := newSymbolNode(KindFunction, display, wc.access, n)

	if body := n.ChildByFieldName("body"); body != nil {
		inner := wc
		inner.insideFunctionBody = true
		inner.depth++
		node.Children, _ = r.walkSiblings(body, inner)
	}

	return []*SymbolNode{node}
}

// resolveFunctionDeclarator resolves the function's declarator, handling the
// three distinct shapes the grammar may produce: a nested function
// declarator wrapping a qualified name, a bare qualified-name declarator,
// or no declarator field at all with the construct as a direct child.
func (r *collectRun) resolveFunctionDeclarator(n, decl *sitter.Node) declaratorInfo {
	target := decl
	if target == nil {
		target = firstDeclaratorChild(n)
	}
	if target == nil {
		return declaratorInfo{}
	}
	return resolveDeclarator(target, r.src)
}

// isSpecialMember applies the constructor/destructor/operator heuristics.
//
// These patterns are empirically derived from observed grammar output and
// are best-effort, not a grammar contract.
func isSpecialMember(info declaratorInfo, wc walkContext) bool {
	if info.ConversionOperator || info.Destructor || info.Operator {
		return true
	}
	if info.Name == "" {
		return false
	}

	// Operator overloads across all declarator shapes.
	if strings.Contains(info.Name, "operator") {
		return true
	}

	base := lastNameSegment(info.Name)

	// Destructor spelled as a plain name.
	if strings.HasPrefix(base, "~") {
		return true
	}

	// In-class constructor: name equals the enclosing type's name.
	if wc.enclosingTypeName != "" && base == wc.enclosingTypeName {
		return true
	}

	// Out-of-class constructor: the qualifier's last segment repeats the
	// name, e.g. CodeGen_Text::CodeGen_Text.
	if info.Qualified {
		segments := strings.Split(info.Name, "::")
		if len(segments) >= 2 && segments[len(segments)-1] == segments[len(segments)-2] {
			return true
		}
	}

	return false
}

// collectDeclaration handles a declaration node outside a function body:
// a function-declarator prototype becomes a Function entry marked as a
// declaration; anything with an inline type specifier gets the type
// collected first; a plain declarator becomes a Variable.
func (r *collectRun) collectDeclaration(n *sitter.Node, wc walkContext) []*SymbolNode {
	if wc.insideFunctionBody {
		// Local declarations are not outline entries, but a local type
		// definition carried in the type field still is.
		return r.collectInlineType(n, wc)
	}

	var out []*SymbolNode
	out = append(out, r.collectInlineType(n, wc)...)

	typeNode := n.ChildByFieldName("type")
	for _, declNode := range declaratorChildren(n, typeNode) {
		info := resolveDeclarator(declNode, r.src)
		if info.Name == "" && !info.ConversionOperator {
			continue
		}

		if info.FunctionShaped || info.ConversionOperator {
			if typeNode == nil && !isSpecialMember(info, wc) {
				continue
			}
			returnType := ""
			if typeNode != nil && !info.Destructor && !info.Operator && !info.ConversionOperator {
				returnType = typeNode.Content(r.src)
			}
			display := composeFunctionName(returnType,
				qualifyName(info.Name, wc.scopePath),
				renderParameters(info.Params, r.src))
			node := newSymbolNode(KindFunction, display, wc.access, n)
			node.Declaration = true
			out = append(out, node)
			continue
		}

		display := qualifyName(info.Name, wc.scopePath)
		if typeNode != nil {
			display = typeNode.Content(r.src) + " " + display
		}
		out = append(out, newSymbolNode(KindVariable, display, wc.access, n))
	}

	return out
}

// collectField handles one member declaration inside a class/struct/union
// body. An inline type specifier in the type field is collected first as a
// sibling; function-declarator and function-pointer members are emitted as
// Function entries; plain declarators become Fields.
func (r *collectRun) collectField(n *sitter.Node, wc walkContext) []*SymbolNode {
	var out []*SymbolNode
	out = append(out, r.collectInlineType(n, wc)...)

	typeNode := n.ChildByFieldName("type")
	for _, declNode := range declaratorChildren(n, typeNode) {
		info := resolveDeclarator(declNode, r.src)
		if info.Name == "" && !info.ConversionOperator {
			continue
		}

		if info.FunctionShaped || info.ConversionOperator {
			if typeNode == nil && !isSpecialMember(info, wc) {
				continue
			}
			returnType := ""
			if typeNode != nil && !info.Destructor && !info.Operator && !info.ConversionOperator {
				returnType = typeNode.Content(r.src)
			}
			display := composeFunctionName(returnType,
				qualifyName(info.Name, wc.scopePath),
				renderParameters(info.Params, r.src))
			node := newSymbolNode(KindFunction, display, wc.access, n)
			node.Declaration = true
			out = append(out, node)
			continue
		}

		display := info.Name
		if typeNode != nil {
			display = typeNode.Content(r.src) + " " + display
		}
		out = append(out, newSymbolNode(KindField, display, wc.access, n))
	}

	return out
}

// collectInlineType collects a class/struct/union/enum specifier carried in
// a declaration's type field, e.g. "struct { int x; } s;".
func (r *collectRun) collectInlineType(n *sitter.Node, wc walkContext) []*SymbolNode {
	typeNode := n.ChildByFieldName("type")
	if typeNode == nil {
		return nil
	}

	switch typeNode.Type() {
	case "class_specifier", "struct_specifier", "union_specifier":
		if node := r.collectType(typeNode, wc); node != nil {
			return []*SymbolNode{node}
		}
	case "enum_specifier":
		if node := r.collectEnum(typeNode, wc); node != nil {
			return []*SymbolNode{node}
		}
	}
	return nil
}

// collectTemplate unwraps a template wrapper and dispatches its inner
// declaration with the same rules as if it weren't templated.
func (r *collectRun) collectTemplate(n *sitter.Node, wc walkContext) []*SymbolNode {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() == "template_parameter_list" || child.Type() == "comment" {
			continue
		}
		return r.visitNode(child, wc)
	}
	return nil
}

// collectLinkage unwraps an extern "C" specification, whether it wraps a
// block body or a single declaration.
func (r *collectRun) collectLinkage(n *sitter.Node, wc walkContext) []*SymbolNode {
	body := n.ChildByFieldName("body")
	if body == nil {
		nodes, _ := r.walkSiblings(n, wc)
		return nodes
	}
	if body.Type() == "declaration_list" {
		nodes, _ := r.walkSiblings(body, wc)
		return nodes
	}
	return r.visitNode(body, wc)
}

// collectMacro emits a preprocessor object or function macro.
func (r *collectRun) collectMacro(n *sitter.Node, wc walkContext) *SymbolNode {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}

	name := nameNode.Content(r.src)
	if params := n.ChildByFieldName("parameters"); params != nil {
		name += strings.TrimSpace(params.Content(r.src))
	}

	return newSymbolNode(KindMacro, name, wc.access, n)
}

// collectTypedef emits a typedef leaf, plus any inline type it defines.
func (r *collectRun) collectTypedef(n *sitter.Node, wc walkContext) []*SymbolNode {
	var out []*SymbolNode
	out = append(out, r.collectInlineType(n, wc)...)

	decl := n.ChildByFieldName("declarator")
	if decl == nil {
		return out
	}
	info := resolveDeclarator(decl, r.src)
	if info.Name == "" {
		return out
	}

	out = append(out, newSymbolNode(KindTypeDef, info.Name, wc.access, n))
	return out
}

// collectAlias emits a using-alias leaf.
func (r *collectRun) collectAlias(n *sitter.Node, wc walkContext) *SymbolNode {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	return newSymbolNode(KindUsingAlias, nameNode.Content(r.src), wc.access, n)
}

// declaratorChildren returns the named children of a declaration-like node
// that look like declarators, excluding the type field. Handles multiple
// declarators per declaration ("int a, b;").
func declaratorChildren(n, typeNode *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if typeNode != nil && child.Equal(typeNode) {
			continue
		}
		if declaratorKinds[child.Type()] {
			out = append(out, child)
		}
	}
	return out
}

// newSymbolNode builds a SymbolNode positioned at n. New nodes default to
// expanded; the tree manager overrides that from preserved UI state.
func newSymbolNode(kind SymbolKind, name string, access AccessLevel, n *sitter.Node) *SymbolNode {
	return &SymbolNode{
		Kind:      kind,
		Access:    access,
		Name:      name,
		StartLine: int(n.StartPoint().Row) + 1,
		StartCol:  int(n.StartPoint().Column),
		EndLine:   int(n.EndPoint().Row) + 1,
		Expanded:  true,
		Visible:   true,
	}
}
