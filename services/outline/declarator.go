package outline

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// declaratorInfo is the result of unwrapping a declarator chain down to its
// innermost name.
type declaratorInfo struct {
	// Name is the text of the innermost name, possibly qualified
	// ("Foo::Bar"). Empty when no name could be found.
	Name string

	// NameNode is the node the name was read from, nil when Name is empty.
	NameNode *sitter.Node

	// Qualified is true when the name contains an explicit scope.
	Qualified bool

	// Destructor is true when the innermost name is a destructor name.
	Destructor bool

	// Operator is true when the innermost name is an operator name.
	Operator bool

	// ConversionOperator is true when the declarator chain hit an
	// operator-cast node ("operator int()").
	ConversionOperator bool

	// FunctionShaped is true when a function declarator was seen anywhere
	// in the chain.
	FunctionShaped bool

	// Params is the outermost parameter list, nil when none was seen.
	Params *sitter.Node
}

// declaratorKinds are the node types the resolver is willing to unwrap or
// terminate on. Used when a grammar node lacks its named "declarator" field
// (a known gap for reference and parenthesized declarators) and children
// must be scanned by type instead.
var declaratorKinds = map[string]bool{
	"function_declarator":      true,
	"pointer_declarator":       true,
	"reference_declarator":     true,
	"array_declarator":         true,
	"parenthesized_declarator": true,
	"init_declarator":          true,
	"qualified_identifier":     true,
	"identifier":               true,
	"field_identifier":         true,
	"type_identifier":          true,
	"destructor_name":          true,
	"operator_name":            true,
	"operator_cast":            true,
}

// firstDeclaratorChild scans a node's named children for the first one that
// looks like a declarator. Fallback for grammar shapes with no declarator
// field.
func firstDeclaratorChild(n *sitter.Node) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if declaratorKinds[child.Type()] {
			return child
		}
	}
	return nil
}

// resolveDeclarator unwraps pointer/reference/array/parenthesized/init
// declarators down to the innermost identifier, qualified identifier,
// destructor name, or operator name.
//
// The walk prefers the grammar's named "declarator" field and falls back to
// a child scan by type when the field is absent. Unknown node types get one
// fallback attempt and then terminate, so a malformed subtree yields an
// empty name rather than an infinite loop.
func resolveDeclarator(node *sitter.Node, src []byte) declaratorInfo {
	var info declaratorInfo

	cur := node
	for cur != nil {
		switch cur.Type() {
		case "function_declarator":
			info.FunctionShaped = true
			if info.Params == nil {
				info.Params = cur.ChildByFieldName("parameters")
			}
			cur = innerDeclarator(cur)

		case "pointer_declarator", "array_declarator", "init_declarator":
			cur = innerDeclarator(cur)

		case "reference_declarator", "parenthesized_declarator":
			// These shapes have no named inner field in the grammar.
			cur = firstDeclaratorChild(cur)

		case "qualified_identifier":
			info.Qualified = true
			info.Name = cur.Content(src)
			info.NameNode = cur
			classifyInnermost(cur, &info)
			return info

		case "identifier", "field_identifier", "type_identifier":
			info.Name = cur.Content(src)
			info.NameNode = cur
			return info

		case "destructor_name":
			info.Destructor = true
			info.Name = cur.Content(src)
			info.NameNode = cur
			return info

		case "operator_name":
			info.Operator = true
			info.Name = cur.Content(src)
			info.NameNode = cur
			return info

		case "operator_cast":
			info.ConversionOperator = true
			info.Name = operatorCastName(cur, src)
			info.NameNode = cur
			return info

		default:
			next := innerDeclarator(cur)
			if next == nil {
				return info
			}
			cur = next
		}
	}

	return info
}

// innerDeclarator fetches the named declarator field, falling back to a
// child scan when the field is missing.
func innerDeclarator(n *sitter.Node) *sitter.Node {
	if d := n.ChildByFieldName("declarator"); d != nil {
		return d
	}
	return firstDeclaratorChild(n)
}

// classifyInnermost descends a (possibly nested) qualified identifier to its
// innermost name and records destructor/operator classification.
func classifyInnermost(qualified *sitter.Node, info *declaratorInfo) {
	inner := qualified.ChildByFieldName("name")
	for inner != nil && inner.Type() == "qualified_identifier" {
		inner = inner.ChildByFieldName("name")
	}
	if inner == nil {
		return
	}
	switch inner.Type() {
	case "destructor_name":
		info.Destructor = true
	case "operator_name":
		info.Operator = true
	case "operator_cast":
		info.ConversionOperator = true
	}
}

// operatorCastName renders a conversion operator as "operator <type>".
func operatorCastName(cast *sitter.Node, src []byte) string {
	if t := cast.ChildByFieldName("type"); t != nil {
		return "operator " + t.Content(src)
	}
	return strings.TrimSpace(cast.Content(src))
}

// lastNameSegment returns the final segment of a possibly qualified name.
func lastNameSegment(name string) string {
	if idx := strings.LastIndex(name, "::"); idx >= 0 {
		return name[idx+2:]
	}
	return name
}

// qualifyName prefixes an unqualified name with the scope path joined by
// "::". Names that already carry a scope are returned unchanged.
func qualifyName(name string, scopePath []string) string {
	if name == "" || strings.Contains(name, "::") || len(scopePath) == 0 {
		return name
	}
	return strings.Join(scopePath, "::") + "::" + name
}

// renderParameters renders a parameter list as a comma-joined list of each
// parameter's declared type, with variadic parameters rendered as "...".
func renderParameters(params *sitter.Node, src []byte) string {
	if params == nil {
		return ""
	}

	var parts []string
	for i := 0; i < int(params.ChildCount()); i++ {
		child := params.Child(i)
		switch child.Type() {
		case "(", ")", ",":
			continue
		case "...", "variadic_parameter", "variadic_parameter_declaration":
			parts = append(parts, "...")
		case "parameter_declaration", "optional_parameter_declaration":
			parts = append(parts, parameterTypeText(child, src))
		case "comment":
			continue
		default:
			if child.IsNamed() {
				parts = append(parts, strings.TrimSpace(child.Content(src)))
			}
		}
	}
	return strings.Join(parts, ", ")
}

// parameterTypeText renders one parameter's declared type, carrying
// pointer/reference markers from the declarator chain so "char *s" renders
// as "char*". Qualifiers sit outside the type field in the grammar and are
// re-attached in source order. Falls back to the full parameter text when
// the grammar provides no type field.
func parameterTypeText(param *sitter.Node, src []byte) string {
	typeNode := param.ChildByFieldName("type")
	if typeNode == nil {
		return strings.TrimSpace(param.Content(src))
	}

	text := typeNode.Content(src)
	for i := 0; i < int(param.NamedChildCount()); i++ {
		child := param.NamedChild(i)
		if child.Type() != "type_qualifier" {
			continue
		}
		if child.StartByte() < typeNode.StartByte() {
			text = child.Content(src) + " " + text
		}
	}

	decl := param.ChildByFieldName("declarator")
	for decl != nil {
		switch decl.Type() {
		case "pointer_declarator", "abstract_pointer_declarator":
			text += "*"
			decl = innerDeclarator(decl)
		case "reference_declarator", "abstract_reference_declarator":
			text += "&"
			decl = firstDeclaratorChild(decl)
		default:
			decl = nil
		}
	}

	return text
}

// composeFunctionName builds the display name for a function entry:
// return type + qualified name + parameter list.
func composeFunctionName(returnType, name, params string) string {
	s := name + "(" + params + ")"
	if returnType != "" {
		s = returnType + " " + s
	}
	return s
}
