package outline

// FindDeepestContaining returns the deepest symbol whose line range contains
// the 1-indexed line, or nil when no symbol does.
//
// Depth-first: a node is a candidate when the line falls within its range;
// recursing into a candidate's children overwrites the result when a child
// also matches, so the most specific enclosing symbol wins.
func FindDeepestContaining(forest []*SymbolNode, line int) *SymbolNode {
	var found *SymbolNode
	for _, n := range forest {
		if !n.ContainsLine(line) {
			continue
		}
		found = n
		if child := FindDeepestContaining(n.Children, line); child != nil {
			found = child
		}
	}
	return found
}

// Navigation returns the target the external navigation collaborator should
// jump to when the node is activated.
func Navigation(n *SymbolNode) NavigationTarget {
	return NavigationTarget{Line: n.StartLine, Column: n.StartCol}
}
