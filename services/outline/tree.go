package outline

import (
	"sort"
	"strings"
)

// TreeManager owns the displayed outline tree: it reconciles each freshly
// collected symbol forest against the previously displayed one so that
// expand state survives structural rebuilds, and applies the active sort
// and filter settings.
//
// TreeManager is not safe for concurrent use on its own; the owning session
// serializes access, and the displayed tree is only ever mutated on the
// interaction path.
type TreeManager struct {
	// raw is the last collected forest, before sort/filter.
	raw []*SymbolNode

	// current is the displayed forest after reconciliation.
	current []*SymbolNode

	sorted bool
	filter string
}

// NewTreeManager creates an empty TreeManager.
func NewTreeManager() *TreeManager {
	return &TreeManager{}
}

// Current returns the displayed forest.
func (m *TreeManager) Current() []*SymbolNode { return m.current }

// Sorted reports whether sibling sorting is active.
func (m *TreeManager) Sorted() bool { return m.sorted }

// Filter returns the active filter text.
func (m *TreeManager) Filter() string { return m.filter }

// Update reconciles a freshly collected forest against the displayed tree
// and installs the result.
func (m *TreeManager) Update(symbols []*SymbolNode) []*SymbolNode {
	m.raw = symbols
	m.current = Reconcile(m.current, symbols, m.sorted, m.filter)
	return m.current
}

// SetFilter changes the filter text and re-reconciles the last collected
// forest. The parse pipeline is untouched: filtering is decoupled from
// reparse cost.
func (m *TreeManager) SetFilter(text string) []*SymbolNode {
	m.filter = text
	m.current = Reconcile(m.current, m.raw, m.sorted, m.filter)
	return m.current
}

// SetSorted toggles sibling sorting and re-reconciles.
func (m *TreeManager) SetSorted(sorted bool) []*SymbolNode {
	m.sorted = sorted
	m.current = Reconcile(m.current, m.raw, m.sorted, m.filter)
	return m.current
}

// SetExpanded records an expand/collapse for the node with the given stable
// key in the displayed tree. Unknown keys are ignored.
func (m *TreeManager) SetExpanded(key string, expanded bool) {
	if node := FindByKey(m.current, key); node != nil {
		node.Expanded = expanded
	}
}

// Select marks exactly one node as selected in the displayed tree and
// expands its ancestors so the selection is reachable. A nil target clears
// the selection.
func (m *TreeManager) Select(target *SymbolNode) {
	clearSelection(m.current)
	if target == nil {
		return
	}
	target.Selected = true
	expandAncestorsOf(m.current, target)
}

// Reset discards all tree state, including preserved expand state.
func (m *TreeManager) Reset() {
	m.raw = nil
	m.current = nil
	m.filter = ""
}

// Reconcile builds the displayed forest for a freshly collected symbol
// forest:
//
//  1. Expand state is captured from the previous tree by stable key.
//  2. The new forest is deep-copied (the input stays untouched).
//  3. Siblings are stable-sorted by display name, case-insensitive, when
//     sorting is enabled; source order is preserved otherwise.
//  4. The filter is applied bottom-up: a node is retained if its own name
//     contains the filter text (case-insensitive) or some descendant is
//     retained; retention inherited from a descendant forces the node
//     expanded. An empty filter is a no-op.
//  5. Captured expand state is restored by key; nodes with no prior entry
//     default to expanded.
//
// Selection is cleared on every rebuild; follow-cursor re-applies it.
func Reconcile(previous, symbols []*SymbolNode, sortEnabled bool, filterText string) []*SymbolNode {
	prevExpand := map[string]bool{}
	captureExpandState(previous, "", prevExpand)

	tree := cloneForest(symbols)

	restoreExpandState(tree, "", prevExpand)

	if sortEnabled {
		sortForest(tree)
	}

	if filterText != "" {
		tree = filterForest(tree, strings.ToLower(filterText))
	}

	return tree
}

// captureExpandState records every node's expand flag keyed by its
// prefix-concatenated stable key, depth-first.
func captureExpandState(forest []*SymbolNode, parentKey string, into map[string]bool) {
	for _, n := range forest {
		key := n.StableKey(parentKey)
		into[key] = n.Expanded
		captureExpandState(n.Children, key, into)
	}
}

// restoreExpandState applies previously captured expand flags. Nodes with no
// prior entry stay at their default (expanded), and selection is cleared.
func restoreExpandState(forest []*SymbolNode, parentKey string, prev map[string]bool) {
	for _, n := range forest {
		key := n.StableKey(parentKey)
		if expanded, ok := prev[key]; ok {
			n.Expanded = expanded
		} else {
			n.Expanded = true
		}
		n.Selected = false
		restoreExpandState(n.Children, key, prev)
	}
}

// sortForest stable-sorts siblings by display name, case-insensitive,
// depth-first.
func sortForest(forest []*SymbolNode) {
	sort.SliceStable(forest, func(i, j int) bool {
		return strings.ToLower(forest[i].Name) < strings.ToLower(forest[j].Name)
	})
	for _, n := range forest {
		sortForest(n.Children)
	}
}

// filterForest prunes the forest bottom-up for a lowercase filter string.
func filterForest(forest []*SymbolNode, filter string) []*SymbolNode {
	var out []*SymbolNode
	for _, n := range forest {
		kept := filterForest(n.Children, filter)
		selfMatch := strings.Contains(strings.ToLower(n.Name), filter)

		if !selfMatch && len(kept) == 0 {
			continue
		}

		n.Children = kept
		n.Visible = true
		if !selfMatch {
			// Retention came from a descendant: force the path open.
			n.Expanded = true
		}
		out = append(out, n)
	}
	return out
}

// cloneForest deep-copies a forest, including transient UI flags.
func cloneForest(forest []*SymbolNode) []*SymbolNode {
	if forest == nil {
		return nil
	}
	out := make([]*SymbolNode, len(forest))
	for i, n := range forest {
		c := *n
		c.Children = cloneForest(n.Children)
		out[i] = &c
	}
	return out
}

// FindByKey locates a node by its prefix-concatenated stable key.
func FindByKey(forest []*SymbolNode, key string) *SymbolNode {
	return findByKey(forest, "", key)
}

func findByKey(forest []*SymbolNode, parentKey, key string) *SymbolNode {
	for _, n := range forest {
		own := n.StableKey(parentKey)
		if own == key {
			return n
		}
		// Keys are prefix-concatenated, so only matching prefixes can
		// contain the target.
		if strings.HasPrefix(key, own+"/") {
			if found := findByKey(n.Children, own, key); found != nil {
				return found
			}
		}
	}
	return nil
}

// StableKeyOf returns the prefix-concatenated stable key of target within
// forest, or "" when target is not in the forest.
func StableKeyOf(forest []*SymbolNode, target *SymbolNode) string {
	return stableKeyOf(forest, "", target)
}

func stableKeyOf(forest []*SymbolNode, parentKey string, target *SymbolNode) string {
	for _, n := range forest {
		key := n.StableKey(parentKey)
		if n == target {
			return key
		}
		if found := stableKeyOf(n.Children, key, target); found != "" {
			return found
		}
	}
	return ""
}

func clearSelection(forest []*SymbolNode) {
	for _, n := range forest {
		n.Selected = false
		clearSelection(n.Children)
	}
}

// expandAncestorsOf expands every ancestor of target. Returns true when
// target was found in the forest.
func expandAncestorsOf(forest []*SymbolNode, target *SymbolNode) bool {
	for _, n := range forest {
		if n == target {
			return true
		}
		if expandAncestorsOf(n.Children, target) {
			n.Expanded = true
			return true
		}
	}
	return false
}
