package outline

import (
	sitter "github.com/smacker/go-tree-sitter"
)

// ParseState owns everything parse-related for one open document: the
// current tree, the exact source text that tree corresponds to, and the
// queue of edits applied to the tree but not yet consumed by a completed
// reparse.
//
// Ownership rules:
//   - The tree is owned exclusively by the ParseState. It is invalidated
//     and replaced wholesale by Install on each successful parse, never
//     mutated node-by-node by the collector.
//   - Node handles obtained while walking the tree are valid only until the
//     next Install or Close.
//   - At most one ParseState exists per active document; switching documents
//     disposes the previous state entirely.
//
// While a reparse is in flight the background goroutine reads the tree, so
// the interaction path must use QueueEdit instead of ApplyEdit; Install
// replays the still-queued edits onto the freshly parsed tree, keeping the
// bookkeeping consistent without concurrent tree mutation.
//
// ParseState is not safe for concurrent use on its own; the owning session
// serializes access.
type ParseState struct {
	path    string
	tree    *sitter.Tree
	source  []byte
	pending []EditDescriptor

	// applied counts how many pending edits have been applied to the tree.
	// Edits are always applied in arrival order, never skipped.
	applied int
}

// NewParseState takes ownership of tree and source for the document at path.
func NewParseState(path string, tree *sitter.Tree, source []byte) *ParseState {
	return &ParseState{
		path:    path,
		tree:    tree,
		source:  source,
		pending: make([]EditDescriptor, 0, 8),
	}
}

// Path returns the document path this state belongs to.
func (s *ParseState) Path() string { return s.path }

// Tree returns the current tree. Callers must not retain node handles past
// the next Install or Close.
func (s *ParseState) Tree() *sitter.Tree { return s.tree }

// Source returns the newest source text, with all pending edits applied.
func (s *ParseState) Source() []byte { return s.source }

// PendingCount returns the number of edits not yet consumed by a completed
// reparse.
func (s *ParseState) PendingCount() int { return len(s.pending) }

// ApplyEdit appends the edit to the pending queue and immediately applies it
// to the live tree so the tree's internal position bookkeeping stays
// consistent before a reparse runs. The post-edit source replaces the stored
// snapshot.
//
// Edits must arrive in the order the host reports them. Must not be called
// while a reparse is reading the tree; use QueueEdit then.
func (s *ParseState) ApplyEdit(edit EditDescriptor, newSource []byte) {
	s.QueueEdit(edit, newSource)
	s.SyncTree()
}

// QueueEdit records an edit without touching the tree. Used while a reparse
// is in flight; Install replays the queued edits onto the new tree.
func (s *ParseState) QueueEdit(edit EditDescriptor, newSource []byte) {
	s.pending = append(s.pending, edit)
	s.source = newSource
}

// SyncTree applies any queued-but-unapplied edits to the tree, in arrival
// order. Must not be called while a reparse is reading the tree.
func (s *ParseState) SyncTree() {
	if s.tree == nil {
		s.applied = len(s.pending)
		return
	}
	for ; s.applied < len(s.pending); s.applied++ {
		s.tree.Edit(s.pending[s.applied].EditInput())
	}
}

// Install replaces the tree after a successful reparse, closing the old one,
// and clears the pending queue atomically with respect to new edits: only
// the first consumed edits (those predating the reparse request) are
// dropped; edits that arrived during the parse stay queued and are replayed
// onto the new tree so its position bookkeeping matches Source.
//
// parsedSource is the snapshot the reparse consumed; it becomes the stored
// source only when no later edits are queued.
func (s *ParseState) Install(tree *sitter.Tree, parsedSource []byte, consumed int) {
	if s.tree != nil && s.tree != tree {
		s.tree.Close()
	}
	s.tree = tree

	if consumed >= len(s.pending) {
		s.pending = s.pending[:0]
		s.applied = 0
		s.source = parsedSource
		return
	}

	s.pending = append(s.pending[:0], s.pending[consumed:]...)
	s.applied = 0
	s.SyncTree()
}

// Close releases the tree. The state must not be used afterwards.
func (s *ParseState) Close() {
	if s.tree != nil {
		s.tree.Close()
		s.tree = nil
	}
	s.pending = nil
	s.applied = 0
	s.source = nil
}
