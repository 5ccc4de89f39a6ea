package outline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrNoDocument is returned by operations that need an active document.
var ErrNoDocument = errors.New("no active document")

// DefaultCursorInterval is the minimum spacing between follow-cursor
// selections. Caret-move streams are rate limited so the selection-change
// side effect cannot re-trigger itself.
const DefaultCursorInterval = 100 * time.Millisecond

// SessionConfig configures a DocumentSession.
type SessionConfig struct {
	// Scheduler holds the debounce windows. Zero values mean defaults.
	Scheduler SchedulerConfig

	// MaxFileSize bounds the parser input. Zero means DefaultMaxFileSize.
	MaxFileSize int64

	// UnitScale is the host offset unit scale (UnitScaleBytes or
	// UnitScaleUTF16). Zero means bytes.
	UnitScale int

	// CursorInterval is the follow-cursor rate limit interval. Zero means
	// DefaultCursorInterval.
	CursorInterval time.Duration

	// StartSorted starts the session with alphabetic sibling sorting on.
	StartSorted bool
}

// DefaultSessionConfig returns production settings.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Scheduler:      DefaultSchedulerConfig(),
		MaxFileSize:    DefaultMaxFileSize,
		UnitScale:      UnitScaleBytes,
		CursorInterval: DefaultCursorInterval,
	}
}

// DocumentSession is the per-editor outline pipeline: one active document at
// a time, with edit translation, debounced incremental reparsing, symbol
// collection, and tree reconciliation behind a single lock.
//
// Concurrency model (single logical timeline per document):
//   - Interaction-path calls (Open, ApplyChange, SetFilter, SetSorted,
//     CursorMoved, Activate, Snapshot) are cheap and synchronous.
//   - Parsing and collection run as one background unit of work per request;
//     the interaction path never blocks on parse completion.
//   - At most one reparse is in flight; a new debounce cycle is armed only
//     after it completes or the document is switched.
//   - Completion re-validates that the result still corresponds to the
//     active document and epoch, discarding stale results otherwise.
type DocumentSession struct {
	mu sync.Mutex

	parser     *Parser
	translator *EditTranslator
	collector  *Collector
	trees      *TreeManager
	sched      *Scheduler

	state  *ParseState
	path   string
	status string

	// docEpoch increments on every Open/Close; in-flight work stamped with
	// an older epoch is discarded on completion.
	docEpoch uint64

	// reparseActive marks the window in which the background reparse reads
	// the active state's tree without holding the lock. Displacing the state
	// inside this window must not free the tree mid-read.
	reparseActive bool

	// retired holds ParseStates displaced while reparseActive; the reparse
	// completion disposes them.
	retired []*ParseState

	// generation increments on every applied rebuild.
	generation uint64

	// pendingFilter is the filter text awaiting its debounce window.
	pendingFilter string

	cursorLimiter *rate.Limiter

	// onUpdate listeners receive a Snapshot after every applied rebuild.
	onUpdate []func(Snapshot)
}

// NewDocumentSession creates a session with no active document.
func NewDocumentSession(cfg SessionConfig) *DocumentSession {
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.CursorInterval <= 0 {
		cfg.CursorInterval = DefaultCursorInterval
	}

	s := &DocumentSession{
		parser:        NewParser(WithMaxFileSize(cfg.MaxFileSize)),
		translator:    NewEditTranslator(cfg.UnitScale),
		collector:     NewCollector(),
		trees:         NewTreeManager(),
		status:        StatusNoDocument,
		cursorLimiter: rate.NewLimiter(rate.Every(cfg.CursorInterval), 1),
	}
	s.trees.SetSorted(cfg.StartSorted)
	s.sched = NewScheduler(cfg.Scheduler, s.runReparse, s.applyPendingFilter)
	return s
}

// displaceStateLocked removes the active ParseState. While a reparse is
// reading its tree the state is parked for the completion handler to close;
// closing inline would free the C tree under the reader. Caller holds mu.
func (s *DocumentSession) displaceStateLocked() {
	if s.state == nil {
		return
	}
	if s.reparseActive {
		s.retired = append(s.retired, s.state)
	} else {
		s.state.Close()
	}
	s.state = nil
}

// OnUpdate registers a listener invoked (outside the session lock) after
// every applied rebuild. Must be called before the session is shared.
func (s *DocumentSession) OnUpdate(fn func(Snapshot)) {
	s.onUpdate = append(s.onUpdate, fn)
}

// Open switches the session to a new document, disposing all state of the
// previous one. Pending edits are dropped and the debounce timer does not
// apply: the new document's full text is parsed unconditionally.
//
// Unsupported file types produce an empty outline with StatusUnsupported
// and a nil error.
func (s *DocumentSession) Open(ctx context.Context, path string, content []byte) (Snapshot, error) {
	s.mu.Lock()
	s.sched.Reset()
	s.docEpoch++
	s.displaceStateLocked()
	s.trees.Reset()
	s.path = path
	s.generation++

	if !IsSupportedPath(path) {
		s.status = StatusUnsupported
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.notify(snap)
		return snap, nil
	}
	s.mu.Unlock()

	start := time.Now()
	tree, err := s.parser.ParseFull(ctx, content, path)
	if err != nil {
		// Parse failure degrades to "no outline", non-fatal.
		slog.Warn("full parse failed", slog.String("file", path), slog.Any("error", err))
		recordParseMetrics(ctx, s.parser.LanguageName(path), time.Since(start), 0, false)
		s.mu.Lock()
		s.status = filepath.Base(path)
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, nil
	}

	s.mu.Lock()
	if path != s.path {
		// The caller raced another Open; this result is stale.
		s.mu.Unlock()
		tree.Close()
		recordStaleResult(ctx)
		return s.Snapshot(), nil
	}

	s.state = NewParseState(path, tree, content)
	symbols, collectErrs := s.collector.Collect(tree.RootNode(), content)
	s.trees.Update(symbols)
	s.status = filepath.Base(path)
	s.generation++
	snap := s.snapshotLocked()
	s.mu.Unlock()

	for _, e := range collectErrs {
		slog.Warn("collection issue", slog.String("file", path), slog.String("detail", e))
	}
	recordParseMetrics(ctx, s.parser.LanguageName(path), time.Since(start), len(symbols), true)
	s.notify(snap)
	return snap, nil
}

// ApplyChange translates one host change notification, queues it, applies
// it to the live tree (unless a reparse is reading it), and arms the
// debounce. after is the full post-edit source.
func (s *DocumentSession) ApplyChange(change Change, after []byte) error {
	s.mu.Lock()
	if s.state == nil {
		s.mu.Unlock()
		return ErrNoDocument
	}

	before := s.state.Source()
	edit, err := s.translator.Translate(before, after, change)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("translate change: %w", err)
	}

	if s.sched.State() == StateReparsing {
		s.state.QueueEdit(edit, after)
	} else {
		s.state.ApplyEdit(edit, after)
	}
	s.mu.Unlock()

	s.sched.NoteEdit()
	return nil
}

// runReparse is the scheduler's background callback: one incremental
// reparse plus collection and reconciliation.
func (s *DocumentSession) runReparse() {
	ctx := context.Background()

	s.mu.Lock()
	if s.state == nil {
		s.mu.Unlock()
		s.sched.ReparseDone(false)
		return
	}
	// Catch up any edits queued between the timer firing and this goroutine
	// taking the lock, so the tree matches the snapshot it is parsed with.
	s.state.SyncTree()
	s.reparseActive = true
	epoch := s.docEpoch
	path := s.path
	source := s.state.Source()
	oldTree := s.state.Tree()
	consumed := s.state.PendingCount()
	s.mu.Unlock()

	ctx, span := startParseSpan(ctx, s.parser.LanguageName(path))
	defer span.End()

	start := time.Now()
	var errParse error
	tree := oldTree
	if oldTree == nil {
		tree, errParse = s.parser.ParseFull(ctx, source, path)
	} else {
		tree, errParse = s.parser.ParseIncremental(ctx, oldTree, source, path)
	}

	s.mu.Lock()
	s.reparseActive = false
	retired := s.retired
	s.retired = nil
	if epoch != s.docEpoch || s.state == nil {
		// The user switched documents while the parse ran. The displaced
		// state (and oldTree with it) is only now safe to free.
		s.mu.Unlock()
		for _, st := range retired {
			st.Close()
		}
		if errParse == nil && tree != nil && tree != oldTree {
			tree.Close()
		}
		recordStaleResult(ctx)
		return
	}

	if errParse != nil {
		slog.Warn("reparse failed", slog.String("file", path), slog.Any("error", errParse))
		rearm := s.state.PendingCount() > consumed
		s.mu.Unlock()
		recordParseMetrics(ctx, s.parser.LanguageName(path), time.Since(start), 0, false)
		s.sched.ReparseDone(rearm)
		return
	}

	s.state.Install(tree, source, consumed)
	symbols, collectErrs := s.collector.Collect(s.state.Tree().RootNode(), s.state.Source())
	s.trees.Update(symbols)
	s.generation++
	rearm := s.state.PendingCount() > 0
	snap := s.snapshotLocked()
	s.mu.Unlock()

	for _, e := range collectErrs {
		slog.Warn("collection issue", slog.String("file", path), slog.String("detail", e))
	}
	recordParseMetrics(ctx, s.parser.LanguageName(path), time.Since(start), len(symbols), true)
	s.notify(snap)
	s.sched.ReparseDone(rearm)
}

// SetFilter schedules a filter change through the filter debounce. The AST
// is never invalidated by filtering.
func (s *DocumentSession) SetFilter(text string) {
	s.mu.Lock()
	s.pendingFilter = text
	s.mu.Unlock()
	s.sched.NoteFilterChange()
}

// FlushFilter applies the pending filter immediately, bypassing the
// debounce window. One-shot consumers use this instead of waiting.
func (s *DocumentSession) FlushFilter() {
	s.applyPendingFilter()
}

// applyPendingFilter is the filter-debounce callback.
func (s *DocumentSession) applyPendingFilter() {
	s.mu.Lock()
	s.trees.SetFilter(s.pendingFilter)
	s.generation++
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}

// SetSorted toggles sibling sorting and reconciles immediately; a toggle is
// a single click, not a typed stream, so it takes no debounce.
func (s *DocumentSession) SetSorted(sorted bool) Snapshot {
	s.mu.Lock()
	s.trees.SetSorted(sorted)
	s.generation++
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
	return snap
}

// SetExpanded records a UI expand/collapse by stable key.
func (s *DocumentSession) SetExpanded(key string, expanded bool) {
	s.mu.Lock()
	s.trees.SetExpanded(key, expanded)
	s.mu.Unlock()
}

// CursorMoved drives follow-cursor: the deepest symbol containing the caret
// line is selected and its ancestors expanded. Calls beyond the rate limit
// are dropped, which also breaks re-entrant triggering from the
// selection-change side effect.
//
// Returns the selected node, or nil when no symbol contains the line or the
// call was rate limited.
func (s *DocumentSession) CursorMoved(line int) *SymbolNode {
	if !s.cursorLimiter.Allow() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	node := FindDeepestContaining(s.trees.Current(), line)
	s.trees.Select(node)
	return node
}

// KeyFor resolves a node previously returned by CursorMoved to its stable
// key. Returns "" when the tree has been rebuilt since.
func (s *DocumentSession) KeyFor(node *SymbolNode) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StableKeyOf(s.trees.Current(), node)
}

// Activate resolves a node by stable key to its navigation target for the
// external navigation collaborator.
func (s *DocumentSession) Activate(key string) (NavigationTarget, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	node := FindByKey(s.trees.Current(), key)
	if node == nil {
		return NavigationTarget{}, false
	}
	return Navigation(node), true
}

// Snapshot returns the current UI-facing state.
func (s *DocumentSession) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *DocumentSession) snapshotLocked() Snapshot {
	// Deep-copied: snapshots escape the lock to HTTP encoders and websocket
	// writers, which must not observe later Select/SetExpanded mutations.
	return Snapshot{
		Status:     s.status,
		Generation: s.generation,
		Roots:      cloneForest(s.trees.Current()),
	}
}

// SchedulerState exposes the scheduler state, mainly for tests and the
// status endpoint.
func (s *DocumentSession) SchedulerState() SchedulerState {
	return s.sched.State()
}

// Close disposes the session's document state. In-flight work completes and
// is discarded by the epoch check.
func (s *DocumentSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sched.Reset()
	s.docEpoch++
	s.displaceStateLocked()
	s.trees.Reset()
	s.path = ""
	s.status = StatusNoDocument
}

func (s *DocumentSession) notify(snap Snapshot) {
	for _, fn := range s.onUpdate {
		fn(snap)
	}
}
