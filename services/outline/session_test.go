package outline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastSessionConfig shrinks the debounce windows so edit pipelines complete
// within test time.
func fastSessionConfig() SessionConfig {
	cfg := DefaultSessionConfig()
	cfg.Scheduler.EditDebounce = 30 * time.Millisecond
	cfg.Scheduler.FilterDebounce = 15 * time.Millisecond
	return cfg
}

// snapshotRecorder collects update notifications for assertions.
type snapshotRecorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *snapshotRecorder) record(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *snapshotRecorder) latest() (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return Snapshot{}, false
	}
	return r.snaps[len(r.snaps)-1], true
}

const sessionSource = `namespace app {
class Widget {
public:
    void render();
    int count() { return 0; }
};
}
void main_loop() {}
`

func openSession(t *testing.T, cfg SessionConfig) *DocumentSession {
	t.Helper()
	s := NewDocumentSession(cfg)
	t.Cleanup(s.Close)

	snap, err := s.Open(context.Background(), "widget.cpp", []byte(sessionSource))
	require.NoError(t, err)
	require.Equal(t, "widget.cpp", snap.Status)
	return s
}

func TestSession_InitialState(t *testing.T) {
	s := NewDocumentSession(DefaultSessionConfig())
	defer s.Close()

	snap := s.Snapshot()
	assert.Equal(t, StatusNoDocument, snap.Status)
	assert.Nil(t, snap.Roots)
	assert.Equal(t, StateIdle, s.SchedulerState())
}

func TestSession_Open(t *testing.T) {
	s := openSession(t, DefaultSessionConfig())

	snap := s.Snapshot()
	require.Len(t, snap.Roots, 2)
	assert.Equal(t, KindNamespace, snap.Roots[0].Kind)
	assert.Equal(t, "app", snap.Roots[0].Name)
	assert.Equal(t, KindFunction, snap.Roots[1].Kind)
}

func TestSession_Open_Unsupported(t *testing.T) {
	s := NewDocumentSession(DefaultSessionConfig())
	defer s.Close()

	snap, err := s.Open(context.Background(), "notes.txt", []byte("hello"))
	require.NoError(t, err, "unsupported files are not an error")
	assert.Equal(t, StatusUnsupported, snap.Status)
	assert.Nil(t, snap.Roots)
}

func TestSession_Open_SwitchDisposesPrevious(t *testing.T) {
	s := openSession(t, DefaultSessionConfig())

	snap, err := s.Open(context.Background(), "other.cpp", []byte("int other_sym;\n"))
	require.NoError(t, err)
	assert.Equal(t, "other.cpp", snap.Status)
	require.Len(t, snap.Roots, 1)
	assert.Equal(t, "other_sym", snap.Roots[0].Name)
}

func TestSession_ApplyChange_NoDocument(t *testing.T) {
	s := NewDocumentSession(DefaultSessionConfig())
	defer s.Close()

	err := s.ApplyChange(Change{OldStart: 0, OldEnd: 0, NewEnd: 1}, []byte("x"))
	assert.ErrorIs(t, err, ErrNoDocument)
}

func TestSession_ApplyChange_InvalidOffsets(t *testing.T) {
	s := openSession(t, DefaultSessionConfig())

	err := s.ApplyChange(Change{OldStart: -1, OldEnd: 0, NewEnd: 0}, []byte(sessionSource))
	assert.ErrorIs(t, err, ErrInvalidChange)
}

func TestSession_EditPipeline(t *testing.T) {
	rec := &snapshotRecorder{}
	s := NewDocumentSession(fastSessionConfig())
	defer s.Close()
	s.OnUpdate(rec.record)

	before := "int x;\n"
	_, err := s.Open(context.Background(), "a.cpp", []byte(before))
	require.NoError(t, err)
	openGen := s.Snapshot().Generation

	after := "int xy;\n"
	err = s.ApplyChange(Change{OldStart: 5, OldEnd: 5, NewEnd: 6}, []byte(after))
	require.NoError(t, err)
	assert.Equal(t, StateDebouncing, s.SchedulerState())

	waitFor(t, func() bool {
		snap := s.Snapshot()
		return snap.Generation > openGen && s.SchedulerState() == StateIdle
	}, "debounced reparse applied")

	snap := s.Snapshot()
	require.Len(t, snap.Roots, 1)
	assert.Equal(t, "xy", snap.Roots[0].Name)

	latest, ok := rec.latest()
	require.True(t, ok, "listeners are notified")
	assert.Equal(t, snap.Generation, latest.Generation)
}

func TestSession_EditBurstCollapses(t *testing.T) {
	s := NewDocumentSession(fastSessionConfig())
	defer s.Close()

	_, err := s.Open(context.Background(), "a.cpp", []byte("int x;\n"))
	require.NoError(t, err)

	// Grow the identifier one byte per keystroke.
	src := "int x;\n"
	for i := 0; i < 4; i++ {
		next := src[:5+i] + "y" + src[5+i:]
		require.NoError(t, s.ApplyChange(Change{OldStart: 5 + i, OldEnd: 5 + i, NewEnd: 6 + i}, []byte(next)))
		src = next
	}

	waitFor(t, func() bool { return s.SchedulerState() == StateIdle }, "pipeline drains")

	snap := s.Snapshot()
	require.Len(t, snap.Roots, 1)
	assert.Equal(t, "yyyyx", snap.Roots[0].Name)
}

func TestSession_SetSorted_Immediate(t *testing.T) {
	s := openSession(t, DefaultSessionConfig())

	snap := s.SetSorted(true)
	require.Len(t, snap.Roots, 2)
	// "app" sorts before "main_loop"; already true in source order, so use
	// the class members to observe the reorder.
	widget := snap.Roots[0].Children[0]
	require.Len(t, widget.Children, 2)
	assert.Contains(t, widget.Children[0].Name, "count")

	snap = s.SetSorted(false)
	widget = snap.Roots[0].Children[0]
	assert.Contains(t, widget.Children[0].Name, "render", "source order restored")
}

func TestSession_FilterDebounced(t *testing.T) {
	s := openSession(t, fastSessionConfig())

	s.SetFilter("render")
	waitFor(t, func() bool {
		roots := s.Snapshot().Roots
		return len(roots) == 1 && roots[0].Name == "app"
	}, "filter applied after its debounce window")

	// Matching chain: app -> Widget -> render, main_loop pruned.
	snap := s.Snapshot()
	require.Len(t, snap.Roots, 1)
	widget := snap.Roots[0].Children[0]
	require.Len(t, widget.Children, 1)
	assert.Contains(t, widget.Children[0].Name, "render")
}

func TestSession_FlushFilter(t *testing.T) {
	// Default windows: nothing would apply within the test without a flush.
	s := openSession(t, DefaultSessionConfig())

	s.SetFilter("count")
	s.FlushFilter()

	snap := s.Snapshot()
	require.Len(t, snap.Roots, 1)
	widget := snap.Roots[0].Children[0]
	require.Len(t, widget.Children, 1)
	assert.Contains(t, widget.Children[0].Name, "count")
}

func TestSession_CursorMoved(t *testing.T) {
	s := openSession(t, DefaultSessionConfig())

	// Line 4 is "void render();" inside Widget.
	node := s.CursorMoved(4)
	require.NotNil(t, node)
	assert.Contains(t, node.Name, "render")
	assert.True(t, node.Selected)

	snap := s.Snapshot()
	assert.True(t, snap.Roots[0].Expanded, "ancestors expand to reveal the selection")
}

func TestSession_CursorMoved_RateLimited(t *testing.T) {
	cfg := DefaultSessionConfig()
	cfg.CursorInterval = time.Minute
	s := openSession(t, cfg)

	first := s.CursorMoved(4)
	require.NotNil(t, first)

	second := s.CursorMoved(8)
	assert.Nil(t, second, "calls inside the interval are dropped")
}

func TestSession_CursorMoved_NoContainingSymbol(t *testing.T) {
	s := openSession(t, DefaultSessionConfig())
	assert.Nil(t, s.CursorMoved(1000))
}

func TestSession_Activate(t *testing.T) {
	s := openSession(t, DefaultSessionConfig())

	target, ok := s.Activate("namespace:app/class:Widget")
	require.True(t, ok)
	assert.Equal(t, 2, target.Line)

	_, ok = s.Activate("namespace:app/class:Gone")
	assert.False(t, ok)
}

func TestSession_SetExpanded(t *testing.T) {
	s := openSession(t, DefaultSessionConfig())

	s.SetExpanded("namespace:app", false)
	snap := s.Snapshot()
	assert.False(t, snap.Roots[0].Expanded)

	s.SetExpanded("namespace:app", true)
	snap = s.Snapshot()
	assert.True(t, snap.Roots[0].Expanded)
}

func TestSession_ExpandStateSurvivesEdit(t *testing.T) {
	s := NewDocumentSession(fastSessionConfig())
	defer s.Close()

	src := "class Widget {\npublic:\n    void render();\n};\nint x;\n"
	_, err := s.Open(context.Background(), "w.cpp", []byte(src))
	require.NoError(t, err)

	s.SetExpanded("class:Widget", false)

	// Edit the trailing variable; Widget is untouched.
	after := "class Widget {\npublic:\n    void render();\n};\nint xy;\n"
	off := len(src) - 2
	require.NoError(t, s.ApplyChange(Change{OldStart: off, OldEnd: off, NewEnd: off + 1}, []byte(after)))

	waitFor(t, func() bool { return s.SchedulerState() == StateIdle }, "reparse applied")

	snap := s.Snapshot()
	require.Len(t, snap.Roots, 2)
	assert.False(t, snap.Roots[0].Expanded, "collapse survives the rebuild")
	assert.Equal(t, "xy", snap.Roots[1].Name)
}

func TestSession_SwitchDuringReparse(t *testing.T) {
	cfg := fastSessionConfig()
	cfg.Scheduler.EditDebounce = time.Millisecond
	s := NewDocumentSession(cfg)
	defer s.Close()

	// Large enough that the incremental reparse has real work to do, so the
	// document switch reliably lands while the parse is reading the tree.
	var b strings.Builder
	for i := 0; i < 400; i++ {
		fmt.Fprintf(&b, "int field_%d;\nvoid func_%d() { int x = %d; }\n", i, i, i)
	}
	first := b.String()

	for i := 0; i < 25; i++ {
		_, err := s.Open(context.Background(), "first.cpp", []byte(first))
		require.NoError(t, err)

		after := first + "int tail;\n"
		require.NoError(t, s.ApplyChange(
			Change{OldStart: len(first), OldEnd: len(first), NewEnd: len(after)},
			[]byte(after)))
		time.Sleep(2 * time.Millisecond)

		// Switch documents while the reparse of first.cpp may be running;
		// the displaced tree must stay alive until that parse finishes.
		snap, err := s.Open(context.Background(), "second.cpp", []byte("int other;\n"))
		require.NoError(t, err)
		require.Len(t, snap.Roots, 1)
	}

	waitFor(t, func() bool { return s.SchedulerState() == StateIdle }, "pipeline drains")
	snap := s.Snapshot()
	require.Len(t, snap.Roots, 1)
	assert.Equal(t, "other", snap.Roots[0].Name)
}

func TestSession_EditAtReparseCompletionNotLost(t *testing.T) {
	s := NewDocumentSession(fastSessionConfig())
	defer s.Close()

	v0 := "int a;\n"
	v1 := "int a;\nint b;\n"
	v2 := "int a;\nint b;\nint c;\n"

	// Inject a second edit from the update listener: it runs after the
	// reparse took its pending-count snapshot but before the scheduler
	// learns the cycle is over. That edit must still be reparsed.
	var inject sync.Once
	s.OnUpdate(func(snap Snapshot) {
		if len(snap.Roots) != 2 {
			return
		}
		inject.Do(func() {
			err := s.ApplyChange(
				Change{OldStart: len(v1), OldEnd: len(v1), NewEnd: len(v2)},
				[]byte(v2))
			require.NoError(t, err)
		})
	})

	_, err := s.Open(context.Background(), "a.cpp", []byte(v0))
	require.NoError(t, err)
	require.NoError(t, s.ApplyChange(
		Change{OldStart: len(v0), OldEnd: len(v0), NewEnd: len(v1)},
		[]byte(v1)))

	waitFor(t, func() bool {
		return len(s.Snapshot().Roots) == 3 && s.SchedulerState() == StateIdle
	}, "the completion-window edit produces a new cycle")
	assert.Equal(t, "c", s.Snapshot().Roots[2].Name)
}

func TestSession_SnapshotDetached(t *testing.T) {
	s := openSession(t, DefaultSessionConfig())

	snap := s.Snapshot()
	require.True(t, snap.Roots[0].Expanded)

	s.SetExpanded("namespace:app", false)

	assert.True(t, snap.Roots[0].Expanded, "earlier snapshots keep their state")
	assert.False(t, s.Snapshot().Roots[0].Expanded)
}

func TestSession_StartSorted(t *testing.T) {
	cfg := DefaultSessionConfig()
	cfg.StartSorted = true
	s := NewDocumentSession(cfg)
	defer s.Close()

	snap, err := s.Open(context.Background(), "a.cpp", []byte("int zeta;\nint alpha;\n"))
	require.NoError(t, err)
	require.Len(t, snap.Roots, 2)
	assert.Equal(t, "alpha", snap.Roots[0].Name)
}

func TestSession_KeyFor(t *testing.T) {
	s := openSession(t, DefaultSessionConfig())

	node := s.CursorMoved(4)
	require.NotNil(t, node)
	key := s.KeyFor(node)
	assert.Equal(t, "namespace:app/class:Widget/function:void render()", key)

	target, ok := s.Activate(key)
	require.True(t, ok, "the key round-trips into activation")
	assert.Equal(t, 4, target.Line)

	assert.Empty(t, s.KeyFor(&SymbolNode{Name: "stray"}))
}

func TestSession_Close(t *testing.T) {
	s := openSession(t, DefaultSessionConfig())

	s.Close()
	snap := s.Snapshot()
	assert.Equal(t, StatusNoDocument, snap.Status)
	assert.Nil(t, snap.Roots)
	assert.ErrorIs(t, s.ApplyChange(Change{}, nil), ErrNoDocument)
}
