package outline

import (
	"errors"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// Unit scales for translating host text offsets into parser byte offsets.
//
// Hosts that report offsets in bytes (or in code points over pure-ASCII
// buffers) use UnitScaleBytes. Hosts whose native buffer unit is a 16-bit
// code unit and whose parser input is the same buffer's raw bytes use
// UnitScaleUTF16, which doubles every offset. The conversion is deliberately
// explicit: silently mixing the two units is a classic off-by-factor bug.
const (
	UnitScaleBytes = 1
	UnitScaleUTF16 = 2
)

// ErrInvalidChange is returned when a change notification's offsets are
// inconsistent (negative, reversed, or outside the snapshot).
var ErrInvalidChange = errors.New("invalid change notification")

// Change is one contiguous text mutation as reported by the host, in the
// host's native code units: the change begins at OldStart, replaced text
// that ended at OldEnd, and the inserted text ends at NewEnd.
//
// Multiple disjoint changes in one host notification are translated
// independently, in the order the host reports them.
type Change struct {
	OldStart int
	OldEnd   int
	NewEnd   int
}

// EditTranslator converts host change notifications into EditDescriptors.
//
// The translator is stateless apart from its unit scale and is safe for
// concurrent use.
type EditTranslator struct {
	scale uint32
}

// NewEditTranslator creates a translator for hosts reporting offsets at the
// given unit scale (UnitScaleBytes or UnitScaleUTF16). Invalid scales fall
// back to bytes.
func NewEditTranslator(scale int) *EditTranslator {
	if scale != UnitScaleUTF16 {
		scale = UnitScaleBytes
	}
	return &EditTranslator{scale: uint32(scale)}
}

// Translate produces one EditDescriptor for a single contiguous change.
//
// Inputs:
//   - before: the source snapshot prior to the change
//   - after: the source snapshot after the change
//   - change: offsets in the host's native units
//
// The three offsets are scaled into byte offsets; the start and old-end
// points are located in the before snapshot, the new-end point in the after
// snapshot. Offsets past the end of the relevant snapshot are rejected.
func (t *EditTranslator) Translate(before, after []byte, change Change) (EditDescriptor, error) {
	if change.OldStart < 0 || change.OldEnd < change.OldStart || change.NewEnd < change.OldStart {
		return EditDescriptor{}, fmt.Errorf("%w: old_start=%d old_end=%d new_end=%d",
			ErrInvalidChange, change.OldStart, change.OldEnd, change.NewEnd)
	}

	start := uint32(change.OldStart) * t.scale
	oldEnd := uint32(change.OldEnd) * t.scale
	newEnd := uint32(change.NewEnd) * t.scale

	if int(oldEnd) > len(before) {
		return EditDescriptor{}, fmt.Errorf("%w: old end %d beyond pre-edit snapshot (%d bytes)",
			ErrInvalidChange, oldEnd, len(before))
	}
	if int(newEnd) > len(after) {
		return EditDescriptor{}, fmt.Errorf("%w: new end %d beyond post-edit snapshot (%d bytes)",
			ErrInvalidChange, newEnd, len(after))
	}

	return EditDescriptor{
		StartIndex:  start,
		OldEndIndex: oldEnd,
		NewEndIndex: newEnd,
		StartPoint:  pointAt(before, start),
		OldEndPoint: pointAt(before, oldEnd),
		NewEndPoint: pointAt(after, newEnd),
	}, nil
}

// TranslateAll translates a batch of disjoint changes in host order.
//
// The caller supplies per-change before/after snapshots via the snapshots
// callback; translation stops at the first invalid change.
func (t *EditTranslator) TranslateAll(changes []Change, snapshots func(i int) (before, after []byte)) ([]EditDescriptor, error) {
	out := make([]EditDescriptor, 0, len(changes))
	for i, ch := range changes {
		before, after := snapshots(i)
		ed, err := t.Translate(before, after, ch)
		if err != nil {
			return out, fmt.Errorf("change %d: %w", i, err)
		}
		out = append(out, ed)
	}
	return out, nil
}

// pointAt locates a byte offset's (row, column) in src by finding the
// containing line and subtracting that line's start offset. Rows and
// columns are 0-indexed, tree-sitter convention.
func pointAt(src []byte, off uint32) sitter.Point {
	if int(off) > len(src) {
		off = uint32(len(src))
	}

	var row, lineStart uint32
	for i := uint32(0); i < off; i++ {
		if src[i] == '\n' {
			row++
			lineStart = i + 1
		}
	}

	return sitter.Point{Row: row, Column: off - lineStart}
}
