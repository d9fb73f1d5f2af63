// Package rangeset implements a word-granular dirty-range bitmap used to
// track which parts of a buffer's backing memory have been modified by the
// CPU or the GPU, and to drive the minimal set of staged copies needed to
// resynchronize them.
package rangeset

import (
	"github.com/pkg/errors"
)

// WordSize is the granularity, in bytes, of a single tracked bit. It is
// independent of the cache's page size. One bit per byte keeps marked,
// cleared and reported ranges exact at any byte offset, which buffers that
// start and end at arbitrary addresses rely on: with a coarser unit,
// UnmarkRange would also clear neighbouring bytes outside its range.
const WordSize = 1

// Tracker is a bitmap over [0, size) in WordSize-byte increments. Bit i is
// set when byte range [i*WordSize, (i+1)*WordSize) is considered dirty.
type Tracker struct {
	size  int
	words []uint64
}

// New returns a Tracker covering a region of sizeBytes bytes, all clear.
func New(sizeBytes int) *Tracker {
	t := &Tracker{}
	t.Reset(sizeBytes)
	return t
}

// Reset re-sizes the tracker, discarding any previously tracked bits.
func (t *Tracker) Reset(sizeBytes int) {
	if sizeBytes < 0 {
		panic("rangeset: negative size")
	}
	t.size = sizeBytes
	wordCount := numWords(sizeBytes)
	if cap(t.words) >= wordCount {
		t.words = t.words[:wordCount]
		for i := range t.words {
			t.words[i] = 0
		}
	} else {
		t.words = make([]uint64, wordCount)
	}
}

// Size returns the tracked region size in bytes.
func (t *Tracker) Size() int {
	return t.size
}

func numWords(sizeBytes int) int {
	words := sizeBytes / WordSize
	if sizeBytes%WordSize != 0 {
		words++
	}
	return words
}

func (t *Tracker) clampRange(offset, size int) (int, int, bool) {
	if size <= 0 || offset >= t.size {
		return 0, 0, false
	}
	end := offset + size
	if offset < 0 {
		offset = 0
	}
	if end > t.size {
		end = t.size
	}
	if end <= offset {
		return 0, 0, false
	}
	return offset, end, true
}

// MarkRange marks [offset, offset+size) dirty. The range is clipped to the
// tracked region; a range entirely outside it is a silent no-op, matching
// the base cache's policy of treating out-of-range requests as data rather
// than as errors.
func (t *Tracker) MarkRange(offset, size int) {
	start, end, ok := t.clampRange(offset, size)
	if !ok {
		return
	}
	t.setWords(start, end, true)
}

// UnmarkRange clears [offset, offset+size).
func (t *Tracker) UnmarkRange(offset, size int) {
	start, end, ok := t.clampRange(offset, size)
	if !ok {
		return
	}
	t.setWords(start, end, false)
}

func (t *Tracker) setWords(start, end int, value bool) {
	firstWord := start / WordSize
	lastWord := (end - 1) / WordSize
	for w := firstWord; w <= lastWord; w++ {
		idx, bit := w/64, uint(w%64)
		if value {
			t.words[idx] |= 1 << bit
		} else {
			t.words[idx] &^= 1 << bit
		}
	}
}

// IsDirty reports whether any byte in [offset, offset+size) is marked.
func (t *Tracker) IsDirty(offset, size int) bool {
	dirty := false
	t.ForEachRangeWithin(offset, size, func(int, int) {
		dirty = true
	})
	return dirty
}

// Range is a contiguous dirty byte span.
type Range struct {
	Offset int
	Size   int
}

// ForEachRange invokes f once per maximal contiguous dirty span across the
// whole tracked region, in ascending order.
func (t *Tracker) ForEachRange(f func(offset, size int)) {
	t.ForEachRangeWithin(0, t.size, f)
}

// ForEachRangeWithin invokes f once per maximal contiguous dirty span
// intersected with [offset, offset+size). This is the "two overloads" the
// base cache's Buffer capability exposes for for_each_download_range: one
// over the whole buffer, one clipped to a caller-supplied window.
func (t *Tracker) ForEachRangeWithin(offset, size int, f func(offset, size int)) {
	start, end, ok := t.clampRange(offset, size)
	if !ok {
		return
	}

	firstWord := start / WordSize
	lastWord := (end - 1) / WordSize

	spanStart := -1
	flush := func(wordAfterEnd int) {
		if spanStart < 0 {
			return
		}
		rangeStart := spanStart * WordSize
		rangeEnd := wordAfterEnd * WordSize
		if rangeStart < start {
			rangeStart = start
		}
		if rangeEnd > end {
			rangeEnd = end
		}
		f(rangeStart, rangeEnd-rangeStart)
		spanStart = -1
	}

	for w := firstWord; w <= lastWord; w++ {
		idx, bit := w/64, uint(w%64)
		set := t.words[idx]&(1<<bit) != 0
		if set && spanStart < 0 {
			spanStart = w
		} else if !set && spanStart >= 0 {
			flush(w)
		}
	}
	flush(lastWord + 1)
}

// Validate checks that the tracker's word slice matches its declared size;
// used by debug-build invariant checks, mirroring memutils.Validatable.
func (t *Tracker) Validate() error {
	want := numWords(t.size)
	if len(t.words) != want {
		return errors.Errorf("rangeset: tracker for size %d has %d words, want %d", t.size, len(t.words), want)
	}
	return nil
}
