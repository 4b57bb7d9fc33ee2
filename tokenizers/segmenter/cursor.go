package segmenter

import "github.com/pkg/errors"

// Window is the half-open range [Start, End) of characters classified together in one model
// forward pass.
type Window struct {
	Start, End int
}

// Len returns the number of characters in the window.
func (w Window) Len() int {
	return w.End - w.Start
}

// Cursor iterates over the windows of a text of the given length. The start of each window
// after the first one is decided by the caller, with Advance, after processing the
// previous window.
//
// It is used by the Segmenter, which shifts according to the predictions, and by the
// training loop, which shifts according to the gold labels.
type Cursor struct {
	length, size int
	start        int
}

// NewCursor creates a Cursor over a text of length characters, with windows of at most size
// characters.
func NewCursor(length, size int) *Cursor {
	if size <= 0 {
		panic(errors.Errorf("segmenter: window size must be positive, got %d", size))
	}
	return &Cursor{length: length, size: size}
}

// Next returns the window at the current position, or false when the text is exhausted.
func (c *Cursor) Next() (Window, bool) {
	if c.start >= c.length {
		return Window{}, false
	}
	return Window{Start: c.start, End: min(c.start+c.size, c.length)}, true
}

// Advance moves the cursor so the next window starts at next.
//
// Windows must move forward: next is clamped to at least one character after the current
// start, so that the iteration always terminates.
func (c *Cursor) Advance(next int) {
	c.start = max(next, c.start+1)
}
