package chord

import "unicode"

// Buffer accumulates the characters a keyboard or chording device emits for
// the current item. Device auto-correction shows up as backspaces followed by
// the resolved word; the buffer keeps the final text and remembers that a
// backspace happened.
type Buffer struct {
	text      []rune
	arrivals  []Arrival
	backspace bool
	complete  bool
}

// Type appends r. A delimiter completes the burst and reports true, unless
// nothing has been typed yet, in which case it is ignored.
func (b *Buffer) Type(r rune, atMs int64) bool {
	if isDelimiter(r) {
		if len(b.text) == 0 {
			return false
		}
		b.complete = true
		return true
	}
	b.text = append(b.text, r)
	b.arrivals = append(b.arrivals, Arrival{Char: r, AtMs: atMs})
	return false
}

// Backspace removes the last character.
func (b *Buffer) Backspace() {
	b.backspace = true
	if len(b.text) > 0 {
		b.text = b.text[:len(b.text)-1]
	}
}

// Feed types every rune of s at atMs, treating '\b' as a backspace. It reports
// whether a delimiter completed the burst.
func (b *Buffer) Feed(s string, atMs int64) bool {
	for _, r := range s {
		if r == '\b' {
			b.Backspace()
			continue
		}
		if b.Type(r, atMs) {
			return true
		}
	}
	return false
}

// Burst snapshots the buffer.
func (b *Buffer) Burst(presentedAtMs, completedAtMs int64) Burst {
	arrivals := make([]Arrival, len(b.arrivals))
	copy(arrivals, b.arrivals)
	return Burst{
		Arrivals:          arrivals,
		Text:              string(b.text),
		DelimiterSeen:     b.complete,
		BackspaceObserved: b.backspace,
		PresentedAtMs:     presentedAtMs,
		CompletedAtMs:     completedAtMs,
	}
}

// Len returns the number of characters currently buffered.
func (b *Buffer) Len() int { return len(b.text) }

// Reset clears all buffered state.
func (b *Buffer) Reset() {
	b.text = b.text[:0]
	b.arrivals = b.arrivals[:0]
	b.backspace = false
	b.complete = false
}

func isDelimiter(r rune) bool {
	return unicode.IsSpace(r)
}
