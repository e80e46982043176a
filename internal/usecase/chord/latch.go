package chord

import (
	"sync"
	"time"

	"github.com/eslsoft/chordnet/pkg/clock"
)

// DefaultSettleDelay is how long the latch stays set after scoring.
const DefaultSettleDelay = 150 * time.Millisecond

// Latch is the in-flight guard shared by the held-key and text-burst paths.
// Whichever path acquires it first scores the attempt; the other path's
// observation of the same physical input is dropped until the latch settles.
type Latch struct {
	mu     sync.Mutex
	clock  clock.Clock
	settle time.Duration
	held   bool
	gen    uint64
	timer  clock.Timer
}

// NewLatch builds a latch that clears settle after Release.
func NewLatch(c clock.Clock, settle time.Duration) *Latch {
	if c == nil {
		c = clock.Real{}
	}
	if settle < 0 {
		settle = 0
	}
	return &Latch{clock: c, settle: settle}
}

// TryAcquire sets the latch and reports whether the caller owns it.
func (l *Latch) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return false
	}
	l.held = true
	l.gen++
	return true
}

// Release clears the latch after the settle delay.
func (l *Latch) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return
	}
	if l.timer != nil {
		l.timer.Stop()
	}
	gen := l.gen
	if l.settle == 0 {
		l.held = false
		return
	}
	l.timer = l.clock.AfterFunc(l.settle, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.gen == gen {
			l.held = false
			l.timer = nil
		}
	})
}

// Reset clears the latch immediately and cancels a pending settle.
func (l *Latch) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.held = false
	l.gen++
}

// Held reports whether the latch is set.
func (l *Latch) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}
