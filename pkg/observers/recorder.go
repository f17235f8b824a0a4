package observers

import (
	"fmt"
	"sync"
	"time"

	"github.com/anggasct/junction"
	"github.com/anggasct/junction/pkg/clock"
)

// Entry is one recorded light state
type Entry struct {
	At     time.Time
	Offset time.Duration
	State  junction.LightState
}

// String renders the entry as "+4.000s yellow: a b"
func (e Entry) String() string {
	return fmt.Sprintf("+%.3fs %s", e.Offset.Seconds(), e.State)
}

// Recorder keeps every published light state with the time it was seen
type Recorder struct {
	clock clock.Clock
	start time.Time

	mutex   sync.RWMutex
	entries []Entry
}

// NewRecorder creates a recorder whose offsets count from clk.Now()
func NewRecorder(clk clock.Clock) *Recorder {
	return &Recorder{clock: clk, start: clk.Now()}
}

// Listen records s
func (r *Recorder) Listen(s junction.LightState) {
	now := r.clock.Now()

	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.entries = append(r.entries, Entry{At: now, Offset: now.Sub(r.start), State: s})
}

// Entries returns a copy of every recorded entry
func (r *Recorder) Entries() []Entry {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return append([]Entry(nil), r.entries...)
}

// Len returns the number of recorded entries
func (r *Recorder) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.entries)
}

// Timeline renders each entry on its own line
func (r *Recorder) Timeline() []string {
	entries := r.Entries()
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.String()
	}
	return lines
}

// Reset drops the recorded entries and restarts offsets from now
func (r *Recorder) Reset() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.entries = nil
	r.start = r.clock.Now()
}
