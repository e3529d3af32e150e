package rendezvous

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
)

// DefaultJournalSize is the number of phase transitions kept.
const DefaultJournalSize = 64

// Transition is one recorded phase change.
type Transition struct {
	At    time.Time `json:"at"`
	From  Phase     `json:"from"`
	To    Phase     `json:"to"`
	Cause string    `json:"cause"`
}

func (t Transition) String() string {
	return fmt.Sprintf("%s %s -> %s (%s)", t.At.Format(time.RFC3339), t.From, t.To, t.Cause)
}

// Journal keeps the most recent phase transitions, dropping the oldest when
// full. It is written by the event loop and may be drained from any goroutine.
type Journal struct {
	buffer      mpmc.RichOverlappedRingBuffer[Transition]
	overwritten atomic.Int64
	recorded    atomic.Int64
}

// NewJournal creates a journal holding up to size transitions.
func NewJournal(size uint32) *Journal {
	if size == 0 {
		size = DefaultJournalSize
	}
	return &Journal{buffer: mpmc.NewOverlappedRingBuffer[Transition](size)}
}

// Record appends a transition.
func (j *Journal) Record(t Transition) error {
	overwrites, err := j.buffer.EnqueueM(t)
	if err != nil {
		return fmt.Errorf("journal enqueue: %w", err)
	}
	j.overwritten.Add(int64(overwrites))
	j.recorded.Add(1)
	return nil
}

// Drain removes and returns every buffered transition, oldest first.
func (j *Journal) Drain() []Transition {
	var out []Transition
	for !j.buffer.IsEmpty() {
		t, err := j.buffer.Dequeue()
		if err != nil {
			break
		}
		out = append(out, t)
	}
	return out
}

// Recorded returns how many transitions were ever recorded.
func (j *Journal) Recorded() int64 {
	return j.recorded.Load()
}

// Overwritten returns how many transitions were dropped for space.
func (j *Journal) Overwritten() int64 {
	return j.overwritten.Load()
}
