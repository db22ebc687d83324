package watcher

import (
	"sync"
)

// Tracker computes the durable scan checkpoint of one ledger. The checkpoint
// is the lowest block that is either not yet scanned or still holds an event
// that has not reached a terminal state, so a restart rescans everything that
// could still need work.
type Tracker struct {
	mu sync.Mutex
	// frontier is the highest block such that every block from the start up to
	// it has been scanned.
	frontier uint64
	// scanned holds completed ranges above the frontier, keyed by first block.
	scanned map[uint64]uint64
	// pending counts non-terminal events per block.
	pending map[uint64]int
	// persist is called with the new checkpoint whenever it increases.
	persist    func(next uint64)
	checkpoint uint64
}

// NewTracker starts tracking at block start, i.e. blocks up to start-1 are
// already processed.
func NewTracker(start uint64, persist func(next uint64)) *Tracker {
	if start == 0 {
		start = 1
	}
	return &Tracker{
		frontier:   start - 1,
		scanned:    make(map[uint64]uint64),
		pending:    make(map[uint64]int),
		persist:    persist,
		checkpoint: start,
	}
}

// Add registers an event in block that must reach a terminal state before the
// checkpoint may pass it. It returns the function that reports that state; the
// function is safe to call more than once.
func (t *Tracker) Add(block uint64) (done func()) {
	t.mu.Lock()
	t.pending[block]++
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { t.done(block) })
	}
}

func (t *Tracker) done(block uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[block]--
	if t.pending[block] <= 0 {
		delete(t.pending, block)
	}
	t.advanceLocked()
}

// MarkScanned records that every event in [from, to] has been registered.
func (t *Tracker) MarkScanned(from, to uint64) {
	if to < from {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if to <= t.frontier {
		return
	}
	if from <= t.frontier+1 {
		t.frontier = to
	} else if prev, ok := t.scanned[from]; !ok || prev < to {
		t.scanned[from] = to
	}
	for {
		to, ok := t.scanned[t.frontier+1]
		if !ok {
			break
		}
		delete(t.scanned, t.frontier+1)
		if to > t.frontier {
			t.frontier = to
		}
	}
	t.advanceLocked()
}

func (t *Tracker) advanceLocked() {
	next := t.frontier + 1
	for block := range t.pending {
		if block < next {
			next = block
		}
	}
	if next > t.checkpoint {
		t.checkpoint = next
		if t.persist != nil {
			t.persist(next)
		}
	}
}

// Checkpoint returns the next block a restarted watcher has to scan.
func (t *Tracker) Checkpoint() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.checkpoint
}

// Pending returns the number of events that have not reached a terminal state.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, c := range t.pending {
		n += c
	}
	return n
}
