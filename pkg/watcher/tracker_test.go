package watcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrackerAdvancesPastTerminalBlocksOnly(t *testing.T) {
	var persisted []uint64
	tr := NewTracker(5, func(next uint64) { persisted = append(persisted, next) })
	assert.Equal(t, uint64(5), tr.Checkpoint())

	done7 := tr.Add(7)
	done9 := tr.Add(9)
	tr.MarkScanned(5, 10)
	assert.Equal(t, uint64(7), tr.Checkpoint())
	assert.Equal(t, 2, tr.Pending())

	done9()
	assert.Equal(t, uint64(7), tr.Checkpoint())
	done7()
	done7()
	assert.Equal(t, uint64(11), tr.Checkpoint())
	assert.Equal(t, 0, tr.Pending())
	assert.Equal(t, []uint64{7, 11}, persisted)
}

func TestTrackerWaitsForGaps(t *testing.T) {
	tr := NewTracker(1, nil)
	tr.MarkScanned(11, 20)
	assert.Equal(t, uint64(1), tr.Checkpoint())
	tr.MarkScanned(1, 5)
	assert.Equal(t, uint64(6), tr.Checkpoint())
	tr.MarkScanned(6, 10)
	assert.Equal(t, uint64(21), tr.Checkpoint())

	tr.MarkScanned(3, 8)
	tr.MarkScanned(9, 2)
	assert.Equal(t, uint64(21), tr.Checkpoint())
}

func TestTrackerStartsAtOne(t *testing.T) {
	tr := NewTracker(0, nil)
	assert.Equal(t, uint64(1), tr.Checkpoint())
}
