package trader

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLotQueuePushAndPopFIFO(t *testing.T) {
	q := &LotQueue{}
	q.Push(1, 100)
	q.Push(2, 110)

	qty, avg := q.PopFilled(1)
	assert.InDelta(t, 1, qty, 1e-9)
	assert.InDelta(t, 100, avg, 1e-9)
	assert.InDelta(t, 2, q.TotalQty(), 1e-9)
}

func TestLotQueueSplitsHeadLotProportionally(t *testing.T) {
	q := &LotQueue{}
	q.Push(2, 100)

	qty, avg := q.PopFilled(0.5)
	assert.InDelta(t, 0.5, qty, 1e-9)
	assert.InDelta(t, 100, avg, 1e-9)
	assert.InDelta(t, 1.5, q.TotalQty(), 1e-9)
}

func TestLotQueuePopAcrossMultipleLotsWeightsAverage(t *testing.T) {
	q := &LotQueue{}
	q.Push(1, 100)
	q.Push(1, 200)

	qty, avg := q.PopFilled(2)
	assert.InDelta(t, 2, qty, 1e-9)
	assert.InDelta(t, 150, avg, 1e-9)
	assert.True(t, q.Empty())
}

func TestLotQueuePopMoreThanAvailableConsumesWhatExists(t *testing.T) {
	q := &LotQueue{}
	q.Push(1, 100)

	qty, avg := q.PopFilled(5)
	assert.InDelta(t, 1, qty, 1e-9)
	assert.InDelta(t, 100, avg, 1e-9)
	assert.True(t, q.Empty())
}

func TestLotQueuePopFromEmptyReturnsZero(t *testing.T) {
	q := &LotQueue{}
	qty, avg := q.PopFilled(1)
	assert.Equal(t, 0.0, qty)
	assert.Equal(t, 0.0, avg)
}
