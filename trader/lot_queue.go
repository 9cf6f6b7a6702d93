package trader

// Lot is a single entry-fill record kept on the FIFO lot queue, consumed by
// take-profit fills in entry order (spec §4.8).
type Lot struct {
	Qty        float64
	EntryPrice float64
}

// LotQueue is a FIFO queue of entry lots for one side of one symbol. A
// take-profit fill pops from the head, splitting it proportionally when the
// fill is smaller than the head lot (spec §4.8: "partial fills handled by
// splitting the head lot proportionally").
type LotQueue struct {
	lots []Lot
}

// Push appends a newly filled entry lot to the tail of the queue.
func (q *LotQueue) Push(qty, entryPrice float64) {
	if qty <= 0 {
		return
	}
	q.lots = append(q.lots, Lot{Qty: qty, EntryPrice: entryPrice})
}

// PopFilled consumes qty from the head of the queue, returning the
// volume-weighted average entry price of what was consumed. If qty exceeds
// the queue's total, it consumes everything available and reports the
// actually-consumed quantity.
func (q *LotQueue) PopFilled(qty float64) (consumedQty, avgEntryPrice float64) {
	remaining := qty
	var weightedSum float64

	i := 0
	for i < len(q.lots) && remaining > 1e-12 {
		lot := &q.lots[i]
		if lot.Qty <= remaining {
			weightedSum += lot.Qty * lot.EntryPrice
			consumedQty += lot.Qty
			remaining -= lot.Qty
			i++
			continue
		}

		weightedSum += remaining * lot.EntryPrice
		consumedQty += remaining
		lot.Qty -= remaining
		remaining = 0
	}

	q.lots = q.lots[i:]
	if consumedQty <= 0 {
		return 0, 0
	}
	return consumedQty, weightedSum / consumedQty
}

// TotalQty sums the quantity still held across all lots.
func (q *LotQueue) TotalQty() float64 {
	var total float64
	for _, l := range q.lots {
		total += l.Qty
	}
	return total
}

// Empty reports whether the queue holds no lots.
func (q *LotQueue) Empty() bool {
	return len(q.lots) == 0
}
