package planner

// Queue is the planner buffer ring: a fixed ring of blocks with a run index
// chasing a write index. The loader produces Prepped entries at the write
// side; the executor consumes Running entries at the run side. State
// transitions are the only cross-context signal, so each side touches only
// the fields it owns.
type Queue struct {
	blocks   []Block
	runIdx   uint16
	writeIdx uint16
	entries  int

	// runTimeRemaining is the estimated time left in queued and running
	// moves, maintained for status reporting.
	runTimeRemaining float64
}

// newQueue builds a ring with the given number of entries and fixed
// neighbor links.
func newQueue(size int) *Queue {
	q := &Queue{blocks: make([]Block, size)}
	n := uint16(size)
	for i := range q.blocks {
		bf := &q.blocks[i]
		bf.idx = uint16(i)
		bf.nx = (bf.idx + 1) % n
		bf.pv = (bf.idx + n - 1) % n
		bf.nxGroup = bf.nx
		bf.pvGroup = bf.pv
	}
	return q
}

// get returns the block at a ring index.
func (q *Queue) get(i uint16) *Block { return &q.blocks[i] }

// RunBuffer returns the block at the run index, or nil if nothing is queued.
func (q *Queue) RunBuffer() *Block {
	bf := &q.blocks[q.runIdx]
	if bf.bufferState == BufferEmpty {
		return nil
	}
	return bf
}

// HasRunnableBuffer reports whether the run side has work.
func (q *Queue) HasRunnableBuffer() bool {
	return q.blocks[q.runIdx].bufferState != BufferEmpty
}

// FreeRunBuffer resets the finished run buffer and advances the run index.
// It returns true if the queue is now empty.
func (q *Queue) FreeRunBuffer() bool {
	bf := &q.blocks[q.runIdx]
	bf.reset()
	q.runIdx = bf.nx
	q.entries--
	return q.blocks[q.runIdx].bufferState == BufferEmpty
}

// writeBuffer returns the next free entry at the write side, or nil if the
// ring is full.
func (q *Queue) writeBuffer() *Block {
	bf := &q.blocks[q.writeIdx]
	if bf.bufferState != BufferEmpty {
		return nil
	}
	return bf
}

// commitWriteBuffer publishes the write buffer as Prepped and advances the
// write index. Publishing the state is the last store so the run side never
// observes a half-built block.
func (q *Queue) commitWriteBuffer() {
	bf := &q.blocks[q.writeIdx]
	bf.moveState = MoveNew
	bf.bufferState = BufferPrepped
	q.writeIdx = bf.nx
	q.entries++
	q.runTimeRemaining += bf.moveTime
}

// Len returns the number of occupied entries.
func (q *Queue) Len() int { return q.entries }

// RunTimeRemaining returns the estimated seconds of motion left in the
// queue.
func (q *Queue) RunTimeRemaining() float64 { return q.runTimeRemaining }

// ReplanQueue walks forward from the given block and downgrades every
// planned entry to Prepped so the forward planner re-ramps it. Used by
// feedhold after it rewrites the running block: the abandoned dispersal
// cannot be resumed, so group links are severed and each queued block
// ramps as its own group.
func (q *Queue) ReplanQueue(from uint16) {
	idx := from
	for {
		bf := &q.blocks[idx]
		if bf.bufferState == BufferEmpty {
			break
		}
		if bf.bufferState >= BufferPlanned {
			bf.bufferState = BufferPrepped
		}
		bf.plannable = true
		bf.nxGroup = bf.nx
		bf.pvGroup = bf.pv
		bf.groupLength = bf.length
		idx = bf.nx
		if idx == from {
			break
		}
	}
}

// PlannerTimeAccounting recomputes the remaining-time estimate from the
// queued moves. Called when a block transitions to Running.
func (q *Queue) PlannerTimeAccounting() {
	var total float64
	idx := q.runIdx
	for {
		bf := &q.blocks[idx]
		if bf.bufferState == BufferEmpty {
			break
		}
		total += bf.moveTime
		idx = bf.nx
		if idx == q.runIdx {
			break
		}
	}
	q.runTimeRemaining = total
}
