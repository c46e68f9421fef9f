package engine

// ---------------------------------------------------------------------------
// ringQueue: growable FIFO on a circular buffer
// ---------------------------------------------------------------------------

const ringQueueMinCap = 16

// ringQueue is an unbounded FIFO. Enqueue order is dequeue order; the
// backing buffer doubles when full so both operations stay amortized O(1).
type ringQueue[T any] struct {
	buf   []T
	head  int
	tail  int
	count int
}

func newRingQueue[T any]() *ringQueue[T] {
	return &ringQueue[T]{buf: make([]T, ringQueueMinCap)}
}

func (q *ringQueue[T]) len() int {
	return q.count
}

func (q *ringQueue[T]) enqueue(v T) {
	if q.count == len(q.buf) {
		q.grow()
	}
	q.buf[q.tail] = v
	q.tail = (q.tail + 1) % len(q.buf)
	q.count++
}

func (q *ringQueue[T]) dequeue() (T, bool) {
	var zero T
	if q.count == 0 {
		return zero, false
	}
	v := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	return v, true
}

func (q *ringQueue[T]) grow() {
	next := make([]T, len(q.buf)*2)
	n := copy(next, q.buf[q.head:])
	copy(next[n:], q.buf[:q.head])
	q.buf = next
	q.head = 0
	q.tail = q.count
}
