package queue

// Candidate is a node id with its distance to the query.
type Candidate struct {
	ID   uint32
	Dist float32
}

type seqCandidate struct {
	Candidate
	seq uint64
}

// CandidateQueue is a value-based min-heap. Equal distances pop in insertion order.
type CandidateQueue struct {
	items []seqCandidate
	seq   uint64
}

// NewCandidateQueue returns a queue with room for capacity entries.
func NewCandidateQueue(capacity int) *CandidateQueue {
	return &CandidateQueue{items: make([]seqCandidate, 0, capacity)}
}

// Len returns the number of queued candidates.
func (q *CandidateQueue) Len() int { return len(q.items) }

// Push inserts a candidate.
func (q *CandidateQueue) Push(id uint32, dist float32) {
	q.items = append(q.items, seqCandidate{Candidate{id, dist}, q.seq})
	q.seq++
	q.siftUp(len(q.items) - 1)
}

// Peek returns the best candidate without removing it.
func (q *CandidateQueue) Peek() (Candidate, bool) {
	if len(q.items) == 0 {
		return Candidate{}, false
	}
	return q.items[0].Candidate, true
}

// Pop removes and returns the best candidate.
func (q *CandidateQueue) Pop() (Candidate, bool) {
	n := len(q.items)
	if n == 0 {
		return Candidate{}, false
	}
	top := q.items[0]
	q.items[0] = q.items[n-1]
	q.items = q.items[:n-1]
	if n > 1 {
		q.siftDown(0)
	}
	return top.Candidate, true
}

// Reset empties the queue, keeping its storage.
func (q *CandidateQueue) Reset() {
	q.items = q.items[:0]
	q.seq = 0
}

func (q *CandidateQueue) less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if a.Dist != b.Dist {
		return a.Dist < b.Dist
	}
	return a.seq < b.seq
}

func (q *CandidateQueue) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if !q.less(i, p) {
			return
		}
		q.items[i], q.items[p] = q.items[p], q.items[i]
		i = p
	}
}

func (q *CandidateQueue) siftDown(i int) {
	n := len(q.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		best := l
		if r := l + 1; r < n && q.less(r, l) {
			best = r
		}
		if !q.less(best, i) {
			return
		}
		q.items[i], q.items[best] = q.items[best], q.items[i]
		i = best
	}
}
