// Package queue holds the ordered, de-duplicating work queue used to track dirty entities.
package queue

// UniqueFIFO is an insertion-ordered set. A key already queued is not re-added
// and keeps its original position. It is not safe for concurrent use.
type UniqueFIFO[K comparable] struct {
	items []K
	head  int
	set   map[K]struct{}

	// drain round state for ShiftPortion
	roundN    int
	roundLeft int // keys of the current round still queued
	callsLeft int
}

// New returns an empty queue.
func New[K comparable]() *UniqueFIFO[K] {
	return &UniqueFIFO[K]{set: make(map[K]struct{})}
}

// Add appends key unless it is already queued. Reports whether it was added.
func (q *UniqueFIFO[K]) Add(key K) bool {
	if _, ok := q.set[key]; ok {
		return false
	}
	q.set[key] = struct{}{}
	q.items = append(q.items, key)
	return true
}

// Extend adds keys in order and returns how many were new.
func (q *UniqueFIFO[K]) Extend(keys []K) int {
	added := 0
	for _, k := range keys {
		if q.Add(k) {
			added++
		}
	}
	return added
}

// Contains reports whether key is queued.
func (q *UniqueFIFO[K]) Contains(key K) bool {
	_, ok := q.set[key]
	return ok
}

// Remove drops key if it is queued.
func (q *UniqueFIFO[K]) Remove(key K) bool {
	if _, ok := q.set[key]; !ok {
		return false
	}
	delete(q.set, key)
	for i := q.head; i < len(q.items); i++ {
		if q.items[i] == key {
			if i-q.head < q.roundLeft {
				q.roundLeft--
			}
			q.items = append(q.items[:i], q.items[i+1:]...)
			break
		}
	}
	q.compact()
	return true
}

// Len returns the number of queued keys.
func (q *UniqueFIFO[K]) Len() int {
	return len(q.items) - q.head
}

// ShiftPortion removes and returns roughly 1/n of the queue from the front.
//
// The first call of a drain round snapshots the queued keys; each call then
// returns max(1, ceil(remaining/calls_left)) of them, so n consecutive calls
// drain exactly the keys present at the start of the round. Keys added
// meanwhile wait behind the round, even when it empties before its n calls
// are used up. A call with a different n starts a new round.
func (q *UniqueFIFO[K]) ShiftPortion(n int) []K {
	if n < 1 {
		n = 1
	}
	if n != q.roundN || q.callsLeft == 0 {
		q.roundN = n
		q.roundLeft = q.Len()
		q.callsLeft = n
	}
	calls := q.callsLeft
	q.callsLeft--
	if q.roundLeft == 0 {
		return nil
	}

	count := (q.roundLeft + calls - 1) / calls
	if count < 1 {
		count = 1
	}
	out := q.shift(count)
	q.roundLeft -= len(out)
	if q.roundLeft < 0 {
		q.roundLeft = 0
	}
	return out
}

// ShiftAll drains the whole queue and ends any drain round.
func (q *UniqueFIFO[K]) ShiftAll() []K {
	q.roundLeft, q.callsLeft = 0, 0
	return q.shift(q.Len())
}

func (q *UniqueFIFO[K]) shift(count int) []K {
	if count > q.Len() {
		count = q.Len()
	}
	out := make([]K, count)
	copy(out, q.items[q.head:q.head+count])
	var zero K
	for i := q.head; i < q.head+count; i++ {
		delete(q.set, q.items[i])
		q.items[i] = zero
	}
	q.head += count
	q.compact()
	return out
}

func (q *UniqueFIFO[K]) compact() {
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
		return
	}
	if q.head > 1024 && q.head*2 > len(q.items) {
		n := copy(q.items, q.items[q.head:])
		q.items = q.items[:n]
		q.head = 0
	}
}
