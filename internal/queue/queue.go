package queue

import "errors"

// Worklist is a FIFO queue that ignores pushes of elements already waiting.
// Popped elements may be pushed again, which is exactly the discipline a
// data-flow fixpoint needs.
type Worklist[E comparable] struct {
	elements []E
	queued   map[E]struct{}
}

// Push appends e unless it is already queued and reports whether it was
// added.
func (q *Worklist[E]) Push(e E) bool {
	if q.queued == nil {
		q.queued = make(map[E]struct{})
	}
	if _, ok := q.queued[e]; ok {
		return false
	}
	q.queued[e] = struct{}{}
	q.elements = append(q.elements, e)
	return true
}

func (q *Worklist[E]) Empty() bool {
	return len(q.elements) == 0
}

var ErrEmpty = errors.New("Worklist is empty")

func (q *Worklist[E]) Pop() E {
	if q.Empty() {
		panic(ErrEmpty)
	}

	e := q.elements[0]
	q.elements = q.elements[1:]
	delete(q.queued, e)
	return e
}
