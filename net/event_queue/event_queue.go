// Package event_queue keeps items sorted by an int64 key, earliest first.
//
// It is an ordered singly linked list: insert walks the list (O(n)),
// peeking and popping the earliest entry are O(1). Entries with equal keys
// keep their insertion order.
package event_queue

type node[T comparable] struct {
	key  int64
	item T
	next *node[T]
}

type Queue[T comparable] struct {
	head node[T] // sentinel, head.next is the earliest entry
	tail *node[T]
	size int
}

func New[T comparable]() *Queue[T] {
	var q Queue[T]
	q.tail = &q.head
	return &q
}

func (this *Queue[T]) Len() int {
	return this.size
}

// Insert places item before the first entry whose key is strictly greater.
func (this *Queue[T]) Insert(item T, key int64) {
	p := &this.head
	for p.next != nil && p.next.key <= key {
		p = p.next
	}
	n := &node[T]{key: key, item: item, next: p.next}
	p.next = n
	if n.next == nil {
		this.tail = n
	}
	this.size++
}

// InsertTail appends item regardless of key. The ascending order is only
// kept if key is not smaller than the current last key; sentinels and tests
// rely on that being the caller's business.
func (this *Queue[T]) InsertTail(item T, key int64) {
	n := &node[T]{key: key, item: item}
	this.tail.next = n
	this.tail = n
	this.size++
}

func (this *Queue[T]) Peek() (item T, key int64, ok bool) {
	if this.head.next == nil {
		return item, 0, false
	}
	return this.head.next.item, this.head.next.key, true
}

func (this *Queue[T]) Pop() (item T, key int64, ok bool) {
	n := this.head.next
	if n == nil {
		return item, 0, false
	}
	this.head.next = n.next
	if this.tail == n {
		this.tail = &this.head
	}
	n.next = nil
	this.size--
	return n.item, n.key, true
}

// Remove unlinks item and reports whether it was present.
func (this *Queue[T]) Remove(item T) bool {
	for p := &this.head; p.next != nil; p = p.next {
		if p.next.item != item {
			continue
		}
		n := p.next
		p.next = n.next
		if this.tail == n {
			this.tail = p
		}
		n.next = nil
		this.size--
		return true
	}
	return false
}

func (this *Queue[T]) Contains(item T) bool {
	for p := this.head.next; p != nil; p = p.next {
		if p.item == item {
			return true
		}
	}
	return false
}

// Key returns the key item was inserted with.
func (this *Queue[T]) Key(item T) (int64, bool) {
	for p := this.head.next; p != nil; p = p.next {
		if p.item == item {
			return p.key, true
		}
	}
	return 0, false
}

// Each visits entries in order until fn returns false. fn must not mutate the queue.
func (this *Queue[T]) Each(fn func(item T, key int64) bool) {
	for p := this.head.next; p != nil; p = p.next {
		if !fn(p.item, p.key) {
			return
		}
	}
}
