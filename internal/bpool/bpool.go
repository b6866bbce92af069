// Package bpool pools the byte slices used to assemble outgoing frames.
package bpool

import "sync"

// maxPooled is the largest capacity returned to the pool so a single
// large message does not pin its buffer for the life of the process.
const maxPooled = 64 << 10

var pool sync.Pool

// Get returns a zero length slice with a capacity of at least n bytes,
// reusing a pooled slice when one is large enough.
func Get(n int) *[]byte {
	b, ok := pool.Get().(*[]byte)
	if !ok || cap(*b) < n {
		nb := make([]byte, 0, n)
		return &nb
	}
	*b = (*b)[:0]
	return b
}

// Put returns b to the pool.
func Put(b *[]byte) {
	if cap(*b) > maxPooled {
		return
	}
	*b = (*b)[:0]
	pool.Put(b)
}
