package util

import "sync"

// BufPool hands out fixed-size byte buffers for network reads,
// reducing GC pressure on hot paths like chunked stream pulls.
type BufPool struct {
	size int
	pool sync.Pool
}

// NewBufPool returns a pool of buffers that are exactly size bytes long.
func NewBufPool(size int) *BufPool {
	p := &BufPool{size: size}
	p.pool.New = func() interface{} {
		buf := make([]byte, size)
		return &buf
	}
	return p
}

// Size reports the length of every buffer in the pool.
func (p *BufPool) Size() int { return p.size }

// Get retrieves a buffer from the pool.  Callers must return it with
// [BufPool.Put] when finished.
func (p *BufPool) Get() *[]byte {
	return p.pool.Get().(*[]byte)
}

// Put returns a buffer to the pool for reuse.
func (p *BufPool) Put(buf *[]byte) {
	if buf == nil || cap(*buf) < p.size {
		return
	}
	*buf = (*buf)[:p.size]
	p.pool.Put(buf)
}
