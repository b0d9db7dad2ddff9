package util

import "sync"

// ChunkPool recycles read buffers of one fixed size for the stream
// pumps.  Every session opens three pumps, so buffers churn quickly.
type ChunkPool struct {
	size int
	pool sync.Pool
}

// NewChunkPool returns a pool of size-byte buffers.
func NewChunkPool(size int) *ChunkPool {
	p := &ChunkPool{size: size}
	p.pool.New = func() interface{} {
		buf := make([]byte, size)
		return &buf
	}
	return p
}

// Size returns the length of every buffer the pool hands out.
func (p *ChunkPool) Size() int { return p.size }

// Get retrieves a buffer.  Callers must return it with [ChunkPool.Put].
func (p *ChunkPool) Get() *[]byte {
	return p.pool.Get().(*[]byte)
}

// Put returns buf for reuse.  Buffers of another length are dropped.
func (p *ChunkPool) Put(buf *[]byte) {
	if buf == nil || len(*buf) != p.size {
		return
	}
	p.pool.Put(buf)
}

var chunkPools sync.Map // int → *ChunkPool

// ChunkPoolFor returns the shared pool for size, creating it on first
// use.  Sessions configured with the same chunk size share buffers.
func ChunkPoolFor(size int) *ChunkPool {
	if p, ok := chunkPools.Load(size); ok {
		return p.(*ChunkPool)
	}
	p, _ := chunkPools.LoadOrStore(size, NewChunkPool(size))
	return p.(*ChunkPool)
}
