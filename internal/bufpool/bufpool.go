// Copyright © 2024 Vortex Studio.

// Package bufpool provides size-classed byte-slice reuse. Its caller in
// this module is nodes.NDIOutput, which takes its two staging buffers from
// the package-level pool.
package bufpool

import "sync"

var sizeClasses = []int{4096, 65536, 1 << 20}

type classPool struct {
	size int
	pool *sync.Pool
}

// Pool hands out byte slices from a fixed set of size classes.
type Pool struct {
	pools []classPool
}

var defaultPool = New()

// Get acquires a buffer from the package-level default pool.
func Get(size int) []byte { return defaultPool.Get(size) }

// Put releases a buffer back to the package-level default pool.
func Put(buf []byte) { defaultPool.Put(buf) }

// New builds a pool with size classes tuned for demuxed packet payloads:
// typical compressed frame (4KB), a full I-frame (64KB), and an
// uncompressed raw audio/video buffer (1MB).
func New() *Pool {
	pools := make([]classPool, len(sizeClasses))
	for i, classSize := range sizeClasses {
		size := classSize
		pools[i] = classPool{
			size: size,
			pool: &sync.Pool{New: func() any { return make([]byte, size) }},
		}
	}
	return &Pool{pools: pools}
}

// Get returns a slice of exactly size bytes, backed by the smallest size
// class that fits. Requests larger than the largest class allocate
// unpooled.
func (p *Pool) Get(size int) []byte {
	if p == nil || size <= 0 {
		return nil
	}
	for i := range p.pools {
		class := &p.pools[i]
		if size <= class.size {
			buf := class.pool.Get().([]byte)
			return buf[:size]
		}
	}
	return make([]byte, size)
}

// Put returns buf to the pool if its capacity exactly matches a size
// class; otherwise it is discarded. The buffer is cleared before reuse.
func (p *Pool) Put(buf []byte) {
	if p == nil || buf == nil {
		return
	}
	capBuf := cap(buf)
	for i := range p.pools {
		class := &p.pools[i]
		if capBuf == class.size {
			full := buf[:class.size]
			clear(full)
			class.pool.Put(full)
			return
		}
	}
}
