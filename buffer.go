package codec

import (
	"sync"
	"sync/atomic"
)

// BufferRef is a reference-counted byte buffer backing packet data and frame
// planes. A reference may be shared for reading across goroutines; only a
// holder about to release it may mutate the underlying bytes, and only when
// Writable reports exclusive ownership.
type BufferRef struct {
	Data []byte

	refs atomic.Int32
	pool *bufferPool // return here on final Unref, nil if not pooled
	free func()      // external release hook, nil if not needed
}

// NewBufferRef allocates an unpooled buffer of the given size.
func NewBufferRef(size int) *BufferRef {
	b := &BufferRef{Data: make([]byte, size)}
	b.refs.Store(1)
	return b
}

// NewBufferRefFromData wraps existing bytes without copying.
func NewBufferRefFromData(data []byte) *BufferRef {
	b := &BufferRef{Data: data}
	b.refs.Store(1)
	return b
}

// Ref takes an additional reference and returns the same buffer.
func (b *BufferRef) Ref() *BufferRef {
	if b == nil {
		return nil
	}
	b.refs.Add(1)
	return b
}

// Unref drops one reference. The last Unref returns a pooled buffer to its
// pool or invokes the external release hook.
func (b *BufferRef) Unref() {
	if b == nil {
		return
	}
	if b.refs.Add(-1) > 0 {
		return
	}
	if b.free != nil {
		b.free()
		return
	}
	if b.pool != nil {
		b.pool.put(b)
	}
}

// Writable returns true if this is the only reference to the buffer.
func (b *BufferRef) Writable() bool {
	return b != nil && b.refs.Load() == 1
}

// Len returns the buffer size in bytes.
func (b *BufferRef) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Data)
}

// bufferPool recycles fixed-size buffers. Safe for concurrent acquire and
// release across frame-threaded workers.
type bufferPool struct {
	size int
	pool sync.Pool
}

func newBufferPool(size int) *bufferPool {
	p := &bufferPool{size: size}
	p.pool.New = func() any {
		return &BufferRef{Data: make([]byte, size), pool: p}
	}
	return p
}

// get returns a buffer holding one reference.
func (p *bufferPool) get() *BufferRef {
	b := p.pool.Get().(*BufferRef)
	b.refs.Store(1)
	return b
}

func (p *bufferPool) put(b *BufferRef) {
	p.pool.Put(b)
}
