package buffer

import "sync"

// chunkPool recycles the standard chunkSize-sized byte slice every Buffer
// starts life with, adapted from the teacher's core/pools/byte_pool.go
// multi-tier BytePool — simplified to a single tier since every Buffer
// grows from exactly one starting size, chunkSize. Only the original,
// never-grown allocation is poolable; buffers that outgrew chunkSize
// through Advance's reallocation are released to the GC instead, the same
// behavior BytePool.Put falls back to for a capacity it doesn't track.
var chunkPool = sync.Pool{
	New: func() any {
		buf := make([]byte, chunkSize)
		return &buf
	},
}

func getChunk() []byte {
	bufPtr := chunkPool.Get().(*[]byte)
	return (*bufPtr)[:chunkSize]
}

func putChunk(buf []byte) {
	if cap(buf) != chunkSize {
		return
	}
	buf = buf[:chunkSize]
	chunkPool.Put(&buf)
}
