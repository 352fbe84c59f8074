// Package securemem provides a byte container for key material that
// tries to keep its contents out of swap while alive and overwrites them
// once released. Page-pinning is best effort: a platform that refuses
// mlock is logged and otherwise ignored, never fatal.
package securemem

import (
	"runtime"
	"sync"

	"github.com/rs/zerolog/log"
)

// Bytes holds a byte slice that has been (best-effort) locked into
// physical memory and is guaranteed to be overwritten with zeroes when
// Release is called or the value is garbage collected.
type Bytes struct {
	mu       sync.Mutex
	data     []byte
	locked   bool
	released bool
}

// New allocates n zeroed, page-locked bytes.
func New(n int) *Bytes {
	b := &Bytes{data: make([]byte, n)}
	b.lock()
	runtime.SetFinalizer(b, (*Bytes).Release)
	return b
}

// FromBytes copies src into a new locked buffer. The caller remains
// responsible for wiping its own copy of src.
func FromBytes(src []byte) *Bytes {
	b := New(len(src))
	copy(b.data, src)
	return b
}

func (b *Bytes) lock() {
	if err := mlock(b.data); err != nil {
		log.Debug().Err(err).Msg("securemem: mlock failed, continuing unlocked")
		return
	}
	b.locked = true
}

// Bytes returns the underlying slice. It is only valid until Release is
// called; callers must not retain it beyond the buffer's lifetime.
func (b *Bytes) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return nil
	}
	return b.data
}

// Len reports the buffer's size.
func (b *Bytes) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Release zeroes the buffer, unlocks its pages and marks it unusable. It
// is safe to call more than once.
func (b *Bytes) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return
	}
	for i := range b.data {
		b.data[i] = 0
	}
	if b.locked {
		if err := munlock(b.data); err != nil {
			log.Debug().Err(err).Msg("securemem: munlock failed")
		}
	}
	b.data = nil
	b.released = true
	runtime.SetFinalizer(b, nil)
}
