package rewritex

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// CodeStorage owns one page-aligned, read-write-execute region and
// bump-allocates byte ranges out of it for the generator to write
// machine code into directly.
type CodeStorage struct {
	mu       sync.Mutex
	base     []byte // mmap'd region, length == capacity
	capacity int
	used     int
	freed    bool
}

// AllocateCodeStorage reserves at least size bytes, rounded up to a whole
// number of pages, and maps it PROT_READ|PROT_WRITE|PROT_EXEC so the
// generator can write into it and the host can call into it once emission
// completes. There is no growth: it's a deliberate contract, since
// intra-trace branch displacements are patched assuming stable addresses
// once the generator's layout pass has run.
func AllocateCodeStorage(size int) (*CodeStorage, error) {
	if size <= 0 {
		size = 1
	}
	page := unix.Getpagesize()
	capacity := ((size + page - 1) / page) * page

	region, err := unix.Mmap(-1, 0, capacity,
		unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC,
		unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("rewritex: mmap %d bytes: %w", capacity, err)
	}
	return &CodeStorage{base: region, capacity: capacity}, nil
}

// Reserve returns the address of the next size bytes without advancing
// the bump pointer; the generator's layout pass uses this to compute
// tentative offsets before any bytes are actually written.
func (cs *CodeStorage) Reserve(size int) (uintptr, []byte, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.freed {
		return 0, nil, storageExhaustedErr(size, 0)
	}
	if cs.used+size > cs.capacity {
		return 0, nil, storageExhaustedErr(size, cs.capacity-cs.used)
	}
	start := cs.used
	return cs.addr(start), cs.base[start : start+size], nil
}

// Commit advances the bump pointer by n bytes. It fails fatally if n
// exceeds what remains reserved — there is no partial commit and no
// growth.
func (cs *CodeStorage) Commit(n int) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.freed || cs.used+n > cs.capacity {
		return storageExhaustedErr(n, cs.capacity-cs.used)
	}
	cs.used += n
	return nil
}

// Base returns the address of byte 0 of the region.
func (cs *CodeStorage) Base() uintptr { return cs.addr(0) }

// Used reports how many bytes have been committed so far.
func (cs *CodeStorage) Used() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.used
}

// Free releases the entire mapped region. This invalidates every function
// pointer the generator handed back out of it — the host, not
// CodeStorage, is responsible for not calling through a stale pointer.
func (cs *CodeStorage) Free() error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.freed {
		return nil
	}
	cs.freed = true
	return unix.Munmap(cs.base)
}

func (cs *CodeStorage) addr(offset int) uintptr {
	return uintptr(unsafe.Pointer(&cs.base[0])) + uintptr(offset)
}
