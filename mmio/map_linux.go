//go:build linux

package mmio

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Region is a Window over a physical register block mapped into the
// process through a UIO device node (/dev/uioN) or /dev/mem.
type Region struct {
	fd    int
	mem   []byte
	words []uint32
}

// MapRegion maps size bytes of the device at path starting at offset.
// offset and size must be page aligned, which they are for UIO maps and
// for whole peripheral blocks through /dev/mem.
func MapRegion(path string, offset int64, size int) (*Region, error) {
	if size <= 0 || size%4 != 0 {
		return nil, fmt.Errorf("mmio: invalid map size %d", size)
	}
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("mmio: open %s: %w", path, err)
	}
	mem, err := unix.Mmap(fd, offset, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("mmio: mmap %s: %w", path, err)
	}
	r := &Region{
		fd:    fd,
		mem:   mem,
		words: unsafe.Slice((*uint32)(unsafe.Pointer(&mem[0])), size/4),
	}
	return r, nil
}

// Load reads the register word at off. Atomic loads keep the compiler
// from eliding or reordering device reads.
func (r *Region) Load(off uint32) uint32 {
	i := off / 4
	if int(i) >= len(r.words) {
		return OpenBus
	}
	return atomic.LoadUint32(&r.words[i])
}

// Store writes the register word at off.
func (r *Region) Store(off uint32, v uint32) {
	i := off / 4
	if int(i) >= len(r.words) {
		return
	}
	atomic.StoreUint32(&r.words[i], v)
}

// Close unmaps the region and closes the device node. The Region must
// not be used afterwards.
func (r *Region) Close() error {
	err := unix.Munmap(r.mem)
	if cerr := unix.Close(r.fd); err == nil {
		err = cerr
	}
	r.mem, r.words = nil, nil
	return err
}
