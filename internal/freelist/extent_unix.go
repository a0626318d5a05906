//go:build linux || darwin
// +build linux darwin

package freelist

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// mapExtent acquires a fresh anonymous, zero-filled OS extent of size
// bytes via mmap, returning its base address. Mirrors the teacher's
// platform-tagged syscall split (see
// SeleniaProject-Orizon/internal/runtime/asyncio/zerocopy_unix_file.go),
// generalized here from a zero-copy file path to raw arena acquisition.
func mapExtent(size uintptr) (uintptr, error) {
	b, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return 0, fmt.Errorf("freelist: mmap %d bytes: %w", size, err)
	}
	return uintptr(unsafe.Pointer(&b[0])), nil
}

func unmapExtent(addr, size uintptr) error {
	b := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	return unix.Munmap(b)
}
