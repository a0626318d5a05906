// Package goid extracts the calling goroutine's runtime-assigned
// numeric ID. Go deliberately has no public API for this; both the
// region package's reentrant relocation lock and the root set's
// per-thread shard selection need a stable per-goroutine key, so this
// single helper is shared rather than duplicated.
//
// No example in the retrieval pack ships a goroutine-ID helper — this
// is written from scratch out of necessity, not grounded on a teacher
// file. See DESIGN.md.
package goid

import (
	"bytes"
	"runtime"
	"strconv"
)

// Current parses the calling goroutine's own stack trace header
// ("goroutine 123 [running]") to recover its numeric ID.
func Current() uint64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	buf = buf[:n]
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	if i := bytes.IndexByte(buf, ' '); i >= 0 {
		buf = buf[:i]
	}
	id, err := strconv.ParseUint(string(buf), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
