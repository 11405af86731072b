//go:build !linux && !windows

package gpu

import (
	"bytes"
	"runtime"
	"strconv"
)

// threadID returns the calling goroutine's id. The loop goroutine never
// leaves its locked OS thread, so it identifies the graphics thread as well
// as an OS thread id would.
func threadID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	field := bytes.Fields(bytes.TrimPrefix(buf[:n], []byte("goroutine ")))
	if len(field) == 0 {
		return 0
	}
	id, _ := strconv.ParseInt(string(field[0]), 10, 64)
	return id
}
