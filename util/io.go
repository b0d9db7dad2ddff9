package util

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
)

// DefaultBufSize is the per-read chunk size for session I/O (4 KiB).
const DefaultBufSize = 4 * 1024

// CopyError records which side of a chunked copy failed.
type CopyError struct {
	Op  string // "read" or "write"
	Err error
}

func (e *CopyError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *CopyError) Unwrap() error { return e.Err }

// CopyChunks moves data from src to dst one Read at a time, writing
// each chunk verbatim before reading the next.  onChunk, if non-nil,
// is called with the size of every chunk written.  A clean end of
// stream returns a nil error.
func CopyChunks(dst io.Writer, src io.Reader, buf []byte, onChunk func(n int)) (int64, error) {
	var written int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			m, werr := dst.Write(buf[:n])
			written += int64(m)
			if werr == nil && m != n {
				werr = io.ErrShortWrite
			}
			if werr != nil {
				return written, &CopyError{Op: "write", Err: werr}
			}
			if onChunk != nil {
				onChunk(n)
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return written, nil
			}
			return written, &CopyError{Op: "read", Err: rerr}
		}
	}
}

// IsHarmless returns true for errors that are expected during shutdown.
func IsHarmless(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe) || errors.Is(err, os.ErrClosed) {
		return true
	}
	// net.OpError wrapping "use of closed network connection"
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, net.ErrClosed)
	}
	return false
}

// IsBrokenPipe reports whether err means the other end of a pipe or
// socket has gone away.
func IsBrokenPipe(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET)
}
