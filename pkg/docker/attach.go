package docker

import (
	"errors"
	"io"
	"net"
	"sync"

	"github.com/docker/docker/pkg/stdcopy"
)

// AttachStream is a live view of a container's combined stdout/stderr
type AttachStream struct {
	src         io.Reader
	closer      io.Closer
	multiplexed bool
	closeOnce   sync.Once
}

// NewAttachStream wraps an attach connection. multiplexed must be true when
// the container runs without a TTY, in which case the daemon frames stdout
// and stderr with stdcopy headers.
func NewAttachStream(src io.Reader, closer io.Closer, multiplexed bool) *AttachStream {
	return &AttachStream{src: src, closer: closer, multiplexed: multiplexed}
}

// ChunkFunc receives one chunk of container output
type ChunkFunc func(chunk []byte)

// Copy forwards output chunks to fn until the stream ends. A closed stream is
// a normal end and returns nil.
func (s *AttachStream) Copy(fn ChunkFunc) error {
	w := chunkWriter(fn)

	var err error
	if s.multiplexed {
		_, err = stdcopy.StdCopy(w, w, s.src)
	} else {
		_, err = io.Copy(w, s.src)
	}
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && !errors.Is(err, io.ErrClosedPipe) {
		return err
	}
	return nil
}

// Close terminates the stream
func (s *AttachStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.closer != nil {
			err = s.closer.Close()
		}
	})
	return err
}

type chunkWriter ChunkFunc

func (w chunkWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	// Callers may keep the slice.
	chunk := make([]byte, len(p))
	copy(chunk, p)
	w(chunk)
	return len(p), nil
}
