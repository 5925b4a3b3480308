package storage

import "io"

// maxStreamChunk caps how many bytes a ChunkedStream returns per read.
const maxStreamChunk = 512

// ChunkedStream is a ranged, buffer-limited read over a stored
// object. Each call to Next returns the following chunk of at most
// min(512, object size) bytes, so small objects come back whole and
// large ones can be consumed incrementally.
type ChunkedStream struct {
	r      Reader
	size   int64
	chunk  int
	offset int64
}

func newChunkedStream(r Reader, size int64) *ChunkedStream {
	chunk := maxStreamChunk
	if size < int64(chunk) {
		chunk = int(size)
	}
	return &ChunkedStream{r: r, size: size, chunk: chunk}
}

// Size reports the object's total length in bytes.
func (s *ChunkedStream) Size() int64 { return s.size }

// Offset reports how many bytes have been consumed so far.
func (s *ChunkedStream) Offset() int64 { return s.offset }

// Next returns the next chunk of the object, or io.EOF once the
// object is exhausted. The returned slice is freshly allocated and
// safe to retain.
func (s *ChunkedStream) Next() ([]byte, error) {
	if s.offset >= s.size {
		return nil, io.EOF
	}
	n := int64(s.chunk)
	if remaining := s.size - s.offset; remaining < n {
		n = remaining
	}
	buf := make([]byte, n)
	read, err := s.r.ReadAt(buf, s.offset)
	if err != nil && err != io.EOF {
		return nil, &StorageError{Op: "read", Err: err}
	}
	s.offset += int64(read)
	return buf[:read], nil
}

// Close releases the underlying object handle.
func (s *ChunkedStream) Close() error {
	return s.r.Close()
}
