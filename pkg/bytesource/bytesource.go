// Package bytesource provides the lazy byte-blob abstraction that inputs
// and outputs flow through, so a caller is never forced to hold an entire
// NCA or NCZ body as one contiguous allocation (spec.md §9 Design Notes).
package bytesource

import (
	"io"
	"os"

	"github.com/edsrzf/mmap-go"
)

// ByteSource yields bytes on demand from some backing store.
type ByteSource interface {
	// Len returns the total length in bytes.
	Len() int64
	// Slice returns the bytes in [start, end). The returned slice aliases
	// the backing store rather than copying it; for a memory-mapped source
	// it is valid only until Close.
	Slice(start, end int64) ([]byte, error)
}

// memorySource wraps an in-memory buffer.
type memorySource struct {
	data []byte
}

// FromBytes wraps an already-resident buffer as a ByteSource.
func FromBytes(data []byte) ByteSource {
	return &memorySource{data: data}
}

func (m *memorySource) Len() int64 { return int64(len(m.data)) }

func (m *memorySource) Slice(start, end int64) ([]byte, error) {
	if start < 0 || end > int64(len(m.data)) || start > end {
		return nil, io.ErrUnexpectedEOF
	}
	return m.data[start:end], nil
}

// mmapSource wraps a memory-mapped file.
type mmapSource struct {
	region mmap.MMap
}

// FromFile memory-maps f for read-only access. The caller owns f and must
// keep it open for the source's lifetime; call Close when done.
func FromFile(f *os.File) (ByteSource, error) {
	region, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, err
	}
	return &mmapSource{region: region}, nil
}

func (m *mmapSource) Len() int64 { return int64(len(m.region)) }

func (m *mmapSource) Slice(start, end int64) ([]byte, error) {
	if start < 0 || end > int64(len(m.region)) || start > end {
		return nil, io.ErrUnexpectedEOF
	}
	return m.region[start:end], nil
}

// Close unmaps the underlying region. Only mmap-backed sources need this;
// memory sources are no-ops.
func Close(s ByteSource) error {
	if m, ok := s.(*mmapSource); ok {
		return m.region.Unmap()
	}
	return nil
}
