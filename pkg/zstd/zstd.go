// Package zstd wraps klauspost/compress/zstd for the two decompression
// modes the NCZ decoder needs: whole-block decode and a streaming reader
// over a compressed suffix (spec.md §4.10).
package zstd

import (
	"io"

	"github.com/klauspost/compress/zstd"
)

var blockDecoder, _ = zstd.NewReader(nil)

// DecodeBlock decompresses a single zstd frame entirely in memory,
// reusing a shared decoder the way block-mode NCZ blocks are decoded one
// at a time.
func DecodeBlock(src []byte, sizeHint int) ([]byte, error) {
	return blockDecoder.DecodeAll(src, make([]byte, 0, sizeHint))
}

// NewStreamDecoder wraps r (the compressed suffix of an NCZ stream-mode
// body) in a zstd streaming reader, each decoder independent so concurrent
// decodes never share state.
func NewStreamDecoder(r io.Reader) (*zstd.Decoder, error) {
	return zstd.NewReader(r)
}
