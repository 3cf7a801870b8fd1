package backup

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionType selects the codec applied to export files before they are
// written. The manifest checksums cover the stored bytes, so verification is
// unaffected by the codec choice.
type CompressionType string

const (
	CompressionNone CompressionType = "none"
	CompressionGzip CompressionType = "gzip"
	CompressionLZ4  CompressionType = "lz4"
	CompressionZstd CompressionType = "zstd"
)

// Valid reports whether ct names a known codec.
func (ct CompressionType) Valid() bool {
	switch ct {
	case CompressionNone, CompressionGzip, CompressionLZ4, CompressionZstd:
		return true
	default:
		return false
	}
}

// Ext returns the filename suffix for the codec, empty for none.
func (ct CompressionType) Ext() string {
	switch ct {
	case CompressionGzip:
		return ".gz"
	case CompressionLZ4:
		return ".lz4"
	case CompressionZstd:
		return ".zst"
	default:
		return ""
	}
}

// Compressor compresses and decompresses export payloads.
type Compressor struct {
	algorithm CompressionType
}

// NewCompressor creates a compressor for the given algorithm.
func NewCompressor(algorithm CompressionType) (*Compressor, error) {
	if algorithm == "" {
		algorithm = CompressionNone
	}
	if !algorithm.Valid() {
		return nil, NewCompressionError(fmt.Sprintf("unsupported compression algorithm: %s", algorithm), nil)
	}
	return &Compressor{algorithm: algorithm}, nil
}

// Algorithm returns the configured codec.
func (c *Compressor) Algorithm() CompressionType {
	return c.algorithm
}

// Compress compresses data with the configured codec.
func (c *Compressor) Compress(data []byte) ([]byte, error) {
	switch c.algorithm {
	case CompressionNone:
		return data, nil
	case CompressionGzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, NewCompressionError("gzip compression failed", err)
		}
		if err := w.Close(); err != nil {
			return nil, NewCompressionError("gzip compression failed", err)
		}
		return buf.Bytes(), nil
	case CompressionLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, NewCompressionError("lz4 compression failed", err)
		}
		if err := w.Close(); err != nil {
			return nil, NewCompressionError("lz4 compression failed", err)
		}
		return buf.Bytes(), nil
	case CompressionZstd:
		w, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, NewCompressionError("failed to create zstd writer", err)
		}
		defer w.Close()
		return w.EncodeAll(data, nil), nil
	default:
		return nil, NewCompressionError(fmt.Sprintf("unsupported compression algorithm: %s", c.algorithm), nil)
	}
}

// Decompress reverses Compress for the configured codec.
func (c *Compressor) Decompress(data []byte) ([]byte, error) {
	switch c.algorithm {
	case CompressionNone:
		return data, nil
	case CompressionGzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, NewCompressionError("gzip decompression failed", err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, NewCompressionError("gzip decompression failed", err)
		}
		return out, nil
	case CompressionLZ4:
		r := lz4.NewReader(bytes.NewReader(data))
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, NewCompressionError("lz4 decompression failed", err)
		}
		return out, nil
	case CompressionZstd:
		r, err := zstd.NewReader(nil)
		if err != nil {
			return nil, NewCompressionError("failed to create zstd reader", err)
		}
		defer r.Close()
		out, err := r.DecodeAll(data, nil)
		if err != nil {
			return nil, NewCompressionError("zstd decompression failed", err)
		}
		return out, nil
	default:
		return nil, NewCompressionError(fmt.Sprintf("unsupported compression algorithm: %s", c.algorithm), nil)
	}
}
