package debugdump

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/snappy"
	"github.com/pierrec/lz4/v4"

	"github.com/edgecomet/deckexport/internal/common/configtypes"
)

// ErrDecompression is returned when a stored dump cannot be decoded
var ErrDecompression = errors.New("decompression failed")

// Compress encodes content with algorithm and returns the file extension to use.
// "none", empty and unknown algorithms return content unchanged with no extension.
func Compress(content []byte, algorithm string) ([]byte, string, error) {
	switch algorithm {
	case configtypes.CompressionSnappy:
		return snappy.Encode(nil, content), ".snappy", nil

	case configtypes.CompressionLZ4:
		// stream format, carries the content size
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(content); err != nil {
			_ = w.Close()
			return nil, "", fmt.Errorf("lz4 compression failed: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, "", fmt.Errorf("lz4 compression close failed: %w", err)
		}
		return buf.Bytes(), ".lz4", nil

	default:
		return content, "", nil
	}
}

// Decompress reverses Compress for the same algorithm
func Decompress(content []byte, algorithm string) ([]byte, error) {
	switch algorithm {
	case configtypes.CompressionSnappy:
		out, err := snappy.Decode(nil, content)
		if err != nil {
			return nil, fmt.Errorf("%w: snappy: %v", ErrDecompression, err)
		}
		return out, nil

	case configtypes.CompressionLZ4:
		out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(content)))
		if err != nil {
			return nil, fmt.Errorf("%w: lz4: %v", ErrDecompression, err)
		}
		return out, nil

	default:
		return content, nil
	}
}
