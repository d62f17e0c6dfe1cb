package httpcache

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"
)

// Codec is the capability boundary for payload compression. Entries are
// compressed at store time and decompressed at replay time; transfer
// encoding negotiation stays with the host application.
type Codec interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// NopCodec passes payloads through unchanged.
type NopCodec struct{}

func (NopCodec) Compress(data []byte) ([]byte, error)   { return data, nil }
func (NopCodec) Decompress(data []byte) ([]byte, error) { return data, nil }

// GzipCodec compresses payloads with gzip.
type GzipCodec struct {
	// Level is the gzip compression level. 0 means gzip.DefaultCompression.
	Level int
}

// Compress gzips the payload.
func (c GzipCodec) Compress(data []byte) ([]byte, error) {
	level := c.Level
	if level == 0 {
		level = gzip.DefaultCompression
	}

	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress gunzips the payload.
func (c GzipCodec) Decompress(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// Ensure codecs implement Codec
var (
	_ Codec = NopCodec{}
	_ Codec = GzipCodec{}
)
