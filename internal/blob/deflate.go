package blob

import (
	"bytes"
	"compress/zlib"
	"io"

	"github.com/rotisserie/eris"
)

// DefaultCompressionLevel matches zlib's strongest setting; corpus objects
// are written once and read many times.
const DefaultCompressionLevel = zlib.BestCompression

// deflateBuffer zlib-compresses data at the given level.
func deflateBuffer(data []byte, level int) ([]byte, error) {
	if level == 0 {
		level = DefaultCompressionLevel
	}
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, eris.Wrap(err, "blob: deflate writer")
	}
	if _, err := w.Write(data); err != nil {
		return nil, eris.Wrap(err, "blob: deflate write")
	}
	if err := w.Close(); err != nil {
		return nil, eris.Wrap(err, "blob: deflate close")
	}
	return buf.Bytes(), nil
}

// inflateBuffer reverses deflateBuffer.
func inflateBuffer(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, eris.Wrap(err, "blob: inflate reader")
	}
	defer r.Close() //nolint:errcheck

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "blob: inflate read")
	}
	return out, nil
}
