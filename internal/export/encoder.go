package export

import (
	"bytes"
	"sync"

	"hapdb/internal/parser"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
)

// maxPooledBuffer keeps oversized buffers out of the pool.
const maxPooledBuffer = 1 * 1024 * 1024

var (
	bufferPool = sync.Pool{
		New: func() any {
			return bytes.NewBuffer(make([]byte, 0, 256*1024))
		},
	}

	gzipPool = sync.Pool{
		New: func() any {
			w, _ := gzip.NewWriterLevel(nil, gzip.BestSpeed)
			return w
		},
	}
)

func putBuffer(buf *bytes.Buffer) {
	if buf.Cap() <= maxPooledBuffer {
		buf.Reset()
		bufferPool.Put(buf)
	}
}

// Encoder serializes record batches as gzip-compressed JSON lines.
type Encoder struct{}

func NewEncoder() *Encoder {
	return &Encoder{}
}

// EncodeJSONLGZ writes one JSON object per record and compresses the
// result. The returned slice is owned by the caller.
func (e *Encoder) EncodeJSONLGZ(records []parser.Record) ([]byte, error) {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	gz := gzipPool.Get().(*gzip.Writer)
	gz.Reset(buf)

	enc := json.NewEncoder(gz)
	for i := range records {
		if err := enc.Encode(&records[i]); err != nil {
			_ = gz.Close()
			gzipPool.Put(gz)
			putBuffer(buf)
			return nil, err
		}
	}

	if err := gz.Close(); err != nil {
		gzipPool.Put(gz)
		putBuffer(buf)
		return nil, err
	}
	gzipPool.Put(gz)

	// pooled buffer is reused, hand out a copy
	raw := buf.Bytes()
	data := make([]byte, len(raw))
	copy(data, raw)
	putBuffer(buf)

	return data, nil
}
