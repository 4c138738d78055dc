package logging

import (
	"bytes"
	"encoding/json"
	"io"
	"sync"
)

// PrettyJSONWriter re-indents each JSON log line for human reading.
// Lines that are not valid JSON pass through unchanged. It is not
// optimised for throughput.
type PrettyJSONWriter struct {
	mu  sync.Mutex
	w   io.Writer
	buf bytes.Buffer
}

func NewPrettyJSONWriter(w io.Writer) *PrettyJSONWriter {
	return &PrettyJSONWriter{w: w}
}

// Write expects one complete event per call, which is how zerolog writes.
func (p *PrettyJSONWriter) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buf.Reset()
	if err := json.Indent(&p.buf, bytes.TrimRight(b, "\n"), "", "  "); err != nil {
		if _, err := p.w.Write(b); err != nil {
			return 0, err
		}
		return len(b), nil
	}
	p.buf.WriteByte('\n')
	if _, err := p.w.Write(p.buf.Bytes()); err != nil {
		return 0, err
	}
	return len(b), nil
}
