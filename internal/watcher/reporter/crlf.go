package reporter

import (
	"bytes"
	"io"
	"sync"
)

// NewCRLFWriter wraps w so bare newlines are written as \r\n. Raw-mode
// terminals stop translating line feeds; without this, interleaved status
// lines staircase across the screen while the key reader is armed.
func NewCRLFWriter(w io.Writer) io.Writer {
	return &crlfWriter{w: w}
}

type crlfWriter struct {
	mu   sync.Mutex
	w    io.Writer
	last byte
}

func (c *crlfWriter) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var buf bytes.Buffer
	buf.Grow(len(p) + 8)
	for _, b := range p {
		if b == '\n' && c.last != '\r' {
			buf.WriteByte('\r')
		}
		buf.WriteByte(b)
		c.last = b
	}
	if _, err := c.w.Write(buf.Bytes()); err != nil {
		return 0, err
	}
	return len(p), nil
}
