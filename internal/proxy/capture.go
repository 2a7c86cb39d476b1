package proxy

import (
	"bytes"

	"github.com/gin-gonic/gin"
)

// captureWriter tees the response body written by the real handler
type captureWriter struct {
	gin.ResponseWriter
	buf  bytes.Buffer
	keep bool
}

func newCaptureWriter(w gin.ResponseWriter, keep bool) *captureWriter {
	return &captureWriter{ResponseWriter: w, keep: keep}
}

func (w *captureWriter) Write(b []byte) (int, error) {
	if w.keep {
		w.buf.Write(b)
	}
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	if w.keep {
		w.buf.WriteString(s)
	}
	return w.ResponseWriter.WriteString(s)
}

// Bytes returns everything written so far
func (w *captureWriter) Bytes() []byte {
	return w.buf.Bytes()
}
