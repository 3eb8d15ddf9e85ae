/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
)

// statusResponseWriter remembers the status code and the number of written bytes.
type statusResponseWriter struct {
	http.ResponseWriter
	status       int
	bytesWritten int
	wroteHeader  bool
}

func wrapResponseWriterIfNeeded(rw http.ResponseWriter) *statusResponseWriter {
	if srw, ok := rw.(*statusResponseWriter); ok {
		return srw
	}
	return &statusResponseWriter{ResponseWriter: rw}
}

func (w *statusResponseWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytesWritten += n
	return n, err
}

// Status returns the HTTP status of the request, or 0 if one has not yet been sent.
func (w *statusResponseWriter) Status() int {
	return w.status
}

// BytesWritten returns the total number of bytes sent to the client.
func (w *statusResponseWriter) BytesWritten() int {
	return w.bytesWritten
}

// Flush implements http.Flusher if the underlying writer supports it.
func (w *statusResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		if !w.wroteHeader {
			w.WriteHeader(http.StatusOK)
		}
		f.Flush()
	}
}

// Unwrap returns the underlying writer, so http.ResponseController can reach it.
func (w *statusResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
