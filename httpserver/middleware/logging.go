/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/acronis/go-admission/log"
	"github.com/acronis/go-admission/ratelimit"
)

// LoggingOpts represents options for Logging middleware.
type LoggingOpts struct {
	// RequestStart makes the middleware to log the beginning of the request too.
	RequestStart bool

	// ExcludedEndpoints are paths whose successful responses are not logged.
	ExcludedEndpoints []string

	// TrustForwardedFor makes the logged client address to be taken from forwarding headers when present.
	TrustForwardedFor bool
}

type loggingHandler struct {
	next   http.Handler
	logger log.FieldLogger
	opts   LoggingOpts
}

// Logging is a middleware that logs info about HTTP request and response.
// Also, it puts logger (with external and internal request ids in fields) into request context.
func Logging(logger log.FieldLogger) func(next http.Handler) http.Handler {
	return LoggingWithOpts(logger, LoggingOpts{})
}

// LoggingWithOpts is a more configurable version of Logging middleware.
func LoggingWithOpts(logger log.FieldLogger, opts LoggingOpts) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return &loggingHandler{next: next, logger: logger, opts: opts}
	}
}

func (h *loggingHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	startTime := GetRequestStartTimeFromContext(ctx)
	if startTime.IsZero() {
		startTime = time.Now()
		ctx = NewContextWithRequestStartTime(ctx, startTime)
	}

	loggerForNext := h.logger.With(
		log.String("request_id", GetRequestIDFromContext(ctx)),
		log.String("int_request_id", GetInternalRequestIDFromContext(ctx)),
	)
	logger := loggerForNext.With(
		log.String("method", r.Method),
		log.String("uri", r.RequestURI),
		log.String("remote_addr", r.RemoteAddr),
		log.String("client_addr", ratelimit.ClientNetworkID(r, h.opts.TrustForwardedFor)),
		log.String("user_agent", r.UserAgent()),
	)

	noLog := false
	for _, endpoint := range h.opts.ExcludedEndpoints {
		if r.URL.Path == endpoint {
			noLog = true
			break
		}
	}

	if h.opts.RequestStart && !noLog {
		logger.Info("request started")
	}

	wrw := wrapResponseWriterIfNeeded(rw)
	h.next.ServeHTTP(wrw, r.WithContext(NewContextWithLogger(ctx, loggerForNext)))

	status := wrw.Status()
	if status == 0 {
		status = http.StatusOK
	}
	if noLog && status < http.StatusBadRequest {
		return
	}
	duration := time.Since(startTime)
	logger.Info(
		fmt.Sprintf("response completed in %.3fs", duration.Seconds()),
		log.Int64("duration_ms", duration.Milliseconds()),
		log.Int("status", status),
		log.Int("bytes_sent", wrw.BytesWritten()),
	)
}
