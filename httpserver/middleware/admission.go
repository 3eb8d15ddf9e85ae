/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vasayxtx/go-glob"

	"github.com/acronis/go-admission/log"
	"github.com/acronis/go-admission/ratelimit"
	"github.com/acronis/go-admission/restapi"
)

// Response headers set by the Admission middleware.
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	headerRetryAfter         = "Retry-After"
)

// AdmissionClientIDLogFieldKey is the name of the logged field that contains the rate-limiting client identity.
const AdmissionClientIDLogFieldKey = "rate_limit_client_id"

// AdmissionLimiter decides whether a request of the client to the route is admitted.
type AdmissionLimiter interface {
	Check(clientNetworkID, routeTemplate string) ratelimit.Result
}

// AdmissionParams contains data that relates to the admission decision.
type AdmissionParams struct {
	ClientNetworkID string
	Route           string
	Result          ratelimit.Result
}

// AdmissionOnRejectFunc is a function that is called for rejecting HTTP request when the rate limit is exceeded.
type AdmissionOnRejectFunc func(rw http.ResponseWriter, r *http.Request, params AdmissionParams, next http.Handler, logger log.FieldLogger)

// AdmissionOpts represents options for the Admission middleware.
type AdmissionOpts struct {
	// ExemptPaths are path prefixes that bypass the limiter. A value containing "*" is matched as a glob pattern.
	ExemptPaths []string

	// TrustForwardedFor makes the client address to be taken from X-Forwarded-For or X-Real-IP when present.
	TrustForwardedFor bool

	// GetRoutePattern returns the route template of the request. The URL path is used by default.
	GetRoutePattern RoutePatternGetterFunc

	// DryRun makes rejections to be only logged, the request is served anyway.
	DryRun bool

	// OnReject is called when the request is rejected. DefaultAdmissionOnReject is used by default.
	OnReject AdmissionOnRejectFunc
}

type admissionHandler struct {
	next            http.Handler
	limiter         AdmissionLimiter
	exemptPrefixes  []string
	exemptMatchers  []func(string) bool
	trustForwarded  bool
	getRoutePattern RoutePatternGetterFunc
	dryRun          bool
	onReject        AdmissionOnRejectFunc
}

// Admission is a middleware that consults the rate limiter for every non-exempt request.
// Admitted requests get X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset headers.
// Rejected requests get 429 status code and the downstream handler is not called.
func Admission(limiter AdmissionLimiter, exemptPaths []string) func(next http.Handler) http.Handler {
	return AdmissionWithOpts(limiter, AdmissionOpts{ExemptPaths: exemptPaths, TrustForwardedFor: true})
}

// AdmissionWithOpts is a more configurable version of Admission middleware.
func AdmissionWithOpts(limiter AdmissionLimiter, opts AdmissionOpts) func(next http.Handler) http.Handler {
	h := &admissionHandler{
		limiter:         limiter,
		trustForwarded:  opts.TrustForwardedFor,
		getRoutePattern: opts.GetRoutePattern,
		dryRun:          opts.DryRun,
		onReject:        opts.OnReject,
	}
	for _, p := range opts.ExemptPaths {
		if strings.Contains(p, "*") {
			h.exemptMatchers = append(h.exemptMatchers, glob.Compile(p))
		} else if p != "" {
			h.exemptPrefixes = append(h.exemptPrefixes, p)
		}
	}
	if h.getRoutePattern == nil {
		h.getRoutePattern = func(r *http.Request) string { return r.URL.Path }
	}
	if h.onReject == nil {
		h.onReject = DefaultAdmissionOnReject
	}
	return func(next http.Handler) http.Handler {
		hh := *h
		hh.next = next
		return &hh
	}
}

func (h *admissionHandler) isExempt(path string) bool {
	for _, prefix := range h.exemptPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	for _, match := range h.exemptMatchers {
		if match(path) {
			return true
		}
	}
	return false
}

func (h *admissionHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if h.isExempt(r.URL.Path) {
		h.next.ServeHTTP(rw, r)
		return
	}

	logger := GetLoggerFromContext(r.Context())
	params, ok := h.check(r, logger)
	if !ok {
		h.next.ServeHTTP(rw, r)
		return
	}

	setRateLimitHeaders(rw.Header(), params.Result)

	if !params.Result.Allowed {
		if h.dryRun {
			if logger != nil {
				logger.Warn("too many requests, serving anyway since dry run mode is enabled",
					log.String(AdmissionClientIDLogFieldKey, ratelimit.MakeClientID(params.ClientNetworkID, ratelimit.NormalizeRoute(params.Route))))
			}
			h.next.ServeHTTP(rw, r)
			return
		}
		h.onReject(rw, r, params, h.next, logger)
		return
	}

	h.next.ServeHTTP(rw, r)
}

// check consults the limiter. A panic inside is logged and the request is admitted without headers.
func (h *admissionHandler) check(r *http.Request, logger log.FieldLogger) (params AdmissionParams, ok bool) {
	defer func() {
		if p := recover(); p != nil {
			if logger != nil {
				logger.Error(fmt.Sprintf("rate limiter panic, request is admitted: %+v", p))
			}
			ok = false
		}
	}()
	params.ClientNetworkID = ratelimit.ClientNetworkID(r, h.trustForwarded)
	params.Route = h.getRoutePattern(r)
	if params.Route == "" {
		params.Route = r.URL.Path
	}
	params.Result = h.limiter.Check(params.ClientNetworkID, params.Route)
	return params, true
}

func setRateLimitHeaders(header http.Header, res ratelimit.Result) {
	header.Set(HeaderRateLimitLimit, strconv.Itoa(res.Limit))
	header.Set(HeaderRateLimitRemaining, strconv.Itoa(res.Remaining))
	header.Set(HeaderRateLimitReset, strconv.FormatInt(res.ResetEpochSeconds, 10))
}

// DefaultAdmissionOnReject sends HTTP response with 429 status code, Retry-After header
// and {"detail": "Rate limit exceeded. Please try again later."} body.
func DefaultAdmissionOnReject(rw http.ResponseWriter, r *http.Request, params AdmissionParams, _ http.Handler, logger log.FieldLogger) {
	if logger != nil {
		logger = logger.With(
			log.String(AdmissionClientIDLogFieldKey, ratelimit.MakeClientID(params.ClientNetworkID, ratelimit.NormalizeRoute(params.Route))),
		)
	}
	if params.Result.RetryAfter > 0 {
		rw.Header().Set(headerRetryAfter, strconv.Itoa(int(math.Ceil(params.Result.RetryAfter.Seconds()))))
	}
	if logger != nil {
		logger.Warn("rate limit exceeded", log.Duration("retry_after", params.Result.RetryAfter.Round(time.Millisecond)))
	}
	restapi.RespondTooManyRequests(rw, logger)
}
