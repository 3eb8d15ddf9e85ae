/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"

	"github.com/stretchr/testify/require"
)

// Names of the headers checked by RequireRateLimitHeaders.
const (
	headerRateLimitLimit     = "X-RateLimit-Limit"
	headerRateLimitRemaining = "X-RateLimit-Remaining"
	headerRateLimitReset     = "X-RateLimit-Reset"
)

// RequireDetailInRecorder asserts that the recorded response has the status code and {"detail": ...} JSON body.
func RequireDetailInRecorder(t require.TestingT, resp *httptest.ResponseRecorder, wantHTTPCode int, wantDetail string) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, wantHTTPCode, resp.Code)
	requireDetail(t, resp.Header(), resp.Body, wantDetail)
}

// RequireDetailInResponse asserts that the response has the status code and {"detail": ...} JSON body.
func RequireDetailInResponse(t require.TestingT, resp *http.Response, wantHTTPCode int, wantDetail string) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, wantHTTPCode, resp.StatusCode)
	requireDetail(t, resp.Header, resp.Body, wantDetail)
}

func requireDetail(t require.TestingT, header http.Header, body io.Reader, wantDetail string) {
	require.Equal(t, "application/json", header.Get("Content-Type"))
	var respData struct {
		Detail string `json:"detail"`
	}
	require.NoError(t, json.NewDecoder(body).Decode(&respData))
	require.Equal(t, wantDetail, respData.Detail)
}

// RequireRateLimitHeaders asserts values of the X-RateLimit-* headers of the response.
func RequireRateLimitHeaders(t require.TestingT, header http.Header, wantLimit, wantRemaining int, wantResetEpochSeconds int64) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, strconv.Itoa(wantLimit), header.Get(headerRateLimitLimit), "unexpected %s", headerRateLimitLimit)
	require.Equal(t, strconv.Itoa(wantRemaining), header.Get(headerRateLimitRemaining), "unexpected %s", headerRateLimitRemaining)
	require.Equal(t, strconv.FormatInt(wantResetEpochSeconds, 10), header.Get(headerRateLimitReset),
		"unexpected %s", headerRateLimitReset)
}

// RequireNoRateLimitHeaders asserts that the response has none of the X-RateLimit-* headers.
func RequireNoRateLimitHeaders(t require.TestingT, header http.Header) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	for _, name := range []string{headerRateLimitLimit, headerRateLimitRemaining, headerRateLimitReset} {
		require.Empty(t, header.Values(name), "unexpected %s", name)
	}
}
