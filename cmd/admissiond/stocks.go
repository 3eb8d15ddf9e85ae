/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/go-chi/chi/v5"

	"github.com/acronis/go-admission/httpserver/middleware"
	"github.com/acronis/go-admission/log"
	"github.com/acronis/go-admission/memoize"
	"github.com/acronis/go-admission/restapi"
	"github.com/acronis/go-admission/resultcache"
)

const (
	predictionIdentity  = "stocks.predict"
	predictionKeyPrefix = "admissiond:"
	defaultHorizon      = "1d"
)

// predictionLatency imitates an expensive model inference.
var predictionLatency = 200 * time.Millisecond

var symbolRegexp = regexp.MustCompile(`^[A-Z]{1,5}$`)

var predictionActions = [...]string{"BUY", "HOLD", "SELL"}

type prediction struct {
	Symbol      string    `json:"symbol"`
	Horizon     string    `json:"horizon"`
	Action      string    `json:"action"`
	Confidence  float64   `json:"confidence"`
	GeneratedAt time.Time `json:"generated_at"`
}

type stocksHandler struct {
	predict memoize.Func[memoize.Args, prediction]
}

func newStocksHandler(cache *resultcache.Cache, ttl time.Duration, logger log.FieldLogger) *stocksHandler {
	return &stocksHandler{
		predict: memoize.Decorate(cache, predictionIdentity, predict, ttl, predictionKeyPrefix, memoize.Options{Logger: logger}),
	}
}

// predict derives a deterministic recommendation from the symbol and the horizon.
func predict(ctx context.Context, args memoize.Args) (prediction, error) {
	symbol, _ := args.Positional[0].(string)
	horizon, _ := args.Keyword["horizon"].(string)

	select {
	case <-ctx.Done():
		return prediction{}, ctx.Err()
	case <-time.After(predictionLatency):
	}

	h := xxhash.Sum64String(symbol + "/" + horizon)
	return prediction{
		Symbol:      symbol,
		Horizon:     horizon,
		Action:      predictionActions[h%uint64(len(predictionActions))],
		Confidence:  0.5 + float64(h%500)/1000,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

func (h *stocksHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())

	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))
	if !symbolRegexp.MatchString(symbol) {
		restapi.RespondDetail(rw, http.StatusBadRequest, "Invalid stock symbol.", logger)
		return
	}
	horizon := r.URL.Query().Get("horizon")
	if horizon == "" {
		horizon = defaultHorizon
	}

	// The request context is a handle and doesn't take part in the cache key.
	res, err := h.predict(r.Context(), memoize.Args{
		Positional: []interface{}{symbol, r.Context()},
		Keyword:    map[string]interface{}{"horizon": horizon},
	})
	if err != nil {
		if r.Context().Err() != nil {
			// The client is gone, nobody will read the response.
			return
		}
		if logger != nil {
			logger.Error("failed to predict", log.String("symbol", symbol), log.Error(err))
		}
		restapi.RespondInternalError(rw, logger)
		return
	}
	restapi.RespondJSON(rw, res, logger)
}
