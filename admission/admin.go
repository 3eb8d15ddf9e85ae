/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package admission

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/acronis/go-admission/httpserver/middleware"
	"github.com/acronis/go-admission/restapi"
)

// Admin routes registered by Governor.MountAdminRoutes.
const (
	AdminPathCacheStats     = "/admin/cache/stats"
	AdminPathCache          = "/admin/cache"
	AdminPathCacheExpired   = "/admin/cache/expired"
	AdminPathRateLimitStats = "/admin/ratelimit/stats"
	AdminPathRateLimit      = "/admin/ratelimit"
	AdminPathStats          = "/admin/stats"
)

// ClearResponse is a body of responses of the admin endpoints that remove state.
type ClearResponse struct {
	Removed int `json:"removed"`
}

// MountAdminRoutes registers the admin endpoints on the router.
// The endpoints are not protected, the caller is expected to put them behind its own authentication.
func (g *Governor) MountAdminRoutes(router chi.Router) {
	router.Get(AdminPathStats, g.handleStats)
	router.Get(AdminPathCacheStats, g.handleCacheStats)
	router.Delete(AdminPathCache, g.handleCacheClear)
	router.Delete(AdminPathCacheExpired, g.handleCacheClearExpired)
	router.Get(AdminPathRateLimitStats, g.handleRateLimitStats)
	router.Delete(AdminPathRateLimit, g.handleRateLimitReset)
}

// AdminHandler returns a standalone handler serving the admin endpoints.
func (g *Governor) AdminHandler() http.Handler {
	router := chi.NewRouter()
	g.MountAdminRoutes(router)
	return router
}

func (g *Governor) handleStats(rw http.ResponseWriter, r *http.Request) {
	restapi.RespondJSON(rw, g.Stats(), middleware.GetLoggerFromContext(r.Context()))
}

func (g *Governor) handleCacheStats(rw http.ResponseWriter, r *http.Request) {
	restapi.RespondJSON(rw, g.cache.Stats(), middleware.GetLoggerFromContext(r.Context()))
}

func (g *Governor) handleCacheClear(rw http.ResponseWriter, r *http.Request) {
	n := g.cache.Len()
	g.cache.Clear()
	g.logAdminAction(r, "result cache cleared", n)
	restapi.RespondJSON(rw, ClearResponse{Removed: n}, middleware.GetLoggerFromContext(r.Context()))
}

func (g *Governor) handleCacheClearExpired(rw http.ResponseWriter, r *http.Request) {
	n := g.cache.ClearExpired()
	g.logAdminAction(r, "expired result cache entries cleared", n)
	restapi.RespondJSON(rw, ClearResponse{Removed: n}, middleware.GetLoggerFromContext(r.Context()))
}

func (g *Governor) handleRateLimitStats(rw http.ResponseWriter, r *http.Request) {
	restapi.RespondJSON(rw, g.limiter.Stats(), middleware.GetLoggerFromContext(r.Context()))
}

func (g *Governor) handleRateLimitReset(rw http.ResponseWriter, r *http.Request) {
	n := g.limiter.Stats().TrackedClients
	g.limiter.Reset()
	g.logAdminAction(r, "rate limiter state reset", n)
	restapi.RespondJSON(rw, ClearResponse{Removed: n}, middleware.GetLoggerFromContext(r.Context()))
}

func (g *Governor) logAdminAction(r *http.Request, msg string, removed int) {
	logger := middleware.GetLoggerFromContext(r.Context())
	if logger == nil {
		logger = g.logger
	}
	logger.Infof("%s, %d removed", msg, removed)
}
