package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"society-gate-backend/config"
	"society-gate-backend/internal/fanout"
	"society-gate-backend/internal/gate"
	"society-gate-backend/internal/logging"
	"society-gate-backend/internal/model"
	"society-gate-backend/internal/mw"
	"society-gate-backend/internal/store"
)

// RouterOptions carries the configuration the router needs.
type RouterOptions struct {
	Server   config.ServerConfig
	Realtime config.RealtimeConfig
	WebPush  *webpush.Options
}

// NewRouter creates and configures the gin router.
func NewRouter(svc *gate.Service, s store.Store, hub *fanout.Hub, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logging.RequestLogger(opts.Realtime.Prefix))

	handler := NewHandler(svc, s, opts.WebPush)

	r.GET("/healthz", handler.Healthz)

	realtime := gin.WrapH(fanout.NewSockJSHandler(hub, opts.Realtime.Prefix,
		time.Duration(opts.Realtime.HeartbeatSeconds)*time.Second))
	r.Any(opts.Realtime.Prefix+"/*path", realtime)

	identity := mw.Identity(opts.Server.ActorIDHeader, opts.Server.ActorRoleHeader)
	rateLimiter := mw.RateLimiter(rate.Limit(opts.Server.RateLimitPerSec), opts.Server.RateLimitBurst)

	// Unit contact details change only on directory sync.
	lookup := []gin.HandlerFunc{handler.LookupResident}
	if ttl := opts.Server.CacheTTL; ttl > 0 {
		lookup = append([]gin.HandlerFunc{mw.Cache(cache.New(ttl, 2*ttl), ttl)}, lookup...)
	}

	api := r.Group("/api")
	api.GET("/push/vapid_public_key", handler.GetVAPIDPublicKey)
	api.Use(identity, rateLimiter)

	push := api.Group("/push", mw.RequireRole(model.RoleResident))
	{
		push.GET("/subscriptions", handler.GetSubscription)
		push.PUT("/subscriptions", handler.PutSubscription)
		push.DELETE("/subscriptions", handler.DeleteSubscription)
	}

	visitors := api.Group("/visitors")
	{
		resident := visitors.Group("", mw.RequireRole(model.RoleResident))
		resident.POST("/pre-approve", handler.PreApprove)
		resident.GET("/resident", handler.ResidentHistory)
		resident.GET("/resident/pending-requests", handler.ResidentPending)
		resident.PUT("/resident/respond-request/:id", handler.RespondToRequest)

		guard := visitors.Group("/guard", mw.RequireRole(model.RoleGuard))
		guard.GET("/approved", handler.GuardApproved)
		guard.GET("/checked-in", handler.GuardCheckedIn)
		guard.POST("/request-entry", handler.RequestEntry)
		guard.POST("/check-in", handler.CheckIn)
		guard.POST("/check-out/:id", handler.CheckOut)
		guard.GET("/lookup/:unitNumber", lookup...)

		visitors.GET("/logs", mw.RequireRole(model.RoleAdmin), handler.Logs)
	}

	return r
}
