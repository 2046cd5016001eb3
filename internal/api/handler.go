package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"society-gate-backend/internal/gate"
	"society-gate-backend/internal/mw"
	"society-gate-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	gate    *gate.Service
	store   store.Store
	webpush *webpush.Options
}

// NewHandler creates a new API handler. webpushOptions may be nil when push is disabled.
func NewHandler(svc *gate.Service, s store.Store, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		gate:    svc,
		store:   s,
		webpush: webpushOptions,
	}
}

var statusByKind = map[gate.Kind]int{
	gate.KindValidation:  http.StatusBadRequest,
	gate.KindNotFound:    http.StatusNotFound,
	gate.KindConflict:    http.StatusConflict,
	gate.KindForbidden:   http.StatusForbidden,
	gate.KindPersistence: http.StatusInternalServerError,
}

// respondError writes err as {"error": ..., "kind": ...}. Persistence causes
// are logged and never shown to the caller.
func respondError(c *gin.Context, err error) {
	var ge *gate.Error
	if !errors.As(err, &ge) {
		slog.Error("unexpected handler error", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "kind": gate.KindPersistence})
		return
	}

	status, ok := statusByKind[ge.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	msg := ge.Error()
	if ge.Kind == gate.KindPersistence {
		_ = c.Error(err)
		msg = ge.Message
	}
	c.JSON(status, gin.H{"error": msg, "kind": ge.Kind})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": gate.KindValidation})
}

// actor returns the identity set by mw.Identity. Routes are always mounted
// behind it, so a missing actor is a wiring bug.
func actor(c *gin.Context) gate.Actor {
	a, _ := mw.ActorFrom(c)
	return a
}
