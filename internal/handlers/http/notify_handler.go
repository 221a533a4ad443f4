package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"peercall/internal/core/domain"
	"peercall/internal/infrastructure/credentials"
	"peercall/internal/infrastructure/push"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NotifyHandler accepts call signals over HTTP and hands them to the hub for
// delivery. Incoming-call signals get a callee join credential embedded so
// the callee can answer without a second authority round trip.
type NotifyHandler struct {
	hub    *push.Hub
	minter *credentials.TokenMinter
	logger *zap.SugaredLogger
}

func NewNotifyHandler(hub *push.Hub, minter *credentials.TokenMinter, logger *zap.SugaredLogger) *NotifyHandler {
	return &NotifyHandler{hub: hub, minter: minter, logger: logger}
}

func (h *NotifyHandler) SetupRoutes(router *gin.Engine) {
	router.POST("/call/notify", h.Notify)
}

func (h *NotifyHandler) Notify(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	msg, err := domain.DecodeSignal(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if msg.Target == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "signal missing target"})
		return
	}

	if msg.Kind == domain.SignalIncomingCall {
		if err := h.embedCalleeCredential(msg); err != nil {
			h.logger.Errorw("failed to mint callee credential",
				"room", msg.Room,
				"target", msg.Target,
				"error", err,
			)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mint callee credential"})
			return
		}
	}

	if err := h.hub.Route(c.Request.Context(), *msg); err != nil {
		if errors.Is(err, domain.ErrSignalDelivery) {
			c.JSON(http.StatusNotFound, gin.H{"error": "recipient unavailable"})
			return
		}
		h.logger.Errorw("signal routing failed",
			"kind", msg.Kind,
			"target", msg.Target,
			"error", err,
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delivery failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"delivered": true})
}

func (h *NotifyHandler) embedCalleeCredential(msg *domain.SignalMessage) error {
	payload, err := msg.IncomingCall()
	if err != nil {
		return err
	}
	cred, err := h.minter.Mint(msg.Room, string(msg.Target))
	if err != nil {
		return err
	}
	payload.JoinToken = cred.Token

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	msg.Payload = data
	return nil
}
