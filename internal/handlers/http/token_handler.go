package http

import (
	"net/http"

	"peercall/internal/core/domain"
	"peercall/internal/infrastructure/credentials"
	"peercall/pkg/validation"

	"github.com/gin-gonic/gin"
)

// TokenHandler serves join credentials for the media room service.
type TokenHandler struct {
	minter *credentials.TokenMinter
}

func NewTokenHandler(minter *credentials.TokenMinter) *TokenHandler {
	return &TokenHandler{minter: minter}
}

func (h *TokenHandler) SetupRoutes(router *gin.Engine) {
	router.GET("/token", h.GetToken)
}

func (h *TokenHandler) GetToken(c *gin.Context) {
	roomName := c.Query("roomName")
	participantName := c.Query("participantName")

	if roomName == "" || participantName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "roomName and participantName are required"})
		return
	}
	if err := validation.ValidateRoomID(roomName); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validation.ValidateParticipantName(participantName); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cred, err := h.minter.Mint(domain.RoomID(roomName), participantName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mint token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      cred.Token,
		"room":       cred.Room,
		"identity":   cred.Identity,
		"expires_at": cred.ExpiresAt,
	})
}
