package handlers

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/your-org/facebot/internal/bot"
	"github.com/your-org/facebot/internal/chat/telegram"
)

const telegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

type UpdateHandler interface {
	HandleUpdate(ctx context.Context, u bot.Update) error
}

type WebhookHandler struct {
	bot    UpdateHandler
	secret string
}

func NewWebhookHandler(b UpdateHandler, secret string) *WebhookHandler {
	return &WebhookHandler{bot: b, secret: secret}
}

// Telegram handles one Bot API update. Once the update is authenticated and
// decoded the answer is always 200, so Telegram does not redeliver it.
func (h *WebhookHandler) Telegram(c *gin.Context) {
	if h.secret != "" {
		got := c.GetHeader(telegramSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook secret"})
			return
		}
	}

	var upd tgbotapi.Update
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if u, ok := telegram.UpdateFromTelegram(upd); ok {
		if err := h.bot.HandleUpdate(c.Request.Context(), u); err != nil {
			slog.Error("handle telegram update", "update_id", upd.UpdateID, "chat", u.ChatID, "error", err)
		}
	}
	c.Status(http.StatusOK)
}
