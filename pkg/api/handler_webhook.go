package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bridgecall/bridgecall/pkg/telegram"
)

const enqueueTimeout = 5 * time.Second

// Webhook handles POST /tg/:token, the Telegram update endpoint. The token
// path segment is the shared secret configured via setWebhook; a mismatch
// gets a bare 404 so the endpoint is indistinguishable from a missing route.
func (s *Server) Webhook(c *gin.Context) {
	token := c.Param("token")
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.webhookSecret)) != 1 {
		c.Status(http.StatusNotFound)
		return
	}

	var upd telegram.Update
	if err := c.ShouldBindJSON(&upd); err != nil {
		// Telegram retries on non-2xx. A malformed body will never get
		// better, so acknowledge and drop it.
		slog.Warn("Discarding malformed webhook update", "error", err)
		c.Status(http.StatusOK)
		return
	}

	in, callbackID, ok := telegram.Classify(upd)
	if !ok {
		c.Status(http.StatusOK)
		return
	}

	if callbackID != "" {
		// Ack the button press right away; the spinner deadline is short
		// and processing order does not depend on it. Detached from the
		// request context, which dies when this handler returns.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			s.botClient.AnswerCallback(ctx, callbackID)
		}()
	}

	enqCtx, enqCancel := context.WithTimeout(c.Request.Context(), enqueueTimeout)
	defer enqCancel()
	if !s.driver.Enqueue(enqCtx, in) {
		slog.Warn("Update queue full or driver stopping, dropping update",
			"uid", in.UID, "update_id", upd.UpdateID)
	}
	c.Status(http.StatusOK)
}
