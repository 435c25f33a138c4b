package http

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tazhibayda/qna-service/internal/accounts"
	"github.com/tazhibayda/qna-service/internal/log"
	"github.com/tazhibayda/qna-service/internal/metrics"
	"github.com/tazhibayda/qna-service/internal/queue"
	"github.com/tazhibayda/qna-service/internal/webhook"
)

// Transport header names used by the identity provider's delivery
// service. Treated as opaque strings; only the verifier interprets them.
const (
	headerEventID   = "svix-id"
	headerTimestamp = "svix-timestamp"
	headerSignature = "svix-signature"
)

// IdentityWebhook godoc
// @Summary Identity provider webhook
// @Description Verifies the event signature and synchronizes the account lifecycle.
// @Tags webhooks
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string
// @Success 201 {object} map[string]any
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /api/webhooks/identity [post]
func (h *Handler) IdentityWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	hdr := webhook.Headers{
		ID:        c.GetHeader(headerEventID),
		Timestamp: c.GetHeader(headerTimestamp),
		Signature: c.GetHeader(headerSignature),
	}

	ev, err := webhook.Verify(body, hdr, h.WebhookSecret)
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("unknown", "rejected").Inc()
		log.WithDD(c.Request.Context(), log.L).Warn("webhook rejected",
			zap.String("event_id", hdr.ID), zap.Error(err))
		// generic 400, no verification details leaked
		c.JSON(http.StatusBadRequest, gin.H{"error": "verification failed"})
		return
	}
	kind := ev.Kind()

	// Replay guard. Verification already bounds how stale a replay can
	// be; this only dedupes redeliveries inside the window. Redis being
	// down is not a reason to drop a verified event.
	if h.Replay != nil {
		seen, err := h.Replay.SeenEvent(c.Request.Context(), hdr.ID, 2*webhook.Tolerance)
		if err != nil {
			log.WithDD(c.Request.Context(), log.L).Warn("replay guard unavailable", zap.Error(err))
		} else if seen {
			metrics.WebhookEventsTotal.WithLabelValues(string(kind), "duplicate").Inc()
			c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
			return
		}
	}

	WithSpan(c.Request.Context(), "webhook.dispatch", func(ctx context.Context) {
		h.dispatch(c, ctx, ev)
	})
}

func (h *Handler) dispatch(c *gin.Context, ctx context.Context, ev *webhook.Event) {
	kind := ev.Kind()
	reqID := c.GetString("X-Request-ID")

	switch kind {
	case webhook.KindAccountCreated:
		data, err := webhook.Normalize(ev)
		if err != nil {
			metrics.WebhookEventsTotal.WithLabelValues(string(kind), "rejected").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": "incomplete payload"})
			return
		}
		u, err := h.Sync.OnAccountCreated(ctx, data)
		if errors.Is(err, accounts.ErrDuplicateAccount) {
			metrics.WebhookEventsTotal.WithLabelValues(string(kind), "conflict").Inc()
			c.JSON(http.StatusConflict, gin.H{"error": "account already exists"})
			return
		}
		if err != nil {
			metrics.WebhookEventsTotal.WithLabelValues(string(kind), "error").Inc()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "sync failed"})
			return
		}
		h.publish(ctx, queue.KeyAccountCreated,
			queue.AccountSynced{UserID: u.ID, ExternalID: u.ExternalID, Username: u.Username, Email: u.Email}, reqID)
		metrics.WebhookEventsTotal.WithLabelValues(string(kind), "created").Inc()
		c.JSON(http.StatusCreated, gin.H{"id": u.ID, "external_id": u.ExternalID})

	case webhook.KindAccountUpdated:
		data, err := webhook.Normalize(ev)
		if err != nil {
			metrics.WebhookEventsTotal.WithLabelValues(string(kind), "rejected").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": "incomplete payload"})
			return
		}
		u, err := h.Sync.OnAccountUpdated(ctx, data)
		if err != nil {
			metrics.WebhookEventsTotal.WithLabelValues(string(kind), "error").Inc()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "sync failed"})
			return
		}
		if u == nil {
			// update raced creation upstream; ack so the provider stops retrying
			metrics.WebhookEventsTotal.WithLabelValues(string(kind), "noop").Inc()
			c.JSON(http.StatusOK, gin.H{"status": "skipped"})
			return
		}
		h.publish(ctx, queue.KeyAccountUpdated,
			queue.AccountSynced{UserID: u.ID, ExternalID: u.ExternalID, Username: u.Username, Email: u.Email}, reqID)
		metrics.WebhookEventsTotal.WithLabelValues(string(kind), "updated").Inc()
		c.JSON(http.StatusOK, gin.H{"status": "updated"})

	case webhook.KindAccountDeleted:
		if ev.Data.ID == "" {
			metrics.WebhookEventsTotal.WithLabelValues(string(kind), "rejected").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": "incomplete payload"})
			return
		}
		u, err := h.Sync.OnAccountDeleted(ctx, ev.Data.ID)
		if err != nil {
			metrics.WebhookEventsTotal.WithLabelValues(string(kind), "error").Inc()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "sync failed"})
			return
		}
		if u == nil {
			metrics.WebhookEventsTotal.WithLabelValues(string(kind), "noop").Inc()
			c.JSON(http.StatusOK, gin.H{"status": "already deleted"})
			return
		}
		h.publish(ctx, queue.KeyAccountDeleted,
			queue.AccountDeleted{UserID: u.ID, ExternalID: u.ExternalID}, reqID)
		metrics.WebhookEventsTotal.WithLabelValues(string(kind), "deleted").Inc()
		c.JSON(http.StatusOK, gin.H{"status": "deleted"})

	default:
		metrics.WebhookEventsTotal.WithLabelValues(string(kind), "ignored").Inc()
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	}
}
