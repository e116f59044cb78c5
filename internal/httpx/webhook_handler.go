package httpx

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/bison360/sync-gateway/internal/metrics"
	"github.com/bison360/sync-gateway/internal/webhook"
)

const (
	grownbySignatureHeader = "x-grownby-signature"
	maxWebhookBody         = 1 << 20 // 1 MiB
)

// WebhookHandler terminates the partner webhook endpoint: it authenticates
// the call, verifies the body signature and hands the envelope to the
// dispatcher. Dispatch never runs on an unverified payload.
type WebhookHandler struct {
	Dispatcher *webhook.Dispatcher

	// Secret signs webhook bodies; empty means unconfigured (400).
	Secret string

	// AuthToken is the optional legacy bearer gate; enforced only when set.
	AuthToken string

	Log *zap.Logger
}

func (h *WebhookHandler) Register(r *chi.Mux) {
	r.Post("/integrations/grownby/webhook", h.receive)
}

func (h *WebhookHandler) receive(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	metrics.WebhookEventsTotal.Inc()

	if h.AuthToken != "" && !h.bearerOK(r) {
		metrics.WebhookEventsRejectedTotal.WithLabelValues("unauthorized").Inc()
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
		return
	}

	signature := r.Header.Get(grownbySignatureHeader)
	if h.Secret == "" || signature == "" {
		metrics.WebhookEventsRejectedTotal.WithLabelValues("missing_config").Inc()
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Missing webhook secret or signature"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Unreadable body"})
		return
	}

	if !webhook.Verify(body, signature, h.Secret) {
		metrics.WebhookEventsRejectedTotal.WithLabelValues("bad_signature").Inc()
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid signature"})
		return
	}

	env, err := webhook.DecodeEnvelope(body)
	if err != nil {
		metrics.WebhookEventsRejectedTotal.WithLabelValues("bad_payload").Inc()
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Malformed payload"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	actor := h.Dispatcher.Platform + "-webhook"
	if err := h.Dispatcher.Dispatch(ctx, actor, middleware.GetReqID(r.Context()), env); err != nil {
		if errors.Is(err, webhook.ErrBadPayload) {
			metrics.WebhookEventsRejectedTotal.WithLabelValues("bad_payload").Inc()
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Malformed payload"})
			return
		}
		metrics.WebhookEventsFailedTotal.Inc()
		// internal detail stays in the log, not in the response
		h.Log.Error("webhook dispatch failed",
			zap.String("event_type", env.EventType), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Webhook processing failed"})
		return
	}

	metrics.WebhookProcessingDuration.Observe(time.Since(start).Seconds())
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *WebhookHandler) bearerOK(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.AuthToken)) == 1
}
