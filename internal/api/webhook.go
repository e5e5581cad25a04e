package api

import (
	"context"
	"net/http"

	"chatwallet/internal/metrics"
	"chatwallet/internal/models"
	"chatwallet/internal/transport"

	"go.uber.org/zap"
)

const (
	maxWebhookBody = 64 << 10
	emptyTwiML     = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`
)

// inbound handles a provider webhook. The reply goes out through the
// transport, never in the webhook response.
func (s *Service) inbound(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)

	msg, err := transport.ParseInbound(r, s.now())
	if err != nil {
		zap.L().Warn("Rejected inbound webhook", zap.Error(err))
		metrics.Message("rejected")
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if s.verifySignatures() && !transport.ValidSignature(s.signatureToken, s.webhookURL, r.PostForm, r.Header.Get(transport.SignatureHeader)) {
		zap.L().Warn("Inbound webhook with invalid signature",
			zap.String("handle", models.MaskHandle(msg.Handle)),
			zap.String("remote", r.RemoteAddr))
		metrics.Message("rejected")
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	// A flow in progress must not be aborted when the provider hangs up
	ctx := context.WithoutCancel(r.Context())
	ctx = models.WithInboundMessageContext(ctx, msg.InboundContext())

	reply := s.handler.HandleMessage(ctx, msg.Handle, msg.Body, msg.DisplayName)

	sendCtx, cancel := context.WithTimeout(ctx, s.replyTimeout)
	defer cancel()
	if _, err := s.sender.Send(sendCtx, msg.ReplyTo, reply); err != nil {
		zap.L().Error("Unable to deliver reply",
			zap.String("handle", models.MaskHandle(msg.Handle)),
			zap.String("message_id", msg.MessageId),
			zap.Error(err))
	}

	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(emptyTwiML))
}

func (s *Service) verifySignatures() bool {
	return s.signatureToken != "" && s.webhookURL != ""
}
