package models

import (
	"context"
	"time"
)

type inboundContextKey struct{}

// InboundMessageContext carries transport metadata about the message being
// handled so the ledger mirror can store it as transaction metadata without
// widening the orchestrator entry point.
type InboundMessageContext struct {
	MessageId  string // provider message id (e.g. "SM5f0c...")
	Channel    string // sms or whatsapp
	ReceivedAt time.Time
}

// WithInboundMessageContext attaches inbound message data to a context.
func WithInboundMessageContext(ctx context.Context, imc *InboundMessageContext) context.Context {
	return context.WithValue(ctx, inboundContextKey{}, imc)
}

// GetInboundMessageContext retrieves inbound message data from context, or nil if absent.
func GetInboundMessageContext(ctx context.Context) *InboundMessageContext {
	imc, _ := ctx.Value(inboundContextKey{}).(*InboundMessageContext)
	return imc
}
