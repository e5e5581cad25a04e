package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chatwallet/internal/models"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

const (
	whatsappPrefix = "whatsapp:"
	maxBodyLength  = 1600
)

var (
	ErrNotConfigured = errors.New("transport is not configured")
	ErrRejected      = errors.New("message rejected by provider")
)

// Sender delivers a reply to the address a message came from.
type Sender interface {
	Send(ctx context.Context, to, text string) (string, error)
}

// messageCreator is the slice of the Twilio Messages API the client needs.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// Client sends SMS and WhatsApp messages through the Twilio Messages API.
type Client struct {
	api  messageCreator
	from string
}

func NewClient(cfg models.TransportConfig) (*Client, error) {
	if cfg.AccountSid == "" || cfg.AuthToken == "" || cfg.From == "" {
		return nil, ErrNotConfigured
	}
	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSid,
		Password: cfg.AuthToken,
	})
	return &Client{api: rest.Api, from: cfg.From}, nil
}

// Send posts text to the raw provider address (e.g. "whatsapp:+15551234567")
// and returns the provider message id. The SDK call does not take a context,
// so ctx is only checked before the request goes out.
func (c *Client) Send(ctx context.Context, to, text string) (string, error) {
	if to == "" {
		return "", errors.New("recipient is required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(text) > maxBodyLength {
		text = text[:maxBodyLength]
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(c.sender(to))
	params.SetBody(text)

	msg, err := c.api.CreateMessage(params)
	if err != nil {
		var restErr *twilioclient.TwilioRestError
		if errors.As(err, &restErr) {
			return "", fmt.Errorf("%w: status %d code %d: %s", ErrRejected, restErr.Status, restErr.Code, restErr.Message)
		}
		return "", fmt.Errorf("unable to send message: %w", err)
	}

	sid := deref(msg.Sid)
	zap.L().Debug("Message sent",
		zap.String("to", models.MaskHandle(to)),
		zap.String("sid", sid),
		zap.String("status", deref(msg.Status)))
	return sid, nil
}

// sender mirrors the channel prefix of the recipient on the configured number.
func (c *Client) sender(to string) string {
	if strings.HasPrefix(to, whatsappPrefix) && !strings.HasPrefix(c.from, whatsappPrefix) {
		return whatsappPrefix + c.from
	}
	if !strings.HasPrefix(to, whatsappPrefix) {
		return strings.TrimPrefix(c.from, whatsappPrefix)
	}
	return c.from
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// LogSender drops replies after logging them. Used when no transport
// credentials are configured, e.g. local development.
type LogSender struct{}

func (LogSender) Send(_ context.Context, to, text string) (string, error) {
	zap.L().Info("Transport not configured, reply not delivered",
		zap.String("to", models.MaskHandle(to)),
		zap.Int("length", len(text)))
	return "", nil
}
