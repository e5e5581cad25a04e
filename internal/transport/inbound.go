package transport

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chatwallet/internal/models"

	twilioclient "github.com/twilio/twilio-go/client"
)

const (
	ChannelSMS      = "sms"
	ChannelWhatsApp = "whatsapp"

	SignatureHeader = "X-Twilio-Signature"
)

var ErrMissingField = errors.New("missing required field")

// InboundMessage is a parsed provider webhook.
type InboundMessage struct {
	MessageId   string
	Handle      string // sender without the channel prefix
	ReplyTo     string // raw sender address, used as the reply recipient
	Channel     string
	Body        string
	DisplayName string
	ReceivedAt  time.Time
}

// ParseInbound reads the form fields of a provider webhook.
func ParseInbound(r *http.Request, now time.Time) (*InboundMessage, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("unable to parse webhook form: %w", err)
	}

	from := strings.TrimSpace(r.PostForm.Get("From"))
	if from == "" {
		return nil, fmt.Errorf("%w: From", ErrMissingField)
	}

	channel := ChannelSMS
	handle := from
	if strings.HasPrefix(from, whatsappPrefix) {
		channel = ChannelWhatsApp
		handle = strings.TrimPrefix(from, whatsappPrefix)
	}
	if handle == "" {
		return nil, fmt.Errorf("%w: From", ErrMissingField)
	}

	return &InboundMessage{
		MessageId:   r.PostForm.Get("MessageSid"),
		Handle:      handle,
		ReplyTo:     from,
		Channel:     channel,
		Body:        strings.TrimSpace(r.PostForm.Get("Body")),
		DisplayName: strings.TrimSpace(r.PostForm.Get("ProfileName")),
		ReceivedAt:  now,
	}, nil
}

// InboundContext returns the metadata carried through the orchestrator.
func (m *InboundMessage) InboundContext() *models.InboundMessageContext {
	return &models.InboundMessageContext{
		MessageId:  m.MessageId,
		Channel:    m.Channel,
		ReceivedAt: m.ReceivedAt,
	}
}

// ValidSignature reports whether signature matches the request parameters.
// Webhook fields are single valued, so only the first value of each is signed.
func ValidSignature(authToken, fullURL string, params url.Values, signature string) bool {
	if signature == "" {
		return false
	}
	flat := make(map[string]string, len(params))
	for k := range params {
		flat[k] = params.Get(k)
	}
	validator := twilioclient.NewRequestValidator(authToken)
	return validator.Validate(fullURL, flat, signature)
}
