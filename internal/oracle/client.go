package oracle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"chatwallet/internal/models"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const DefaultTimeout = 10 * time.Second

// ErrUnavailable covers every way the oracle can fail to answer: open
// breaker, timeout, rate limit, transport error or non-2xx reply.
var ErrUnavailable = errors.New("intent oracle unavailable")

type Message struct {
	Role    string
	Content string
}

func System(content string) Message {
	return Message{Role: openai.ChatMessageRoleSystem, Content: content}
}

func User(content string) Message { return Message{Role: openai.ChatMessageRoleUser, Content: content} }

func Assistant(content string) Message {
	return Message{Role: openai.ChatMessageRoleAssistant, Content: content}
}

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	api     *openai.Client
	model   string
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func New(cfg models.OracleConfig, httpClient *http.Client) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RatePerSecond)
	}

	apiCfg := openai.DefaultConfig(cfg.ApiKey)
	apiCfg.BaseURL = strings.TrimRight(cfg.ApiUrl, "/")
	if httpClient != nil {
		apiCfg.HTTPClient = httpClient
	}
	return &Client{
		api:     openai.NewClientWithConfig(apiCfg),
		model:   cfg.Model,
		timeout: timeout,
		cb:      newCircuitBreaker(),
		limiter: limiter,
	}
}

// Classify sends messages and returns the content of the first choice. The
// rate limit wait counts against the timeout.
func (c *Client) Classify(ctx context.Context, messages []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: rate limited: %v", ErrUnavailable, err)
	}

	out, err := c.cb.Execute(func() (interface{}, error) {
		return c.complete(ctx, messages)
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return out.(string), nil
}

func (c *Client) complete(ctx context.Context, messages []Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: make([]openai.ChatCompletionMessage, len(messages)),
	}
	for i, m := range messages {
		req.Messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("oracle returned status %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
		}
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

func newCircuitBreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "oracle",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				zap.L().Warn("Intent oracle seems down, falling back to rules only")
			}
			if from == gobreaker.StateHalfOpen && to == gobreaker.StateClosed {
				zap.L().Info("Intent oracle recovered")
			}
		},
	})
}
