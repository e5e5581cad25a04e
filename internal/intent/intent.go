package intent

import (
	"context"
	"fmt"
	"strings"

	"chatwallet/internal/chain"
	"chatwallet/internal/metrics"
	"chatwallet/internal/models"
	"chatwallet/internal/oracle"
	"chatwallet/internal/vault"

	"go.uber.org/zap"
)

type Intent string

const (
	Send       Intent = "SEND"
	Swap       Intent = "SWAP"
	Balance    Intent = "BALANCE"
	Receive    Intent = "RECEIVE"
	History    Intent = "HISTORY"
	ExportSeed Intent = "EXPORT_SEED"
	Help       Intent = "HELP"
	Confirm    Intent = "CONFIRM"
	Cancel     Intent = "CANCEL"
	Greeting   Intent = "GREETING"
	Unknown    Intent = "UNKNOWN"
)

var vocabulary = map[Intent]bool{
	Send: true, Swap: true, Balance: true, Receive: true, History: true,
	ExportSeed: true, Help: true, Confirm: true, Cancel: true, Greeting: true, Unknown: true,
}

// ParseIntent maps a name to the closed vocabulary.
func ParseIntent(s string) (Intent, bool) {
	i := Intent(strings.ToUpper(strings.TrimSpace(s)))
	return i, vocabulary[i]
}

// Entity keys
const (
	EntityChain   = "chain"
	EntityAddress = "address"
	EntityAmount  = "amount"
	EntityToken   = "token"
	EntityToToken = "to_token"
)

// Entities holds validated, normalized values keyed by the Entity constants.
type Entities map[string]string

const (
	SourceRules    = "rules"
	SourceOracle   = "oracle"
	SourceFallback = "fallback"
)

type Result struct {
	Intent     Intent
	Entities   Entities
	Confidence float64
	Source     string
}

// SessionContext is what the resolver may know about the conversation.
type SessionContext struct {
	Step models.ConversationStep
	Flow models.FlowContext
}

func (sc *SessionContext) flowActive() bool {
	return sc != nil && !models.IsIdle(sc.Step)
}

// Oracle classifies free text the rules could not.
type Oracle interface {
	Classify(ctx context.Context, messages []oracle.Message) (string, error)
}

// Resolver combines deterministic rules with an optional oracle fallback.
type Resolver struct {
	oracle Oracle
	tokens *chain.TokenRegistry
}

// NewResolver returns a resolver; a nil oracle means rules only.
func NewResolver(o Oracle, tokens *chain.TokenRegistry) *Resolver {
	if tokens == nil {
		tokens = chain.NewTokenRegistry(nil)
	}
	return &Resolver{oracle: o, tokens: tokens}
}

// Classify never fails: the worst case is Unknown with confidence 0.
// PIN-shaped text is only ever matched by rules.
func (r *Resolver) Classify(ctx context.Context, text string, sc *SessionContext) Result {
	res := r.Rules(text, sc)
	if res.Intent != Unknown || sc.flowActive() || r.oracle == nil || strings.TrimSpace(text) == "" {
		return res
	}
	if vault.PinShaped(strings.TrimSpace(text)) {
		return res
	}

	content, err := r.oracle.Classify(ctx, buildMessages(text, sc))
	metrics.OracleCall(err)
	if err != nil {
		zap.L().Warn("Intent oracle failed, using rules result", zap.Error(err))
		return res
	}

	guess := r.parseOracleReply(content)
	for k, v := range res.Entities {
		guess.Entities[k] = v
	}
	zap.L().Debug("Intent resolved by oracle",
		zap.String("intent", string(guess.Intent)),
		zap.String("source", guess.Source),
		zap.Float64("confidence", guess.Confidence))
	return guess
}

const systemPrompt = `You classify messages sent to a crypto wallet assistant.
Reply with one JSON object and nothing else:
{"intent": one of SEND, SWAP, BALANCE, RECEIVE, HISTORY, EXPORT_SEED, HELP, CONFIRM, CANCEL, GREETING, UNKNOWN,
 "entities": {"chain": "evm" or "solana", "address": string, "amount": string, "token": string, "to_token": string},
 "confidence": number between 0 and 1}
Omit entities you cannot find.`

func buildMessages(text string, sc *SessionContext) []oracle.Message {
	prompt := systemPrompt
	if sc != nil && sc.Step != nil {
		prompt += fmt.Sprintf("\nCurrent conversation step: %s.", sc.Step)
		if sc.Flow.Kind != models.FlowNone {
			prompt += fmt.Sprintf(" Active flow: %s.", sc.Flow.Kind)
		}
	}
	return []oracle.Message{oracle.System(prompt), oracle.User(text)}
}
