package models

import (
	"encoding/json"
	"fmt"
)

type FlowKind string

const (
	FlowNone       FlowKind = ""
	FlowOnboarding FlowKind = "ONBOARDING"
	FlowSend       FlowKind = "SEND"
	FlowSwap       FlowKind = "SWAP"
	FlowExport     FlowKind = "EXPORT"
)

// OnboardingContext holds values collected while onboarding. Only the hash
// of the first PIN entry is kept; cleartext PINs never reach a session.
type OnboardingContext struct {
	PendingPinHash string `json:"pending_pin_hash,omitempty"`
}

type SendContext struct {
	Family      ChainFamily `json:"family,omitempty"`
	ToAddress   string      `json:"to_address,omitempty"`
	Amount      string      `json:"amount,omitempty"`
	TokenSymbol string      `json:"token_symbol,omitempty"`
	// Request holds unvalidated values from the first message until the
	// chain is chosen
	Request *SendRequest `json:"request,omitempty"`
}

type SendRequest struct {
	Token   string `json:"token,omitempty"`
	Address string `json:"address,omitempty"`
	Amount  string `json:"amount,omitempty"`
}

type SwapContext struct {
	Family    ChainFamily  `json:"family,omitempty"`
	FromToken string       `json:"from_token,omitempty"`
	ToToken   string       `json:"to_token,omitempty"`
	Amount    string       `json:"amount,omitempty"`
	Request   *SwapRequest `json:"request,omitempty"`
}

type SwapRequest struct {
	FromToken string `json:"from_token,omitempty"`
	ToToken   string `json:"to_token,omitempty"`
	Amount    string `json:"amount,omitempty"`
}

type ExportContext struct {
	Family ChainFamily `json:"family,omitempty"`
}

// FlowContext is a tagged union: only the variant matching Kind is set.
type FlowContext struct {
	Kind       FlowKind           `json:"kind,omitempty"`
	Onboarding *OnboardingContext `json:"onboarding,omitempty"`
	Send       *SendContext       `json:"send,omitempty"`
	Swap       *SwapContext       `json:"swap,omitempty"`
	Export     *ExportContext     `json:"export,omitempty"`
}

func NewOnboardingFlow(c OnboardingContext) FlowContext {
	return FlowContext{Kind: FlowOnboarding, Onboarding: &c}
}

func NewSendFlow(c SendContext) FlowContext {
	return FlowContext{Kind: FlowSend, Send: &c}
}

func NewSwapFlow(c SwapContext) FlowContext {
	return FlowContext{Kind: FlowSwap, Swap: &c}
}

func NewExportFlow(c ExportContext) FlowContext {
	return FlowContext{Kind: FlowExport, Export: &c}
}

// Merge applies patch on top of c and returns the result. A patch without a
// kind is a no-op, a patch of another kind replaces c, and a patch of the
// same kind overwrites each field it sets. Setting the family drops any
// pending request.
func (c FlowContext) Merge(patch FlowContext) FlowContext {
	if patch.Kind == FlowNone {
		return c.clone()
	}
	if patch.Kind != c.Kind {
		return patch.clone()
	}

	out := c.clone()
	switch patch.Kind {
	case FlowOnboarding:
		if patch.Onboarding == nil {
			break
		}
		if out.Onboarding == nil {
			out.Onboarding = &OnboardingContext{}
		}
		if patch.Onboarding.PendingPinHash != "" {
			out.Onboarding.PendingPinHash = patch.Onboarding.PendingPinHash
		}
	case FlowSend:
		if patch.Send == nil {
			break
		}
		if out.Send == nil {
			out.Send = &SendContext{}
		}
		p := patch.Send
		if p.Family != "" {
			out.Send.Family = p.Family
			out.Send.Request = nil
		}
		if p.ToAddress != "" {
			out.Send.ToAddress = p.ToAddress
		}
		if p.Amount != "" {
			out.Send.Amount = p.Amount
		}
		if p.TokenSymbol != "" {
			out.Send.TokenSymbol = p.TokenSymbol
		}
	case FlowSwap:
		if patch.Swap == nil {
			break
		}
		if out.Swap == nil {
			out.Swap = &SwapContext{}
		}
		p := patch.Swap
		if p.Family != "" {
			out.Swap.Family = p.Family
			out.Swap.Request = nil
		}
		if p.FromToken != "" {
			out.Swap.FromToken = p.FromToken
		}
		if p.ToToken != "" {
			out.Swap.ToToken = p.ToToken
		}
		if p.Amount != "" {
			out.Swap.Amount = p.Amount
		}
	case FlowExport:
		if patch.Export == nil {
			break
		}
		if out.Export == nil {
			out.Export = &ExportContext{}
		}
		if patch.Export.Family != "" {
			out.Export.Family = patch.Export.Family
		}
	}
	return out
}

func (c FlowContext) clone() FlowContext {
	out := FlowContext{Kind: c.Kind}
	if c.Onboarding != nil {
		v := *c.Onboarding
		out.Onboarding = &v
	}
	if c.Send != nil {
		v := *c.Send
		if v.Request != nil {
			r := *v.Request
			v.Request = &r
		}
		out.Send = &v
	}
	if c.Swap != nil {
		v := *c.Swap
		if v.Request != nil {
			r := *v.Request
			v.Request = &r
		}
		out.Swap = &v
	}
	if c.Export != nil {
		v := *c.Export
		out.Export = &v
	}
	return out
}

// Encode serializes the context for the record store
func (c FlowContext) Encode() (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("unable to encode flow context: %w", err)
	}
	return string(b), nil
}

// DecodeFlowContext parses a stored context. Empty input is the empty context.
func DecodeFlowContext(raw string) (FlowContext, error) {
	var c FlowContext
	if raw == "" {
		return c, nil
	}
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return FlowContext{}, fmt.Errorf("unable to decode flow context: %w", err)
	}
	return c, nil
}
