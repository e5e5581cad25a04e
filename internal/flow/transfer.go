package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chatwallet/internal/chain"
	"chatwallet/internal/intent"
	"chatwallet/internal/metrics"
	"chatwallet/internal/models"

	"github.com/shopspring/decimal"
)

func (o *Orchestrator) startSend(ctx context.Context, account *models.Account, e intent.Entities) (string, error) {
	req := models.SendRequest{Token: e[intent.EntityToken], Address: e[intent.EntityAddress], Amount: e[intent.EntityAmount]}
	c := models.SendContext{Family: o.familyFromEntities(e, req.Token)}
	var note string
	if c.Family != "" {
		var err error
		if note, err = o.fillSend(ctx, account, &c, req); err != nil {
			return "", err
		}
	} else if req != (models.SendRequest{}) {
		c.Request = &req
	}

	metrics.FlowStarted(string(models.FlowSend))
	reply, err := o.advanceSend(ctx, account, nil, c)
	return withNote(note, reply, err)
}

// fillSend applies the request to c once c.Family is known. A requested
// token the family does not list falls back to the native token. A rejected
// amount is returned as a note and left for the user to re-enter.
func (o *Orchestrator) fillSend(ctx context.Context, account *models.Account, c *models.SendContext, req models.SendRequest) (string, error) {
	c.Request = nil
	sdk, err := o.chains.Get(c.Family)
	if err != nil {
		return "", err
	}
	c.TokenSymbol = sdk.NativeToken().Symbol
	if req.Token != "" {
		if tok, err := o.tokens.Lookup(c.Family, req.Token); err == nil {
			c.TokenSymbol = tok.Symbol
		}
	}
	if req.Address != "" && sdk.ValidateAddress(req.Address) {
		c.ToAddress = req.Address
	}
	if req.Amount == "" {
		return "", nil
	}
	tok, err := o.tokens.Lookup(c.Family, c.TokenSymbol)
	if err != nil {
		return "", err
	}
	value, prompt, err := o.checkAmount(ctx, account, c.Family, tok, req.Amount)
	if err != nil || prompt != "" {
		return prompt, err
	}
	c.Amount = value.String()
	return "", nil
}

func (o *Orchestrator) startSwap(ctx context.Context, account *models.Account, e intent.Entities) (string, error) {
	req := models.SwapRequest{FromToken: e[intent.EntityToken], ToToken: e[intent.EntityToToken], Amount: e[intent.EntityAmount]}
	c := models.SwapContext{Family: o.familyFromEntities(e, req.FromToken, req.ToToken)}
	var note string
	if c.Family != "" {
		var err error
		if note, err = o.fillSwap(ctx, account, &c, req); err != nil {
			return "", err
		}
	} else if req != (models.SwapRequest{}) {
		c.Request = &req
	}

	metrics.FlowStarted(string(models.FlowSwap))
	reply, err := o.advanceSwap(ctx, account, nil, c)
	return withNote(note, reply, err)
}

// fillSwap applies the request to c once c.Family is known. The amount is
// only checked when both tokens resolve to a distinct pair.
func (o *Orchestrator) fillSwap(ctx context.Context, account *models.Account, c *models.SwapContext, req models.SwapRequest) (string, error) {
	c.Request = nil
	if req.FromToken == "" || req.ToToken == "" {
		return "", nil
	}
	fromTok, fromErr := o.tokens.Lookup(c.Family, req.FromToken)
	toTok, toErr := o.tokens.Lookup(c.Family, req.ToToken)
	if fromErr != nil || toErr != nil || fromTok.Symbol == toTok.Symbol {
		return "", nil
	}
	c.FromToken, c.ToToken = fromTok.Symbol, toTok.Symbol
	if req.Amount == "" {
		return "", nil
	}
	value, prompt, err := o.checkAmount(ctx, account, c.Family, fromTok, req.Amount)
	if err != nil || prompt != "" {
		return prompt, err
	}
	c.Amount = value.String()
	return "", nil
}

func withNote(note, reply string, err error) (string, error) {
	if err != nil || note == "" {
		return reply, err
	}
	return note + "\n" + reply, nil
}

func (o *Orchestrator) chainSelect(ctx context.Context, account *models.Account, sess *models.Session, text string) (string, error) {
	family, ok := chain.FindFamily(text)
	if ok {
		_, err := o.chains.Get(family)
		ok = err == nil
	}
	if !ok {
		return o.reprompt(ctx, account.Handle, chooseChain(o.chains.Families()))
	}

	switch sess.Context.Kind {
	case models.FlowSend:
		c := sendContext(sess)
		c.Family = family
		var req models.SendRequest
		if c.Request != nil {
			req = *c.Request
		}
		if req.Token == "" {
			if tok, found := o.tokens.FindSymbol(family, text); found {
				req.Token = tok.Symbol
			}
		}
		note, err := o.fillSend(ctx, account, &c, req)
		if err != nil {
			return "", err
		}
		reply, err := o.advanceSend(ctx, account, sess, c)
		return withNote(note, reply, err)
	case models.FlowSwap:
		c := swapContext(sess)
		c.Family = family
		var req models.SwapRequest
		if c.Request != nil {
			req = *c.Request
		}
		note, err := o.fillSwap(ctx, account, &c, req)
		if err != nil {
			return "", err
		}
		reply, err := o.advanceSwap(ctx, account, sess, c)
		return withNote(note, reply, err)
	}
	return "", fmt.Errorf("chain selection in %q flow", sess.Context.Kind)
}

func (o *Orchestrator) addressInput(ctx context.Context, account *models.Account, sess *models.Session, text string) (string, error) {
	c := sendContext(sess)
	sdk, err := o.chains.Get(c.Family)
	if err != nil {
		return "", err
	}
	fields := strings.Fields(text)
	if len(fields) != 1 || !sdk.ValidateAddress(fields[0]) {
		return o.reprompt(ctx, account.Handle, invalidAddress(c.Family))
	}
	c.ToAddress = fields[0]
	return o.advanceSend(ctx, account, sess, c)
}

func (o *Orchestrator) tokenSelect(ctx context.Context, account *models.Account, sess *models.Session, text string) (string, error) {
	c := swapContext(sess)
	from, to, ok := o.parseTokenPair(c.Family, text)
	if !ok {
		return o.reprompt(ctx, account.Handle, chooseTokens(o.tokens.Symbols(c.Family)))
	}
	c.FromToken, c.ToToken = from.Symbol, to.Symbol
	return o.advanceSwap(ctx, account, sess, c)
}

func (o *Orchestrator) amountInput(ctx context.Context, account *models.Account, sess *models.Session, text string) (string, error) {
	switch sess.Context.Kind {
	case models.FlowSend:
		c := sendContext(sess)
		tok, err := o.tokens.Lookup(c.Family, c.TokenSymbol)
		if err != nil {
			return "", err
		}
		amount, prompt, err := o.checkAmount(ctx, account, c.Family, tok, text)
		if err != nil {
			return "", err
		}
		if prompt != "" {
			return o.reprompt(ctx, account.Handle, prompt)
		}
		c.Amount = amount.String()
		return o.advanceSend(ctx, account, sess, c)

	case models.FlowSwap:
		c := swapContext(sess)
		tok, err := o.tokens.Lookup(c.Family, c.FromToken)
		if err != nil {
			return "", err
		}
		amount, prompt, err := o.checkAmount(ctx, account, c.Family, tok, text)
		if err != nil {
			return "", err
		}
		if prompt != "" {
			return o.reprompt(ctx, account.Handle, prompt)
		}
		c.Amount = amount.String()
		return o.advanceSwap(ctx, account, sess, c)
	}
	return "", fmt.Errorf("amount input in %q flow", sess.Context.Kind)
}

// advanceSend stores c and moves to the first step whose value is missing.
func (o *Orchestrator) advanceSend(ctx context.Context, account *models.Account, sess *models.Session, c models.SendContext) (string, error) {
	var step models.MainStep
	var prompt string
	switch {
	case c.Family == "":
		step, prompt = models.StepChainSelect, chooseChain(o.chains.Families())
	case c.ToAddress == "":
		step, prompt = models.StepAddressInput, replyEnterAddress
	case c.Amount == "":
		step, prompt = models.StepAmountInput, enterAmount(c.TokenSymbol)
	default:
		step, prompt = models.StepConfirm, confirmSend(&c, shortAddress(c.ToAddress))
	}
	if err := o.save(ctx, account, sess, step, models.NewSendFlow(c)); err != nil {
		return "", err
	}
	return prompt, nil
}

func (o *Orchestrator) advanceSwap(ctx context.Context, account *models.Account, sess *models.Session, c models.SwapContext) (string, error) {
	var step models.MainStep
	var prompt string
	switch {
	case c.Family == "":
		step, prompt = models.StepChainSelect, chooseChain(o.chains.Families())
	case c.FromToken == "" || c.ToToken == "":
		step, prompt = models.StepTokenSelect, chooseTokens(o.tokens.Symbols(c.Family))
	case c.Amount == "":
		step, prompt = models.StepAmountInput, enterAmount(c.FromToken)
	default:
		step, prompt = models.StepConfirm, confirmSwap(&c)
	}
	if err := o.save(ctx, account, sess, step, models.NewSwapFlow(c)); err != nil {
		return "", err
	}
	return prompt, nil
}

// checkAmount validates text as an amount of tok covered by the live balance
// of the account's wallet. A non-empty prompt means the user must re-enter
// the amount; an error ends the flow.
func (o *Orchestrator) checkAmount(ctx context.Context, account *models.Account, family models.ChainFamily, tok chain.Token, text string) (decimal.Decimal, string, error) {
	amount, err := parseAmount(text, tok)
	if err != nil {
		return decimal.Zero, invalidAmount(userReason(err)), nil
	}

	sdk, err := o.chains.Get(family)
	if err != nil {
		return decimal.Zero, "", err
	}
	wallet, err := o.store.GetWallet(ctx, account.Id, family)
	if err != nil {
		return decimal.Zero, "", err
	}
	err = o.ensureBalance(ctx, sdk, wallet.Address, tok, amount)
	var balanceErr *BalanceError
	if errors.As(err, &balanceErr) {
		return decimal.Zero, insufficientBalance(balanceErr.Available.String(), balanceErr.Symbol), nil
	}
	if err != nil {
		return decimal.Zero, "", err
	}
	return amount, "", nil
}

// ensureBalance fails with a *BalanceError when amount exceeds the balance,
// or ErrUpstreamUnavailable when the balance cannot be read.
func (o *Orchestrator) ensureBalance(ctx context.Context, sdk chain.WalletSDK, address string, tok chain.Token, amount decimal.Decimal) error {
	callCtx, cancel := context.WithTimeout(ctx, o.chainTimeout)
	defer cancel()

	balance, err := sdk.TokenBalance(callCtx, address, tok)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if amount.GreaterThan(balance.Formatted) {
		return &BalanceError{Available: balance.Formatted, Symbol: tok.Symbol}
	}
	return nil
}

// parseAmount accepts a positive decimal with at most tok.Decimals places.
func parseAmount(text string, tok chain.Token) (decimal.Decimal, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return decimal.Zero, validationError("amount is empty")
	}
	raw := fields[0]
	if len(fields) == 2 && !strings.EqualFold(fields[1], tok.Symbol) {
		return decimal.Zero, validationError("expected an amount of %s", tok.Symbol)
	}
	if len(fields) > 2 {
		return decimal.Zero, validationError("expected a single number")
	}

	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, validationError("%q is not a number", raw)
	}
	if !amount.IsPositive() {
		return decimal.Zero, validationError("amount must be greater than zero")
	}
	if -amount.Exponent() > tok.Decimals {
		return decimal.Zero, validationError("%s supports at most %d decimal places", tok.Symbol, tok.Decimals)
	}
	return amount, nil
}

// parseTokenPair reads "X to Y" or "X Y" as two distinct known symbols.
func (o *Orchestrator) parseTokenPair(family models.ChainFamily, text string) (chain.Token, chain.Token, bool) {
	var found []chain.Token
	for _, word := range strings.Fields(text) {
		tok, err := o.tokens.Lookup(family, strings.Trim(word, ".,!?;:"))
		if err != nil {
			continue
		}
		found = append(found, tok)
		if len(found) == 2 {
			break
		}
	}
	if len(found) != 2 || found[0].Symbol == found[1].Symbol {
		return chain.Token{}, chain.Token{}, false
	}
	return found[0], found[1], true
}

// familyFromEntities uses the chain entity when set, otherwise the only
// registered family that knows every given symbol.
func (o *Orchestrator) familyFromEntities(e intent.Entities, symbols ...string) models.ChainFamily {
	families := o.chains.Families()
	if c := e[intent.EntityChain]; c != "" {
		family := models.ChainFamily(c)
		if _, err := o.chains.Get(family); err == nil {
			return family
		}
		return ""
	}
	if len(families) == 1 {
		return families[0]
	}

	var match models.ChainFamily
	for _, f := range families {
		known := false
		for _, sym := range symbols {
			if sym == "" {
				continue
			}
			if _, err := o.tokens.Lookup(f, sym); err != nil {
				known = false
				break
			}
			known = true
		}
		if !known {
			continue
		}
		if match != "" {
			return ""
		}
		match = f
	}
	return match
}

func sendContext(sess *models.Session) models.SendContext {
	if sess == nil || sess.Context.Send == nil {
		return models.SendContext{}
	}
	return *sess.Context.Send
}

func swapContext(sess *models.Session) models.SwapContext {
	if sess == nil || sess.Context.Swap == nil {
		return models.SwapContext{}
	}
	return *sess.Context.Swap
}
