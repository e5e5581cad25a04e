package intent

import (
	"regexp"
	"strings"

	"chatwallet/internal/chain"
	"chatwallet/internal/models"

	"github.com/shopspring/decimal"
)

var (
	amountPattern    = regexp.MustCompile(`(?:^|[\s$])(\d+(?:\.\d+)?|\.\d+)(?:$|[\s.,!?])`)
	evmFindPattern   = regexp.MustCompile(`0x[0-9a-fA-F]{40}`)
	base58Candidates = regexp.MustCompile(`[1-9A-HJ-NP-Za-km-z]{32,44}`)
)

var (
	cancelWords   = []string{"cancel", "stop", "abort", "quit", "exit", "nevermind", "never mind", "no"}
	confirmWords  = []string{"yes", "y", "confirm", "ok", "okay", "proceed", "sure", "go"}
	greetingWords = []string{"hi", "hello", "hey", "gm", "yo", "hola", "good morning", "good evening", "thanks", "thank you"}
)

// keyword rules in priority order
var keywordRules = []struct {
	intent   Intent
	keywords []string
}{
	{ExportSeed, []string{"export", "seed", "recovery phrase", "secret phrase", "backup", "mnemonic"}},
	{Swap, []string{"swap", "exchange", "convert", "trade"}},
	{Send, []string{"send", "transfer", "pay"}},
	{Balance, []string{"balance", "how much", "funds", "portfolio"}},
	{History, []string{"history", "transactions", "activity", "recent"}},
	{Receive, []string{"receive", "deposit", "my address", "address", "wallet"}},
	{Help, []string{"help", "menu", "commands", "what can you do"}},
}

// Rules is the deterministic tier. It never calls out.
func (r *Resolver) Rules(text string, sc *SessionContext) Result {
	norm := normalize(text)
	res := Result{Intent: Unknown, Entities: r.extractEntities(text), Source: SourceRules}
	if norm == "" {
		return res
	}

	if sc.flowActive() && matchesAny(norm, cancelWords, true) {
		res.Intent, res.Confidence = Cancel, 1
		return res
	}
	if sc != nil && models.IsConfirmStep(sc.Step) && matchesAny(norm, confirmWords, true) {
		res.Intent, res.Confidence = Confirm, 1
		return res
	}

	keyword := scanKeywords(norm)
	if keyword == Unknown && isGreeting(norm) {
		res.Intent, res.Confidence = Greeting, 0.95
		return res
	}
	if keyword != Unknown {
		res.Intent, res.Confidence = keyword, 0.9
	}
	return res
}

func (r *Resolver) extractEntities(text string) Entities {
	e := Entities{}

	if addr := evmFindPattern.FindString(text); addr != "" {
		e[EntityAddress] = addr
		e[EntityChain] = string(models.FamilyEVM)
	} else {
		for _, cand := range base58Candidates.FindAllString(text, -1) {
			if chain.IsSolanaAddress(cand) {
				e[EntityAddress] = cand
				e[EntityChain] = string(models.FamilySolana)
				break
			}
		}
	}

	if family, ok := chain.FindFamily(text); ok {
		if _, set := e[EntityChain]; !set {
			e[EntityChain] = string(family)
		}
	}

	withoutAddr := text
	if a, ok := e[EntityAddress]; ok {
		withoutAddr = strings.ReplaceAll(text, a, " ")
	}
	if m := amountPattern.FindStringSubmatch(withoutAddr); m != nil {
		if amt, err := decimal.NewFromString(m[1]); err == nil && amt.IsPositive() {
			e[EntityAmount] = amt.String()
		}
	}

	r.extractTokens(withoutAddr, e)
	return e
}

// extractTokens finds up to two token symbols; for "swap X to Y" the first is
// the source and the second the target.
func (r *Resolver) extractTokens(text string, e Entities) {
	families := models.Families
	if c, ok := e[EntityChain]; ok {
		families = []models.ChainFamily{models.ChainFamily(c)}
	}

	var found []string
	for _, word := range strings.Fields(text) {
		word = strings.Trim(word, ".,!?;:")
		for _, f := range families {
			if t, err := r.tokens.Lookup(f, word); err == nil {
				found = append(found, t.Symbol)
				break
			}
		}
		if len(found) == 2 {
			break
		}
	}
	if len(found) > 0 {
		e[EntityToken] = found[0]
	}
	if len(found) > 1 && found[1] != found[0] {
		e[EntityToToken] = found[1]
	}
}

func scanKeywords(norm string) Intent {
	for _, rule := range keywordRules {
		if matchesAny(norm, rule.keywords, false) {
			return rule.intent
		}
	}
	return Unknown
}

// isGreeting reports short chit-chat. Trading keywords are checked first by the caller.
func isGreeting(norm string) bool {
	if len(strings.Fields(norm)) > 5 {
		return false
	}
	return matchesAny(norm, greetingWords, false)
}

// matchesAny checks whole-word (or whole-phrase) matches. With exact set the
// entire message must be one of the words.
func matchesAny(norm string, words []string, exact bool) bool {
	padded := " " + norm + " "
	for _, w := range words {
		if exact {
			if norm == w {
				return true
			}
			continue
		}
		if strings.Contains(padded, " "+w+" ") {
			return true
		}
	}
	return false
}

func normalize(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	text = strings.Map(func(r rune) rune {
		switch r {
		case '.', ',', '!', '?', ';', ':', '"', '\'':
			return ' '
		}
		return r
	}, text)
	return strings.Join(strings.Fields(text), " ")
}
