package intent

import (
	"encoding/json"
	"fmt"
	"strings"

	"chatwallet/internal/chain"
	"chatwallet/internal/models"

	"github.com/shopspring/decimal"
)

const (
	defaultOracleConfidence  = 0.7
	fallbackOracleConfidence = 0.3
)

type oracleReply struct {
	Intent     string         `json:"intent"`
	Entities   map[string]any `json:"entities"`
	Confidence *float64       `json:"confidence"`
}

// parseOracleReply decodes the first JSON object in content. Anything it
// cannot decode is rescanned for keywords at low confidence.
func (r *Resolver) parseOracleReply(content string) Result {
	raw, ok := firstJSONObject(stripFences(content))
	if ok {
		var reply oracleReply
		if err := json.Unmarshal([]byte(raw), &reply); err == nil {
			if in, valid := ParseIntent(reply.Intent); valid {
				conf := defaultOracleConfidence
				if reply.Confidence != nil {
					conf = clamp(*reply.Confidence)
				}
				return Result{
					Intent:     in,
					Entities:   r.validateEntities(reply.Entities),
					Confidence: conf,
					Source:     SourceOracle,
				}
			}
		}
	}

	res := Result{Intent: Unknown, Entities: Entities{}, Source: SourceFallback}
	if in := scanKeywords(normalize(content)); in != Unknown {
		res.Intent, res.Confidence = in, fallbackOracleConfidence
	}
	return res
}

// validateEntities keeps only values that pass the same grammar as the rules.
func (r *Resolver) validateEntities(in map[string]any) Entities {
	out := Entities{}
	str := func(k string) string {
		v, ok := in[k]
		if !ok || v == nil {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(v))
	}

	if f, ok := chain.ParseFamily(str(EntityChain)); ok {
		out[EntityChain] = string(f)
	}
	if addr := str(EntityAddress); addr != "" {
		if f, ok := chain.DetectFamily(addr); ok {
			if c, set := out[EntityChain]; !set || c == string(f) {
				out[EntityAddress] = addr
				out[EntityChain] = string(f)
			}
		}
	}
	if amt, err := decimal.NewFromString(str(EntityAmount)); err == nil && amt.IsPositive() {
		out[EntityAmount] = amt.String()
	}

	families := models.Families
	if c, ok := out[EntityChain]; ok {
		families = []models.ChainFamily{models.ChainFamily(c)}
	}
	for _, key := range []string{EntityToken, EntityToToken} {
		sym := str(key)
		if sym == "" {
			continue
		}
		for _, f := range families {
			if t, err := r.tokens.Lookup(f, sym); err == nil {
				out[key] = t.Symbol
				break
			}
		}
	}
	return out
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	if end := strings.LastIndex(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}

// firstJSONObject returns the first balanced {...} in s, honouring strings.
func firstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func clamp(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
