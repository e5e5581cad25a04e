package intent

import (
	"context"
	"errors"
	"testing"

	"chatwallet/internal/models"
	"chatwallet/internal/oracle"
)

const solAddr = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

type fakeOracle struct {
	reply string
	err   error
	calls int
	last  []oracle.Message
}

func (f *fakeOracle) Classify(ctx context.Context, messages []oracle.Message) (string, error) {
	f.calls++
	f.last = messages
	return f.reply, f.err
}

func TestRules_Keywords(t *testing.T) {
	r := NewResolver(nil, nil)
	tests := []struct {
		text string
		want Intent
	}{
		{"send", Send},
		{"I want to transfer some money", Send},
		{"swap 1 usdc to sol", Swap},
		{"what's my balance?", Balance},
		{"show my history", History},
		{"what is my address", Receive},
		{"export my seed phrase", ExportSeed},
		{"help", Help},
		{"hello!", Greeting},
		{"hey, send 1 eth", Send},
		{"asdf qwerty", Unknown},
		{"", Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := r.Classify(context.Background(), tt.text, nil)
			if got.Intent != tt.want {
				t.Errorf("Classify(%q) = %s, want %s", tt.text, got.Intent, tt.want)
			}
			if got.Entities == nil {
				t.Error("Entities must never be nil")
			}
		})
	}
}

func TestRules_CancelOnlyInsideFlow(t *testing.T) {
	r := NewResolver(nil, nil)

	if got := r.Rules("cancel", nil); got.Intent == Cancel {
		t.Error("Cancel must not be honoured without an active flow")
	}
	if got := r.Rules("cancel", &SessionContext{Step: models.StepIdle}); got.Intent == Cancel {
		t.Error("Cancel must not be honoured at IDLE")
	}
	got := r.Rules("Cancel", &SessionContext{Step: models.StepAmountInput})
	if got.Intent != Cancel || got.Confidence != 1 {
		t.Errorf("Expected CANCEL, got %+v", got)
	}
}

func TestRules_ConfirmOnlyAtConfirmStep(t *testing.T) {
	r := NewResolver(nil, nil)

	if got := r.Rules("yes", &SessionContext{Step: models.StepAmountInput}); got.Intent == Confirm {
		t.Error("Confirm must only be honoured at a confirm step")
	}
	if got := r.Rules("yes", &SessionContext{Step: models.StepConfirm}); got.Intent != Confirm {
		t.Errorf("Expected CONFIRM, got %s", got.Intent)
	}
}

func TestRules_Entities(t *testing.T) {
	r := NewResolver(nil, nil)

	got := r.Rules("send 0.5 sol to "+solAddr, nil)
	if got.Entities[EntityAmount] != "0.5" {
		t.Errorf("Expected amount 0.5, got %q", got.Entities[EntityAmount])
	}
	if got.Entities[EntityAddress] != solAddr {
		t.Errorf("Expected address, got %q", got.Entities[EntityAddress])
	}
	if got.Entities[EntityChain] != string(models.FamilySolana) {
		t.Errorf("Expected SOLANA, got %q", got.Entities[EntityChain])
	}
	if got.Entities[EntityToken] != "SOL" {
		t.Errorf("Expected SOL token, got %q", got.Entities[EntityToken])
	}

	got = r.Rules("pay 0x9858EfFD232B4033E47d90003D41EC34EcaEda94 20", nil)
	if got.Entities[EntityChain] != string(models.FamilyEVM) || got.Entities[EntityAmount] != "20" {
		t.Errorf("Unexpected entities %v", got.Entities)
	}

	got = r.Rules("swap 10 usdc to sol", nil)
	if got.Entities[EntityToken] != "USDC" || got.Entities[EntityToToken] != "SOL" {
		t.Errorf("Unexpected swap tokens %v", got.Entities)
	}

	got = r.Rules("send -3 eth", nil)
	if _, ok := got.Entities[EntityAmount]; ok {
		t.Errorf("Negative amount must not be extracted: %v", got.Entities)
	}
}

func TestClassify_OracleFallback(t *testing.T) {
	o := &fakeOracle{reply: "Sure!\n```json\n{\"intent\": \"balance\", \"entities\": {\"chain\": \"solana\"}, \"confidence\": 0.8}\n```"}
	r := NewResolver(o, nil)

	got := r.Classify(context.Background(), "how am I doing", nil)
	if o.calls != 1 {
		t.Fatalf("Expected one oracle call, got %d", o.calls)
	}
	if got.Intent != Balance || got.Source != SourceOracle || got.Confidence != 0.8 {
		t.Errorf("Unexpected result %+v", got)
	}
	if got.Entities[EntityChain] != string(models.FamilySolana) {
		t.Errorf("Expected chain entity, got %v", got.Entities)
	}
}

func TestClassify_OracleSkippedWhenRulesMatchOrFlowActive(t *testing.T) {
	o := &fakeOracle{reply: `{"intent":"HELP"}`}
	r := NewResolver(o, nil)

	r.Classify(context.Background(), "send", nil)
	r.Classify(context.Background(), "blah", &SessionContext{Step: models.StepAddressInput})
	if o.calls != 0 {
		t.Errorf("Expected no oracle calls, got %d", o.calls)
	}
}

func TestClassify_OracleContextInPrompt(t *testing.T) {
	o := &fakeOracle{reply: `{"intent":"UNKNOWN"}`}
	r := NewResolver(o, nil)

	r.Classify(context.Background(), "hmm", &SessionContext{Step: models.StepIdle, Flow: models.NewSendFlow(models.SendContext{})})
	if len(o.last) != 2 || o.last[0].Role != "system" {
		t.Fatalf("Unexpected messages %+v", o.last)
	}
}

func TestClassify_OracleErrorDegrades(t *testing.T) {
	r := NewResolver(&fakeOracle{err: errors.New("boom")}, nil)
	got := r.Classify(context.Background(), "zzz", nil)
	if got.Intent != Unknown || got.Confidence != 0 || got.Entities == nil {
		t.Errorf("Expected degraded unknown, got %+v", got)
	}
}

func TestParseOracleReply(t *testing.T) {
	r := NewResolver(nil, nil)
	tests := []struct {
		name    string
		content string
		intent  Intent
		conf    float64
		source  string
	}{
		{"plain json", `{"intent":"SEND","confidence":0.9}`, Send, 0.9, SourceOracle},
		{"missing confidence", `{"intent":"HISTORY"}`, History, defaultOracleConfidence, SourceOracle},
		{"confidence clamped", `{"intent":"HELP","confidence":7}`, Help, 1, SourceOracle},
		{"prose around json", `I think {"intent":"RECEIVE","note":"a } in a string"} is right`, Receive, defaultOracleConfidence, SourceOracle},
		{"invalid intent rescans", `{"intent":"TELEPORT"} maybe swap?`, Swap, fallbackOracleConfidence, SourceFallback},
		{"broken json rescans", `{"intent": "SEND"`, Send, fallbackOracleConfidence, SourceFallback},
		{"nothing useful", `no idea`, Unknown, 0, SourceFallback},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.parseOracleReply(tt.content)
			if got.Intent != tt.intent || got.Confidence != tt.conf || got.Source != tt.source {
				t.Errorf("Got %+v, want %s %.1f %s", got, tt.intent, tt.conf, tt.source)
			}
			if got.Entities == nil {
				t.Error("Entities must never be nil")
			}
		})
	}
}

func TestParseOracleReply_ValidatesEntities(t *testing.T) {
	r := NewResolver(nil, nil)
	got := r.parseOracleReply(`{"intent":"SEND","entities":{"chain":"evm","address":"` + solAddr + `","amount":"-1","token":"usdc"}}`)
	if _, ok := got.Entities[EntityAddress]; ok {
		t.Error("Address of the wrong family must be dropped")
	}
	if _, ok := got.Entities[EntityAmount]; ok {
		t.Error("Negative amount must be dropped")
	}
	if got.Entities[EntityToken] != "USDC" {
		t.Errorf("Expected USDC, got %q", got.Entities[EntityToken])
	}
}

func TestClassify_PinShapedTextStaysLocal(t *testing.T) {
	o := &fakeOracle{reply: `{"intent":"HELP"}`}
	r := NewResolver(o, nil)

	for _, text := range []string{"5296", " 0000 "} {
		if got := r.Classify(context.Background(), text, nil); got.Intent != Unknown {
			t.Errorf("Classify(%q) = %s, want UNKNOWN", text, got.Intent)
		}
	}
	if o.calls != 0 {
		t.Errorf("Expected PIN-shaped text to skip the oracle, got %d calls", o.calls)
	}

	// Five digits is not a PIN and may be classified remotely
	r.Classify(context.Background(), "52961", nil)
	if o.calls != 1 {
		t.Errorf("Expected one oracle call for non-PIN text, got %d", o.calls)
	}
}
