package models

import "testing"

func TestParseStep_DisjointVocabularies(t *testing.T) {
	onboarding := []OnboardingStep{StepAwaitingPinChoice, StepAwaitingPin, StepConfirmingPin, StepDisplayingSeed, StepCompleted}
	flowSteps := []MainStep{StepIdle, StepChainSelect, StepTokenSelect, StepAddressInput, StepAmountInput, StepConfirm, StepPinEntry}

	for _, s := range onboarding {
		got, err := ParseStep(s.String())
		if err != nil {
			t.Fatalf("ParseStep(%s) failed: %v", s, err)
		}
		if _, ok := got.(OnboardingStep); !ok {
			t.Errorf("Expected %s to parse as OnboardingStep, got %T", s, got)
		}
	}
	for _, s := range flowSteps {
		got, err := ParseStep(s.String())
		if err != nil {
			t.Fatalf("ParseStep(%s) failed: %v", s, err)
		}
		if _, ok := got.(MainStep); !ok {
			t.Errorf("Expected %s to parse as MainStep, got %T", s, got)
		}
	}

	if _, err := ParseStep("EXPIRED"); err == nil {
		t.Error("Expected unknown step to fail")
	}
}

func TestIsConfirmStep(t *testing.T) {
	if !IsConfirmStep(StepConfirm) {
		t.Error("Expected CONFIRM to be a confirm step")
	}
	if !IsConfirmStep(StepConfirmingPin) {
		t.Error("Expected CONFIRMING_PIN to be a confirm step")
	}
	if IsConfirmStep(StepPinEntry) || IsConfirmStep(nil) {
		t.Error("Expected PIN_ENTRY and nil not to be confirm steps")
	}
}

func TestOnboardingRank_Monotonic(t *testing.T) {
	sequence := []OnboardingStep{StepAwaitingPinChoice, StepAwaitingPin, StepConfirmingPin, StepDisplayingSeed, StepCompleted}
	for i := 1; i < len(sequence); i++ {
		if sequence[i].Rank() <= sequence[i-1].Rank() {
			t.Errorf("Expected %s to rank above %s", sequence[i], sequence[i-1])
		}
	}
}

func TestFlowContextMerge(t *testing.T) {
	base := NewSendFlow(SendContext{Family: FamilyEVM, Amount: "1"})

	t.Run("same kind accumulates", func(t *testing.T) {
		got := base.Merge(NewSendFlow(SendContext{ToAddress: "0xabc"}))
		if got.Send.Family != FamilyEVM || got.Send.Amount != "1" || got.Send.ToAddress != "0xabc" {
			t.Errorf("Unexpected merge result: %+v", got.Send)
		}
	})

	t.Run("same kind overwrites", func(t *testing.T) {
		got := base.Merge(NewSendFlow(SendContext{Amount: "2"}))
		if got.Send.Amount != "2" {
			t.Errorf("Expected amount 2, got %s", got.Send.Amount)
		}
	})

	t.Run("other kind replaces", func(t *testing.T) {
		got := base.Merge(NewSwapFlow(SwapContext{ToToken: "USDC"}))
		if got.Kind != FlowSwap || got.Send != nil || got.Swap.ToToken != "USDC" {
			t.Errorf("Expected swap context only, got %+v", got)
		}
	})

	t.Run("empty patch is a no-op", func(t *testing.T) {
		got := base.Merge(FlowContext{})
		if got.Kind != FlowSend || got.Send.Amount != "1" {
			t.Errorf("Expected unchanged context, got %+v", got)
		}
	})

	t.Run("merge does not alias the receiver", func(t *testing.T) {
		got := base.Merge(NewSendFlow(SendContext{Amount: "3"}))
		got.Send.Family = FamilySolana
		if base.Send.Family != FamilyEVM || base.Send.Amount != "1" {
			t.Errorf("Receiver was mutated: %+v", base.Send)
		}
	})

	t.Run("choosing the family drops the request", func(t *testing.T) {
		pending := NewSendFlow(SendContext{Request: &SendRequest{Token: "USDC", Amount: "10"}})
		kept := pending.Merge(NewSendFlow(SendContext{ToAddress: "0xabc"}))
		if kept.Send.Request == nil || kept.Send.Request.Token != "USDC" {
			t.Errorf("Expected request kept until a family is set, got %+v", kept.Send)
		}
		got := pending.Merge(NewSendFlow(SendContext{Family: FamilyEVM, TokenSymbol: "USDC", Amount: "10"}))
		if got.Send.Request != nil {
			t.Errorf("Expected request dropped, got %+v", got.Send.Request)
		}
		if pending.Send.Request == nil {
			t.Error("Receiver request was cleared")
		}
	})
}

func TestFlowContextEncodeDecode(t *testing.T) {
	in := NewSwapFlow(SwapContext{Family: FamilySolana, FromToken: "SOL", ToToken: "USDC", Amount: "0.25"})
	raw, err := in.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	out, err := DecodeFlowContext(raw)
	if err != nil {
		t.Fatalf("DecodeFlowContext failed: %v", err)
	}
	if out.Kind != FlowSwap || *out.Swap != *in.Swap {
		t.Errorf("Round trip mismatch: %+v", out)
	}

	empty, err := DecodeFlowContext("")
	if err != nil || empty.Kind != FlowNone {
		t.Errorf("Expected empty context, got %+v, %v", empty, err)
	}
}
