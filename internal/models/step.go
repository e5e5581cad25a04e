package models

import (
	"fmt"
	"strings"
)

// ConversationStep is either an OnboardingStep or a MainStep. The two step
// vocabularies are disjoint so a stored name always parses back to one of them.
type ConversationStep interface {
	String() string
	conversationStep()
}

// OnboardingStep is a step of the first-contact onboarding flow
type OnboardingStep string

const (
	StepAwaitingPinChoice OnboardingStep = "AWAITING_PIN_CHOICE"
	StepAwaitingPin       OnboardingStep = "AWAITING_PIN"
	StepConfirmingPin     OnboardingStep = "CONFIRMING_PIN"
	StepDisplayingSeed    OnboardingStep = "DISPLAYING_SEED"
	StepCompleted         OnboardingStep = "COMPLETED"
)

// MainStep is a step of the post-onboarding transaction flows
type MainStep string

const (
	StepIdle         MainStep = "IDLE"
	StepChainSelect  MainStep = "CHAIN_SELECT"
	StepTokenSelect  MainStep = "TOKEN_SELECT"
	StepAddressInput MainStep = "ADDRESS_INPUT"
	StepAmountInput  MainStep = "AMOUNT_INPUT"
	StepConfirm      MainStep = "CONFIRM"
	StepPinEntry     MainStep = "PIN_ENTRY"
)

var onboardingRank = map[OnboardingStep]int{
	StepAwaitingPinChoice: 0,
	StepAwaitingPin:       1,
	StepConfirmingPin:     2,
	StepDisplayingSeed:    3,
	StepCompleted:         4,
}

var mainSteps = map[MainStep]struct{}{
	StepIdle:         {},
	StepChainSelect:  {},
	StepTokenSelect:  {},
	StepAddressInput: {},
	StepAmountInput:  {},
	StepConfirm:      {},
	StepPinEntry:     {},
}

func (s OnboardingStep) String() string  { return string(s) }
func (OnboardingStep) conversationStep() {}

// Rank orders onboarding steps; the account's step never moves to a lower rank.
func (s OnboardingStep) Rank() int {
	if r, ok := onboardingRank[s]; ok {
		return r
	}
	return -1
}

func (s MainStep) String() string  { return string(s) }
func (MainStep) conversationStep() {}

// IsConfirmStep reports whether confirm keywords are honored at this step
func IsConfirmStep(step ConversationStep) bool {
	return step != nil && strings.Contains(step.String(), "CONFIRM")
}

// IsIdle reports whether no flow is in progress at this step
func IsIdle(step ConversationStep) bool {
	if step == nil {
		return true
	}
	s, ok := step.(MainStep)
	return ok && s == StepIdle
}

// ParseStep maps a persisted step name back to its typed value
func ParseStep(name string) (ConversationStep, error) {
	if _, ok := onboardingRank[OnboardingStep(name)]; ok {
		return OnboardingStep(name), nil
	}
	if _, ok := mainSteps[MainStep(name)]; ok {
		return MainStep(name), nil
	}
	return nil, fmt.Errorf("unknown conversation step %q", name)
}

// ParseOnboardingStep parses a step stored on the account record
func ParseOnboardingStep(name string) (OnboardingStep, error) {
	if _, ok := onboardingRank[OnboardingStep(name)]; ok {
		return OnboardingStep(name), nil
	}
	return "", fmt.Errorf("unknown onboarding step %q", name)
}
