package flow

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"chatwallet/internal/models"
)

// User-facing text. Nothing here may include internal errors or identifiers.
const (
	replyWelcome        = "Welcome to your chat wallet! Would you like to protect it with a 4-digit PIN? Reply YES or NO."
	replyPinChoiceRetry = "Please reply YES to set a PIN or NO to continue without one."
	replyChoosePin      = "Choose a 4-digit PIN. Avoid repeated (1111) or sequential (1234) digits."
	replyConfirmPin     = "Please enter the same PIN again to confirm."
	replyPinMismatch    = "The PINs did not match. Choose a 4-digit PIN again."
	replySeedAckRetry   = "Reply DONE once you have written down your recovery phrase."
	replyOnboarded      = "Your wallet is ready! " + replyHelp

	replyHelp             = "You can say: SEND, SWAP, BALANCE, RECEIVE, HISTORY or EXPORT SEED. Say CANCEL to stop any flow."
	replyGreeting         = "Hi! How can I help? " + replyHelp
	replyUnknown          = "Sorry, I didn't get that. " + replyHelp
	replyCancelled        = "Cancelled. Nothing was sent."
	replyNothingToConfirm = "There is nothing to confirm right now."
	replyNothingToCancel  = "There is nothing to cancel right now."
	replyConfirmRetry     = "Reply YES to confirm or CANCEL to stop."
	replyEnterPin         = "Enter your PIN to authorize."
	replyPinFormat        = "Your PIN is 4 digits. Please enter it again."
	replyAlreadyHandled   = "That request was already processed."
	replyNoHistory        = "You have no transactions yet."
	replyEnterAddress     = "Paste the destination address."
	replyTryLater         = "The service is temporarily unavailable. Please try again in a moment."
	replyFailed           = "The transaction could not be completed. Nothing was sent. Please try again."
	replyGenericError     = "Something went wrong. Please start again."
	replyPinOutsideFlow   = "Your session expired, so that PIN was not used. Please start again."
)

func chooseChain(families []models.ChainFamily) string {
	names := make([]string, len(families))
	for i, f := range families {
		names[i] = familyName(f)
	}
	return "Which chain? Reply " + strings.Join(names, " or ") + "."
}

func chooseTokens(symbols []string) string {
	return fmt.Sprintf("Which tokens? Reply like \"%s to %s\". Available: %s.",
		first(symbols, 0), first(symbols, 1), strings.Join(symbols, ", "))
}

func enterAmount(symbol string) string {
	return fmt.Sprintf("How much %s?", symbol)
}

func invalidAddress(f models.ChainFamily) string {
	return fmt.Sprintf("That is not a valid %s address. Please paste it again.", familyName(f))
}

func invalidAmount(reason string) string {
	return fmt.Sprintf("Invalid amount: %s. Please enter a positive number.", reason)
}

func insufficientBalance(balance, symbol string) string {
	return fmt.Sprintf("Insufficient balance: you have %s %s. Please enter a smaller amount.", balance, symbol)
}

func invalidPinChoice(err error) string {
	return fmt.Sprintf("That PIN can't be used: %s. %s", err, replyChoosePin)
}

func showSeed(mnemonic string, pinless bool) string {
	var b strings.Builder
	b.WriteString("Your recovery phrase is below. Write it down and never share it:\n\n")
	b.WriteString(mnemonic)
	b.WriteString("\n\n")
	if pinless {
		b.WriteString("Note: without a PIN your wallet is protected only by access to this chat (low-security mode).\n")
	}
	b.WriteString("Reply DONE once saved.")
	return b.String()
}

func exportSeed(mnemonic string, pinless bool) string {
	s := "Your recovery phrase:\n\n" + mnemonic + "\n\nDelete this message once saved."
	if pinless {
		s += " This account has no PIN (low-security mode)."
	}
	return s
}

func confirmSend(c *models.SendContext, toLabel string) string {
	return fmt.Sprintf("Send %s %s on %s to %s? Reply YES to confirm or CANCEL.",
		c.Amount, c.TokenSymbol, familyName(c.Family), toLabel)
}

func confirmSwap(c *models.SwapContext) string {
	return fmt.Sprintf("Swap %s %s for %s on %s? Reply YES to confirm or CANCEL.",
		c.Amount, c.FromToken, c.ToToken, familyName(c.Family))
}

func wrongPin(remaining int) string {
	if remaining == 1 {
		return "Wrong PIN. 1 attempt left before your account is locked."
	}
	return fmt.Sprintf("Wrong PIN. %d attempts left.", remaining)
}

func lockedReply(d time.Duration) string {
	minutes := int(math.Ceil(d.Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	unit := "minutes"
	if minutes == 1 {
		unit = "minute"
	}
	return fmt.Sprintf("Too many wrong PINs. Your account is locked for %d %s.", minutes, unit)
}

func submitted(verb, hash string) string {
	return fmt.Sprintf("%s submitted! Transaction: %s", verb, hash)
}

func pendingUnknown(hash string) string {
	return fmt.Sprintf("Your transaction was signed but the network did not confirm receipt yet. "+
		"We will keep checking. Transaction: %s", hash)
}

func receiveAddresses(wallets []models.Wallet) string {
	var b strings.Builder
	b.WriteString("Your addresses:")
	for _, w := range wallets {
		fmt.Fprintf(&b, "\n%s: %s", familyName(w.Family), w.Address)
	}
	return b.String()
}

func historyLines(records []models.TransactionRecord) string {
	var b strings.Builder
	b.WriteString("Recent transactions:")
	for _, r := range records {
		fmt.Fprintf(&b, "\n%s %s %s %s on %s (%s) %s",
			r.CreatedAt.Format("Jan 2 15:04"), r.Type, r.Amount.String(), r.TokenSymbol,
			familyName(r.Family), r.Status, shortHash(r.Hash))
	}
	return b.String()
}

type balanceLine struct {
	family models.ChainFamily
	amount string
	symbol string
	err    error
}

func balances(lines []balanceLine) string {
	var b strings.Builder
	b.WriteString("Your balances:")
	for _, l := range lines {
		if l.err != nil {
			fmt.Fprintf(&b, "\n%s: unavailable right now", familyName(l.family))
			continue
		}
		fmt.Fprintf(&b, "\n%s: %s %s", familyName(l.family), l.amount, l.symbol)
	}
	return b.String()
}

// replyForError maps a terminating error to a sanitized reply.
func replyForError(err error) string {
	var lockedErr *LockedError
	switch {
	case errors.As(err, &lockedErr):
		return lockedReply(lockedErr.Remaining)
	case errors.Is(err, ErrUpstreamUnavailable):
		return replyTryLater
	case errors.Is(err, ErrTransactionFailed):
		return replyFailed
	case errors.Is(err, ErrInsufficientBalance):
		return "Insufficient balance. Nothing was sent."
	}
	return replyGenericError
}

// userReason strips the sentinel prefix from a validation error.
func userReason(err error) string {
	return strings.TrimPrefix(err.Error(), ErrValidation.Error()+": ")
}

func familyName(f models.ChainFamily) string {
	switch f {
	case models.FamilyEVM:
		return "Ethereum"
	case models.FamilySolana:
		return "Solana"
	}
	return string(f)
}

func shortHash(h string) string {
	if len(h) <= 14 {
		return h
	}
	return h[:8] + "..." + h[len(h)-6:]
}

func shortAddress(a string) string { return shortHash(a) }

func first(s []string, i int) string {
	if i < len(s) {
		return s[i]
	}
	return "?"
}
