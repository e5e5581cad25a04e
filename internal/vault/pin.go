package vault

import (
	"errors"
	"strings"
)

const PinLength = 4

var (
	ErrPinLength     = errors.New("PIN must be exactly 4 digits")
	ErrPinRepeated   = errors.New("PIN cannot be four identical digits")
	ErrPinSequential = errors.New("PIN cannot be a sequential run of digits")
)

const digits = "0123456789"

// PinShaped reports whether text is exactly PinLength ASCII digits, i.e.
// whether it could be someone's PIN. Such text never leaves the process.
func PinShaped(text string) bool {
	if len(text) != PinLength {
		return false
	}
	for i := 0; i < len(text); i++ {
		if text[i] < '0' || text[i] > '9' {
			return false
		}
	}
	return true
}

// ValidatePin checks the PIN grammar and returns the rule it breaks, if any.
func ValidatePin(pin string) error {
	if !PinShaped(pin) {
		return ErrPinLength
	}
	if strings.Count(pin, pin[:1]) == PinLength {
		return ErrPinRepeated
	}
	if isSequential(pin) {
		return ErrPinSequential
	}
	return nil
}

// IsValidPin reports whether pin passes ValidatePin.
func IsValidPin(pin string) bool {
	return ValidatePin(pin) == nil
}

// isSequential matches the 7 ascending runs 0123..6789 and their 7 reverses.
func isSequential(pin string) bool {
	if strings.Contains(digits, pin) {
		return true
	}
	return strings.Contains(reverse(digits), pin)
}

func reverse(s string) string {
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}

// SequentialPins lists every rejected sequential run, mostly for tests and help text.
func SequentialPins() []string {
	var runs []string
	rev := reverse(digits)
	for i := 0; i+PinLength <= len(digits); i++ {
		runs = append(runs, digits[i:i+PinLength])
	}
	for i := 0; i+PinLength <= len(rev); i++ {
		runs = append(runs, rev[i:i+PinLength])
	}
	return runs
}
