package models

import "strings"

// MaskHandle keeps the last four characters of a handle for log fields.
func MaskHandle(handle string) string {
	handle = strings.TrimPrefix(handle, "whatsapp:")
	if len(handle) <= 4 {
		return strings.Repeat("*", len(handle))
	}
	return strings.Repeat("*", len(handle)-4) + handle[len(handle)-4:]
}
