package whatsapp

import "strings"

const (
	// CountryCode is prefixed to every stored phone that lacks it.
	CountryCode = "55"

	userServer  = "@s.whatsapp.net"
	groupServer = "@g.us"
)

// NormalizePhone reduces a JID or a raw phone number to the canonical lead
// key: digits only, no trunk zero, Brazilian country code first.
// It returns "" when the input carries no digits. Applying it twice yields
// the same value.
func NormalizePhone(value string) string {
	value = strings.TrimSpace(value)
	if at := strings.IndexByte(value, '@'); at >= 0 {
		value = value[:at]
	}
	// multi-device JIDs look like 5521987654321:12@s.whatsapp.net
	if colon := strings.IndexByte(value, ':'); colon >= 0 {
		value = value[:colon]
	}
	digits := sanitizePhone(value)
	if digits == "" {
		return ""
	}
	digits = strings.TrimPrefix(digits, "0")
	if digits == "" {
		return ""
	}
	if !strings.HasPrefix(digits, CountryCode) {
		digits = CountryCode + digits
	}
	return digits
}

// JIDFromPhone builds the user JID for a phone number.
func JIDFromPhone(phone string) string {
	normalized := NormalizePhone(phone)
	if normalized == "" {
		return ""
	}
	return normalized + userServer
}

// IsGroupJID reports whether the JID addresses a group chat.
func IsGroupJID(jid string) bool {
	return strings.HasSuffix(strings.TrimSpace(jid), groupServer)
}

func sanitizePhone(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
