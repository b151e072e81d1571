package handlers

import (
	"fmt"
	"strings"

	"github.com/wolfman30/school-whatsapp-hub/internal/whatsapp"
)

// phoneDigitsCandidates returns the stored forms a typed phone may match.
// Older WhatsApp accounts in Brazil still carry mobile numbers without the
// ninth digit, so both forms are searched.
func phoneDigitsCandidates(raw string) []string {
	digits := whatsapp.NormalizePhone(raw)
	if digits == "" {
		return nil
	}
	candidates := []string{digits}
	switch {
	case len(digits) == 13 && digits[4] == '9':
		candidates = append(candidates, digits[:4]+digits[5:])
	case len(digits) == 12 && digits[4] >= '6':
		candidates = append(candidates, digits[:4]+"9"+digits[4:])
	}
	return uniqueStrings(candidates)
}

func appendPhoneDigitsFilter(columnExpr string, digits []string, args *[]any, argNum *int) string {
	if len(digits) == 0 {
		return ""
	}
	placeholders := make([]string, 0, len(digits))
	for _, d := range digits {
		placeholders = append(placeholders, fmt.Sprintf("$%d", *argNum))
		*args = append(*args, d)
		*argNum++
	}
	return fmt.Sprintf(" AND %s IN (%s)", columnExpr, strings.Join(placeholders, ","))
}

func uniqueStrings(values []string) []string {
	if len(values) < 2 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
