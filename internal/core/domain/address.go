package domain

import "strings"

// NormalizeAddress canonicalizes a wallet address to lower-case,
// 0x-prefixed form so projection lookups and event comparisons agree.
func NormalizeAddress(addr string) string {
	a := strings.ToLower(strings.TrimSpace(addr))
	if a == "" {
		return ""
	}
	if !strings.HasPrefix(a, "0x") {
		a = "0x" + a
	}
	return a
}
