package mailparser

import (
	"regexp"
	"strings"
)

var angleAddress = regexp.MustCompile(`<(.+?)>`)

// NormalizeAddress extracts the bare address from a "Display Name <addr>"
// fragment. Anything without angle brackets comes back trimmed but otherwise
// untouched; no syntax validation happens here.
func NormalizeAddress(raw string) string {
	raw = cleanText(raw)
	if match := angleAddress.FindStringSubmatch(raw); match != nil {
		return match[1]
	}
	return strings.TrimSpace(raw)
}

// SplitAddresses splits a To/Cc header on commas and normalizes each entry.
// Empty entries are dropped.
func SplitAddresses(header string) []string {
	addresses := []string{}
	if strings.TrimSpace(header) == "" {
		return addresses
	}

	for _, entry := range strings.Split(header, ",") {
		if addr := NormalizeAddress(strings.TrimSpace(entry)); addr != "" {
			addresses = append(addresses, addr)
		}
	}
	return addresses
}
