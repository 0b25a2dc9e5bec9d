package helpers

import (
	"regexp"
	"strings"
)

// Deliberately conservative: fancy quoted local parts and comments are not
// worth supporting on a mailing list address.
var addressRegexp = regexp.MustCompile(`[\w.%+-]+@[\w.%+-]+`)

// NormalizeAddress returns the canonical form of an email address:
// whitespace-trimmed and case-folded. Registry identity and all address
// comparisons go through this.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// ExtractAddresses pulls all email addresses out of a raw header value
// ("Name <a@x.com>, b@y.com") and returns them normalized, in order.
func ExtractAddresses(headerValue string) []string {
	if headerValue == "" {
		return nil
	}
	matches := addressRegexp.FindAllString(headerValue, -1)
	addrs := make([]string, 0, len(matches))
	for _, m := range matches {
		addrs = append(addrs, NormalizeAddress(m))
	}
	return addrs
}

// FirstAddress returns the first email address found in a raw header value.
func FirstAddress(headerValue string) (string, bool) {
	addrs := ExtractAddresses(headerValue)
	if len(addrs) == 0 {
		return "", false
	}
	return addrs[0], true
}

// ValidAddress reports whether the string looks like a single deliverable
// email address after normalization.
func ValidAddress(address string) bool {
	address = NormalizeAddress(address)
	return addressRegexp.FindString(address) == address && address != ""
}
