package helpers

import "strings"

// CleanSubject removes leading reply/forward prefixes ("Re:", "Fwd:", "FW:",
// including counted forms like "Re[2]:") while preserving the case of the
// remaining text. Prefixes are stripped repeatedly so chains like
// "Re: Fwd: Re: hello" reduce to "hello".
func CleanSubject(subject string) string {
	if subject == "" {
		return ""
	}

	changed := true
	for changed {
		changed = false
		old := subject

		subject = strings.TrimSpace(subject)
		subject = removeReplyPrefix(subject)
		subject = removeForwardPrefix(subject)

		if old != subject {
			changed = true
		}
	}

	return strings.TrimSpace(subject)
}

// removeReplyPrefix removes reply prefixes like "Re:", "RE:", "Re[2]:", etc.
func removeReplyPrefix(s string) string {
	s = strings.TrimSpace(s)
	upper := strings.ToUpper(s)

	if strings.HasPrefix(upper, "RE:") {
		return strings.TrimSpace(s[3:])
	}

	// "Re[N]:" or "Re(N):" style prefixes
	if strings.HasPrefix(upper, "RE[") || strings.HasPrefix(upper, "RE(") {
		closeChar := byte(']')
		if upper[2] == '(' {
			closeChar = ')'
		}
		closeIdx := strings.IndexByte(upper[3:], closeChar)
		if closeIdx >= 0 {
			afterBracket := s[3+closeIdx+1:]
			if strings.HasPrefix(afterBracket, ":") {
				return strings.TrimSpace(afterBracket[1:])
			}
		}
	}

	return s
}

// removeForwardPrefix removes forward prefixes like "Fwd:", "FW:", "Forward:", etc.
func removeForwardPrefix(s string) string {
	s = strings.TrimSpace(s)
	upper := strings.ToUpper(s)

	prefixes := []string{
		"FWD:", "FW:", "FORWARD:",
	}

	for _, prefix := range prefixes {
		if strings.HasPrefix(upper, prefix) {
			return strings.TrimSpace(s[len(prefix):])
		}
	}

	return s
}

// PrefixSubject prepends the list's subject prefix to a cleaned subject.
// Prefixing is idempotent: a subject that already carries the prefix (after
// reply/forward chains are stripped) is returned unchanged, so reprocessing
// a forwarded message never double-prefixes.
func PrefixSubject(prefix, subject string) string {
	subject = CleanSubject(subject)
	if prefix == "" {
		return subject
	}
	if strings.HasPrefix(subject, prefix) {
		return subject
	}
	if subject == "" {
		return prefix + " (no subject)"
	}
	return prefix + " " + subject
}
