package list

import (
	"strings"

	"github.com/migadu/ezlist/helpers"
)

// Command is the result of matching a message against the configured
// command vocabulary.
type Command int

const (
	CommandNone Command = iota
	CommandSubscribe
	CommandUnsubscribe
)

// Matcher recognizes subscription commands in normalized message text.
// The vocabulary is configuration, not classifier logic; injecting the
// matcher keeps token lists and languages out of the core.
type Matcher interface {
	Match(subject, body string) Command
}

// TokenMatcher matches a command when the whole subject, or any single
// line of the body, equals one of the configured tokens (case-insensitive,
// trimmed). Subscribe tokens are checked before unsubscribe tokens, so an
// overlapping configuration resolves deterministically to the first match.
type TokenMatcher struct {
	Subscribe   []string
	Unsubscribe []string
}

func (m *TokenMatcher) Match(subject, body string) Command {
	candidates := []string{normalizeToken(subject)}
	for _, line := range strings.Split(body, "\n") {
		candidates = append(candidates, normalizeToken(line))
	}

	for _, c := range candidates {
		if c == "" {
			continue
		}
		for _, token := range m.Subscribe {
			if c == normalizeToken(token) {
				return CommandSubscribe
			}
		}
		for _, token := range m.Unsubscribe {
			if c == normalizeToken(token) {
				return CommandUnsubscribe
			}
		}
	}
	return CommandNone
}

func normalizeToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Classifier decides what to do with one inbound message. It is a pure
// function of the message content and the list configuration; it performs
// no I/O.
type Classifier struct {
	listAddress string
	manage      bool
	matcher     Matcher
}

// NewClassifier creates a classifier for the given list address.
// When manage is false, subscription commands are never recognized and
// everything from a non-self sender is a post.
func NewClassifier(listAddress string, manage bool, matcher Matcher) *Classifier {
	return &Classifier{
		listAddress: helpers.NormalizeAddress(listAddress),
		manage:      manage,
		matcher:     matcher,
	}
}

// Classify assigns one of Subscribe, Unsubscribe, Post or Ignore to the
// message.
//
// Ignore wins in three cases: the sender is missing or malformed (nothing
// can be safely subscribed or forwarded), the sender is the list itself
// (the mail-loop guard), or the message was not addressed to the list at
// all (stray mail in a shared mailbox).
func (c *Classifier) Classify(msg *InboundMessage) Classification {
	if !helpers.ValidAddress(msg.Sender) {
		return Ignore
	}
	if helpers.NormalizeAddress(msg.Sender) == c.listAddress {
		return Ignore
	}
	if !c.directedAtList(msg) {
		return Ignore
	}

	if c.manage && c.matcher != nil {
		switch c.matcher.Match(msg.Subject, msg.Body) {
		case CommandSubscribe:
			return Subscribe
		case CommandUnsubscribe:
			return Unsubscribe
		}
	}

	return Post
}

func (c *Classifier) directedAtList(msg *InboundMessage) bool {
	for _, rcpt := range msg.Recipients {
		if helpers.NormalizeAddress(rcpt) == c.listAddress {
			return true
		}
	}
	return false
}
