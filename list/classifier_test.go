package list

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestClassifier(manage bool) *Classifier {
	return NewClassifier("list@example.com", manage, &TokenMatcher{
		Subscribe:   []string{"subscribe"},
		Unsubscribe: []string{"unsubscribe"},
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		manage   bool
		msg      InboundMessage
		expected Classification
	}{
		{
			name:   "subscribe in subject",
			manage: true,
			msg: InboundMessage{
				Sender:     "alice@example.com",
				Recipients: []string{"list@example.com"},
				Subject:    "subscribe",
			},
			expected: Subscribe,
		},
		{
			name:   "subscribe case insensitive with whitespace",
			manage: true,
			msg: InboundMessage{
				Sender:     "alice@example.com",
				Recipients: []string{"list@example.com"},
				Subject:    "  SUBSCRIBE ",
			},
			expected: Subscribe,
		},
		{
			name:   "unsubscribe in body line",
			manage: true,
			msg: InboundMessage{
				Sender:     "alice@example.com",
				Recipients: []string{"list@example.com"},
				Subject:    "please remove me",
				Body:       "hi,\nunsubscribe\nthanks",
			},
			expected: Unsubscribe,
		},
		{
			name:   "token embedded in sentence is not a command",
			manage: true,
			msg: InboundMessage{
				Sender:     "alice@example.com",
				Recipients: []string{"list@example.com"},
				Subject:    "how do I subscribe to this?",
				Body:       "asking for a friend",
			},
			expected: Post,
		},
		{
			name:   "regular post",
			manage: true,
			msg: InboundMessage{
				Sender:     "alice@example.com",
				Recipients: []string{"list@example.com"},
				Subject:    "meeting notes",
				Body:       "see below",
			},
			expected: Post,
		},
		{
			name:   "list in cc is still directed at the list",
			manage: true,
			msg: InboundMessage{
				Sender:     "alice@example.com",
				Recipients: []string{"bob@example.com", "list@example.com"},
				Subject:    "meeting notes",
			},
			expected: Post,
		},
		{
			name:   "management disabled turns commands into posts",
			manage: false,
			msg: InboundMessage{
				Sender:     "alice@example.com",
				Recipients: []string{"list@example.com"},
				Subject:    "subscribe",
			},
			expected: Post,
		},
		{
			name:   "mail loop guard",
			manage: true,
			msg: InboundMessage{
				Sender:     "list@example.com",
				Recipients: []string{"list@example.com"},
				Subject:    "meeting notes",
			},
			expected: Ignore,
		},
		{
			name:   "mail loop guard is case insensitive",
			manage: true,
			msg: InboundMessage{
				Sender:     "List@Example.COM",
				Recipients: []string{"list@example.com"},
				Subject:    "subscribe",
			},
			expected: Ignore,
		},
		{
			name:   "missing sender",
			manage: true,
			msg: InboundMessage{
				Recipients: []string{"list@example.com"},
				Subject:    "subscribe",
			},
			expected: Ignore,
		},
		{
			name:   "malformed sender",
			manage: true,
			msg: InboundMessage{
				Sender:     "not-an-address",
				Recipients: []string{"list@example.com"},
				Subject:    "subscribe",
			},
			expected: Ignore,
		},
		{
			name:   "not addressed to the list",
			manage: true,
			msg: InboundMessage{
				Sender:     "alice@example.com",
				Recipients: []string{"someone-else@example.com"},
				Subject:    "meeting notes",
			},
			expected: Ignore,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClassifier(tt.manage)
			assert.Equal(t, tt.expected, c.Classify(&tt.msg))
		})
	}
}

func TestTokenMatcherSubscribeWinsOverlap(t *testing.T) {
	// With an overlapping vocabulary the subscribe list is checked first.
	m := &TokenMatcher{
		Subscribe:   []string{"toggle"},
		Unsubscribe: []string{"toggle"},
	}
	assert.Equal(t, CommandSubscribe, m.Match("toggle", ""))
}

func TestTokenMatcherMultipleTokens(t *testing.T) {
	m := &TokenMatcher{
		Subscribe:   []string{"subscribe", "join"},
		Unsubscribe: []string{"unsubscribe", "leave"},
	}
	assert.Equal(t, CommandSubscribe, m.Match("join", ""))
	assert.Equal(t, CommandUnsubscribe, m.Match("", "leave"))
	assert.Equal(t, CommandNone, m.Match("joining soon", ""))
}
