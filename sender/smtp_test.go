package sender

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"

	"github.com/emersion/go-smtp"
	"github.com/migadu/ezlist/config"
	"github.com/migadu/ezlist/consts"
	"github.com/migadu/ezlist/list"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPermanentError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		permanent bool
	}{
		{
			name:      "nil",
			err:       nil,
			permanent: false,
		},
		{
			name:      "plain error",
			err:       fmt.Errorf("connection reset"),
			permanent: false,
		},
		{
			name:      "network error",
			err:       &net.OpError{Op: "dial", Err: fmt.Errorf("refused")},
			permanent: false,
		},
		{
			name:      "smtp 5xx",
			err:       &smtp.SMTPError{Code: 550, Message: "no such user"},
			permanent: true,
		},
		{
			name:      "smtp 4xx",
			err:       &smtp.SMTPError{Code: 451, Message: "try again later"},
			permanent: false,
		},
		{
			name:      "wrapped permanent delivery error",
			err:       fmt.Errorf("sending: %w", &DeliveryError{Err: fmt.Errorf("rejected"), Permanent: true}),
			permanent: true,
		},
		{
			name:      "wrapped temporary delivery error",
			err:       fmt.Errorf("sending: %w", &DeliveryError{Err: fmt.Errorf("greylisted"), Permanent: false}),
			permanent: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.permanent, IsPermanentError(tt.err))
		})
	}
}

func TestDeliveryErrorMessage(t *testing.T) {
	perm := &DeliveryError{Err: fmt.Errorf("rejected"), Permanent: true}
	assert.Contains(t, perm.Error(), "permanent")

	temp := &DeliveryError{Err: fmt.Errorf("greylisted"), Permanent: false}
	assert.Contains(t, temp.Error(), "temporary")
}

func TestDeliveryErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("sending: %w", &DeliveryError{Err: fmt.Errorf("rejected"), Permanent: true})
	assert.True(t, errors.Is(err, consts.ErrDeliveryFailed))
	assert.False(t, errors.Is(fmt.Errorf("other"), consts.ErrDeliveryFailed))
}

func newTestSender() *SMTPSender {
	return New(config.SMTPConfig{
		Addr:       "smtp.example.com:465",
		HELODomain: "example.com",
	}, "list@example.com")
}

func TestComposeForwardedPost(t *testing.T) {
	s := newTestSender()

	raw, err := s.compose(&list.OutboundMessage{
		From:       "alice@example.com",
		Recipients: []string{"bob@example.com", "carol@example.com"},
		Subject:    "[List] meeting notes",
		Body:       "see below\n",
		InReplyTo:  "orig-id@example.com",
		Post:       true,
	})
	require.NoError(t, err)

	msg := string(raw)
	headers, body, found := strings.Cut(msg, "\r\n\r\n")
	require.True(t, found)

	assert.Contains(t, headers, "From: <alice@example.com>")
	assert.Contains(t, headers, "To: <list@example.com>")
	assert.Contains(t, headers, "Reply-To: <list@example.com>")
	assert.Contains(t, headers, "Subject: [List] meeting notes")
	assert.Contains(t, headers, "List-Post: <mailto:list@example.com>")
	assert.Contains(t, headers, "List-Id: <list.example.com>")
	assert.Contains(t, headers, "In-Reply-To: <orig-id@example.com>")
	assert.Contains(t, headers, "Message-Id: <")
	assert.Contains(t, headers, "@example.com>")
	assert.Contains(t, body, "see below")

	// Fan-out recipients ride the envelope, never the headers.
	assert.NotContains(t, headers, "bob@example.com")
	assert.NotContains(t, headers, "carol@example.com")
}

func TestComposeConfirmationReply(t *testing.T) {
	s := newTestSender()

	raw, err := s.compose(&list.OutboundMessage{
		From:       "list@example.com",
		Recipients: []string{"alice@example.com"},
		Subject:    "[List] Welcome",
		Body:       "you are subscribed\n",
	})
	require.NoError(t, err)

	msg := string(raw)
	assert.Contains(t, msg, "From: <list@example.com>")
	assert.Contains(t, msg, "To: <alice@example.com>")
	assert.Contains(t, msg, "Subject: [List] Welcome")
	assert.NotContains(t, msg, "List-Post:")
	assert.NotContains(t, msg, "List-Id:")
	assert.NotContains(t, msg, "Reply-To:")
}

func TestComposeGeneratesUniqueMessageIDs(t *testing.T) {
	s := newTestSender()
	out := &list.OutboundMessage{
		From:       "list@example.com",
		Recipients: []string{"alice@example.com"},
		Subject:    "hi",
		Body:       "b",
	}

	first, err := s.compose(out)
	require.NoError(t, err)
	second, err := s.compose(out)
	require.NoError(t, err)

	assert.NotEqual(t, extractHeader(t, first, "Message-Id"), extractHeader(t, second, "Message-Id"))
}

func extractHeader(t *testing.T, raw []byte, name string) string {
	t.Helper()
	for _, line := range strings.Split(string(raw), "\r\n") {
		if strings.HasPrefix(line, name+":") {
			return line
		}
	}
	t.Fatalf("header %s not found", name)
	return ""
}

func TestMessageIDDomain(t *testing.T) {
	withHELO := New(config.SMTPConfig{HELODomain: "mx.example.com"}, "list@example.com")
	assert.Equal(t, "mx.example.com", withHELO.messageIDDomain())

	fromList := New(config.SMTPConfig{}, "list@example.org")
	assert.Equal(t, "example.org", fromList.messageIDDomain())

	fallback := New(config.SMTPConfig{}, "broken-address")
	assert.Equal(t, "localhost", fallback.messageIDDomain())
}
