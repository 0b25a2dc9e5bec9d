package helpers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawMessage(lines ...string) []byte {
	return []byte(strings.Join(lines, "\r\n") + "\r\n")
}

func TestExtractTextBodyPlain(t *testing.T) {
	raw := rawMessage(
		"From: alice@example.com",
		"To: list@example.com",
		"Subject: hello",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"subscribe",
	)

	body, err := ExtractTextBody(raw)
	require.NoError(t, err)
	assert.Equal(t, "subscribe", strings.TrimSpace(body))
}

func TestExtractTextBodyMultipartPrefersPlain(t *testing.T) {
	raw := rawMessage(
		"From: alice@example.com",
		"To: list@example.com",
		"Subject: hello",
		"MIME-Version: 1.0",
		"Content-Type: multipart/alternative; boundary=BOUNDARY",
		"",
		"--BOUNDARY",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"plain wins",
		"--BOUNDARY",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<p>html loses</p>",
		"--BOUNDARY--",
	)

	body, err := ExtractTextBody(raw)
	require.NoError(t, err)
	assert.Equal(t, "plain wins", strings.TrimSpace(body))
}

func TestExtractTextBodyHTMLFallback(t *testing.T) {
	raw := rawMessage(
		"From: alice@example.com",
		"To: list@example.com",
		"Subject: hello",
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<html><body><p>converted text</p></body></html>",
	)

	body, err := ExtractTextBody(raw)
	require.NoError(t, err)
	assert.Contains(t, body, "converted text")
}

func TestExtractTextBodyNoTextPart(t *testing.T) {
	raw := rawMessage(
		"From: alice@example.com",
		"To: list@example.com",
		"Subject: hello",
		"MIME-Version: 1.0",
		"Content-Type: application/octet-stream",
		"Content-Transfer-Encoding: base64",
		"",
		"AAAA",
	)

	body, err := ExtractTextBody(raw)
	require.NoError(t, err)
	assert.Empty(t, body)
}
