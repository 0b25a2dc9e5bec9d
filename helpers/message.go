package helpers

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message/mail"
	"github.com/k3a/html2text"
)

// ExtractTextBody returns the plain text body of a raw RFC 822 message.
// It walks the MIME structure and returns the first text/plain part; if the
// message only carries text/html, the HTML is converted to plain text.
// Attachments are skipped. A message without any text part yields "".
func ExtractTextBody(raw []byte) (string, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		// The reader may still be usable for messages with header
		// oddities; only bail out if we got no reader at all.
		if mr == nil {
			return "", fmt.Errorf("failed to parse message: %w", err)
		}
	}

	var htmlBody string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read message part: %w", err)
		}

		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, err := h.ContentType()
		if err != nil {
			continue
		}

		switch {
		case strings.EqualFold(contentType, "text/plain"):
			b, err := io.ReadAll(p.Body)
			if err != nil {
				return "", fmt.Errorf("failed to read text part: %w", err)
			}
			return string(b), nil
		case strings.EqualFold(contentType, "text/html") && htmlBody == "":
			b, err := io.ReadAll(p.Body)
			if err != nil {
				return "", fmt.Errorf("failed to read html part: %w", err)
			}
			htmlBody = string(b)
		}
	}

	if htmlBody != "" {
		return html2text.HTML2Text(htmlBody), nil
	}
	return "", nil
}
