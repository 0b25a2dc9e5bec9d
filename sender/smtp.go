// Package sender implements the outbound delivery capability over SMTP.
//
// Every Deliver call opens a fresh connection, authenticates, and sends one
// message to all recipients in a single transaction. The envelope sender is
// always the list address, so bounces come back to the list mailbox.
package sender

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	gomail "github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/migadu/ezlist/config"
	"github.com/migadu/ezlist/consts"
	"github.com/migadu/ezlist/list"
)

// DeliveryError wraps a delivery failure with information about whether it
// is permanent. Permanent errors (5xx SMTP codes) would not succeed on a
// retry; temporary errors (4xx codes, network errors) might.
type DeliveryError struct {
	Err       error
	Permanent bool
}

func (e *DeliveryError) Error() string {
	if e.Permanent {
		return fmt.Sprintf("permanent delivery failure: %v", e.Err)
	}
	return fmt.Sprintf("temporary delivery failure: %v", e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Is lets callers match any delivery failure with
// errors.Is(err, consts.ErrDeliveryFailed) without losing the
// permanent/temporary distinction.
func (e *DeliveryError) Is(target error) bool {
	return target == consts.ErrDeliveryFailed
}

// IsPermanentError reports whether an error is a permanent failure.
// Returns true for 5xx SMTP errors, false for 4xx and network errors.
func IsPermanentError(err error) bool {
	if err == nil {
		return false
	}

	var deliveryErr *DeliveryError
	if errors.As(err, &deliveryErr) {
		return deliveryErr.Permanent
	}

	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) {
		return !smtpErr.Temporary()
	}

	return false
}

// SMTPSender delivers outbound messages through a single SMTP submission
// endpoint.
type SMTPSender struct {
	cfg         config.SMTPConfig
	listAddress string
}

// New creates an SMTP sender. listAddress is used as the envelope sender
// and in the list headers of forwarded posts.
func New(cfg config.SMTPConfig, listAddress string) *SMTPSender {
	return &SMTPSender{cfg: cfg, listAddress: listAddress}
}

// Deliver composes the RFC 822 message and submits it. All recipients are
// sent in one transaction.
func (s *SMTPSender) Deliver(ctx context.Context, msg *list.OutboundMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(msg.Recipients) == 0 {
		return &DeliveryError{Err: fmt.Errorf("no recipients"), Permanent: true}
	}

	raw, err := s.compose(msg)
	if err != nil {
		return &DeliveryError{Err: fmt.Errorf("failed to compose message: %w", err), Permanent: true}
	}

	c, err := s.dial()
	if err != nil {
		return err
	}
	defer c.Close()

	if s.cfg.Username != "" {
		saslClient := sasl.NewPlainClient("", s.cfg.Username, s.cfg.Password)
		if err := c.Auth(saslClient); err != nil {
			return &DeliveryError{Err: fmt.Errorf("SMTP authentication failed: %w", err), Permanent: IsPermanentError(err)}
		}
	}

	if err := c.Mail(s.listAddress, nil); err != nil {
		return &DeliveryError{Err: fmt.Errorf("failed to set sender: %w", err), Permanent: IsPermanentError(err)}
	}
	for _, rcpt := range msg.Recipients {
		if err := c.Rcpt(rcpt, nil); err != nil {
			return &DeliveryError{Err: fmt.Errorf("failed to set recipient %s: %w", rcpt, err), Permanent: IsPermanentError(err)}
		}
	}

	wc, err := c.Data()
	if err != nil {
		return &DeliveryError{Err: fmt.Errorf("failed to start data: %w", err), Permanent: IsPermanentError(err)}
	}
	if _, err := wc.Write(raw); err != nil {
		// Attempt to close the data writer even if write fails, to send the final dot.
		_ = wc.Close()
		return &DeliveryError{Err: fmt.Errorf("failed to write message: %w", err), Permanent: false}
	}
	if err := wc.Close(); err != nil {
		return &DeliveryError{Err: fmt.Errorf("failed to close data writer: %w", err), Permanent: IsPermanentError(err)}
	}

	// Quit errors do not affect delivery; the message was already accepted.
	_ = c.Quit()

	return nil
}

func (s *SMTPSender) dial() (*smtp.Client, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		Renegotiation:      tls.RenegotiateNever,
		InsecureSkipVerify: s.cfg.InsecureSkipVerify,
	}

	var c *smtp.Client
	var err error
	switch {
	case s.cfg.TLS:
		c, err = smtp.DialTLS(s.cfg.Addr, tlsConfig)
	case s.cfg.StartTLS:
		c, err = smtp.DialStartTLS(s.cfg.Addr, tlsConfig)
	default:
		c, err = smtp.Dial(s.cfg.Addr)
	}
	if err != nil {
		// Connection errors are temporary: network issue or server down.
		return nil, &DeliveryError{Err: fmt.Errorf("failed to connect to SMTP server %s: %w", s.cfg.Addr, err), Permanent: false}
	}

	if s.cfg.HELODomain != "" {
		if err := c.Hello(s.cfg.HELODomain); err != nil {
			c.Close()
			return nil, &DeliveryError{Err: fmt.Errorf("HELO failed: %w", err), Permanent: IsPermanentError(err)}
		}
	}
	return c, nil
}

// compose renders the outbound message as RFC 822 bytes. Forwarded posts
// keep the original author in From, address To to the list itself, and
// carry the list headers; replies are plain single-recipient messages.
func (s *SMTPSender) compose(msg *list.OutboundMessage) ([]byte, error) {
	var h gomail.Header
	h.SetDate(time.Now())
	h.SetSubject(msg.Subject)
	h.SetAddressList("From", []*gomail.Address{{Address: msg.From}})

	if msg.Post {
		h.SetAddressList("To", []*gomail.Address{{Address: s.listAddress}})
		h.SetAddressList("Reply-To", []*gomail.Address{{Address: s.listAddress}})
		h.Set("List-Post", fmt.Sprintf("<mailto:%s>", s.listAddress))
		h.Set("List-Id", fmt.Sprintf("<%s>", strings.ReplaceAll(s.listAddress, "@", ".")))
		if msg.InReplyTo != "" {
			h.SetMsgIDList("In-Reply-To", []string{msg.InReplyTo})
		}
	} else {
		h.SetAddressList("To", []*gomail.Address{{Address: msg.Recipients[0]}})
	}

	id, err := generateMessageID(s.messageIDDomain())
	if err != nil {
		return nil, err
	}
	h.SetMsgIDList("Message-Id", []string{id})

	var buf bytes.Buffer
	w, err := gomail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create message writer: %w", err)
	}
	if _, err := io.WriteString(w, msg.Body); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize message: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *SMTPSender) messageIDDomain() string {
	if s.cfg.HELODomain != "" {
		return s.cfg.HELODomain
	}
	if _, domain, found := strings.Cut(s.listAddress, "@"); found && domain != "" {
		return domain
	}
	return "localhost"
}

func generateMessageID(domain string) (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("failed to generate message id: %w", err)
	}
	return fmt.Sprintf("%s@%s", hex.EncodeToString(b[:]), domain), nil
}
