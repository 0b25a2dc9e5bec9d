// Package inbox implements the Inbox capability over IMAP.
//
// The inbox connects lazily on the first fetch of a poll cycle and tears
// the session down on Close, so every cycle sees a fresh mailbox state.
// Acknowledging a message flags it \Deleted; Close expunges the mailbox.
package inbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	_ "github.com/emersion/go-message/charset"
	"github.com/migadu/ezlist/config"
	"github.com/migadu/ezlist/consts"
	"github.com/migadu/ezlist/helpers"
	"github.com/migadu/ezlist/list"
	"github.com/migadu/ezlist/logger"
)

// IMAPInbox yields pending messages from a single IMAP mailbox.
type IMAPInbox struct {
	cfg    config.IMAPConfig
	client *imapclient.Client
}

// New creates an IMAP-backed inbox. No connection is made until the first
// FetchPending call.
func New(cfg config.IMAPConfig) *IMAPInbox {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	return &IMAPInbox{cfg: cfg}
}

func (in *IMAPInbox) connect() error {
	options := &imapclient.Options{
		TLSConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: in.cfg.InsecureSkipVerify,
		},
	}
	if in.cfg.Debug {
		options.DebugWriter = os.Stderr
	}

	var c *imapclient.Client
	var err error
	switch {
	case in.cfg.TLS:
		c, err = imapclient.DialTLS(in.cfg.Addr, options)
	case in.cfg.StartTLS:
		c, err = imapclient.DialStartTLS(in.cfg.Addr, options)
	default:
		c, err = imapclient.DialInsecure(in.cfg.Addr, options)
	}
	if err != nil {
		return fmt.Errorf("%w: failed to connect to %s: %v", consts.ErrInboxUnavailable, in.cfg.Addr, err)
	}

	if err := c.Login(in.cfg.Username, in.cfg.Password).Wait(); err != nil {
		c.Close()
		return fmt.Errorf("%w: login failed: %v", consts.ErrInboxUnavailable, err)
	}

	if _, err := c.Select(in.cfg.Mailbox, nil).Wait(); err != nil {
		c.Close()
		return fmt.Errorf("%w: failed to select mailbox %s: %v", consts.ErrInboxUnavailable, in.cfg.Mailbox, err)
	}

	in.client = c
	return nil
}

// FetchPending returns all messages currently in the mailbox. The batch is
// finite; the next poll cycle fetches whatever arrived since.
func (in *IMAPInbox) FetchPending(ctx context.Context) ([]*list.InboundMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if in.client == nil {
		if err := in.connect(); err != nil {
			return nil, err
		}
	}

	searchData, err := in.client.UIDSearch(&imap.SearchCriteria{}, nil).Wait()
	if err != nil {
		in.disconnect()
		return nil, fmt.Errorf("IMAP search failed: %w", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	fetchOptions := &imap.FetchOptions{
		UID:          true,
		Envelope:     true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{{}},
	}
	buffers, err := in.client.Fetch(imap.UIDSetNum(uids...), fetchOptions).Collect()
	if err != nil {
		in.disconnect()
		return nil, fmt.Errorf("IMAP fetch failed: %w", err)
	}

	messages := make([]*list.InboundMessage, 0, len(buffers))
	for _, buf := range buffers {
		msg, err := in.toInbound(buf)
		if err != nil {
			// A message we cannot parse is logged and left in the
			// mailbox untouched; it will not be acknowledged.
			logger.Warn("Inbox: skipping unparseable message", "uid", uint32(buf.UID), "error", err)
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (in *IMAPInbox) toInbound(buf *imapclient.FetchMessageBuffer) (*list.InboundMessage, error) {
	raw := buf.FindBodySection(&imap.FetchItemBodySection{})
	if raw == nil {
		return nil, fmt.Errorf("%w: no body returned for UID %d", consts.ErrMalformedMessage, buf.UID)
	}

	msg := &list.InboundMessage{
		ID:   strconv.FormatUint(uint64(buf.UID), 10),
		Date: buf.InternalDate,
		Raw:  raw,
	}

	if env := buf.Envelope; env != nil {
		msg.Subject = env.Subject
		// Servers return the Message-ID with its angle brackets; strip
		// them so downstream header writers can add their own.
		msg.MessageID = strings.Trim(env.MessageID, "<>")
		if len(env.From) > 0 {
			msg.Sender = helpers.NormalizeAddress(env.From[0].Addr())
		}
		for _, addrs := range [][]imap.Address{env.To, env.Cc, env.Bcc} {
			for _, a := range addrs {
				msg.Recipients = append(msg.Recipients, helpers.NormalizeAddress(a.Addr()))
			}
		}
		if !env.Date.IsZero() {
			msg.Date = env.Date
		}
	}

	body, err := helpers.ExtractTextBody(raw)
	if err != nil {
		// Keep the message; commands live in the subject too, and a post
		// with an unreadable body is still forwarded from its raw bytes.
		logger.Debug("Inbox: failed to extract text body", "uid", uint32(buf.UID), "error", err)
	}
	msg.Body = body

	return msg, nil
}

// Acknowledge flags the message \Deleted. The flag becomes permanent when
// Close expunges the mailbox at the end of the poll cycle.
func (in *IMAPInbox) Acknowledge(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if in.client == nil {
		return fmt.Errorf("not connected")
	}

	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return fmt.Errorf("invalid message id %q: %w", id, err)
	}

	storeFlags := &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagDeleted},
	}
	if err := in.client.Store(imap.UIDSetNum(imap.UID(uid)), storeFlags, nil).Close(); err != nil {
		return fmt.Errorf("failed to flag message %s deleted: %w", id, err)
	}
	return nil
}

// Close expunges acknowledged messages and ends the IMAP session. The next
// FetchPending reconnects.
func (in *IMAPInbox) Close() error {
	if in.client == nil {
		return nil
	}

	if _, err := in.client.Expunge().Collect(); err != nil {
		logger.Warn("Inbox: expunge failed", "error", err)
	}
	if err := in.client.Logout().Wait(); err != nil {
		logger.Debug("Inbox: logout failed", "error", err)
	}

	err := in.client.Close()
	in.client = nil
	if err != nil {
		return fmt.Errorf("failed to close IMAP connection: %w", err)
	}
	return nil
}

func (in *IMAPInbox) disconnect() {
	if in.client != nil {
		_ = in.client.Close()
		in.client = nil
	}
}
