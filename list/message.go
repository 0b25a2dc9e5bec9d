// Package list implements the core of the mailing list relay: the
// classification of inbound messages and the dispatch of registry
// mutations, confirmation replies, and fan-out forwards.
package list

import "time"

// InboundMessage is one normalized message pulled from the inbox. It is
// owned by the Inbox collaborator until acknowledged; the core drops all
// references after processing.
type InboundMessage struct {
	// ID identifies the message inside the inbox for acknowledgement
	// (the IMAP UID, as a string).
	ID string
	// Sender is the normalized address from the From header. Empty when
	// the header was missing or unparseable.
	Sender string
	// Recipients are all normalized addresses from To, Cc and Bcc.
	Recipients []string
	// Subject is the raw subject line.
	Subject string
	// Body is the extracted plain text body.
	Body string
	// MessageID is the Message-ID header, when present.
	MessageID string
	// Date is the message arrival timestamp.
	Date time.Time
	// Raw is the full RFC 822 message, kept for archival.
	Raw []byte
}

// OutboundMessage is a fully-formed message handed to the Sender exactly
// once. Recipients is the envelope; the sender composes the headers.
type OutboundMessage struct {
	// From is the address placed in the From header. The envelope sender
	// is always the list address.
	From       string
	Recipients []string
	Subject    string
	Body       string
	// InReplyTo carries the original Message-ID when forwarding a post,
	// so subscriber clients can thread replies.
	InReplyTo string
	// Post marks a fan-out forward; the sender adds the List-Post and
	// List-Id headers and addresses the To header to the list itself.
	Post bool
	// Language records which language the body was rendered in; empty
	// for forwarded posts.
	Language string
}

// Classification is the closed set of outcomes the classifier can assign
// to an inbound message.
type Classification int

const (
	Ignore Classification = iota
	Subscribe
	Unsubscribe
	Post
)

func (c Classification) String() string {
	switch c {
	case Subscribe:
		return "subscribe"
	case Unsubscribe:
		return "unsubscribe"
	case Post:
		return "post"
	default:
		return "ignore"
	}
}
