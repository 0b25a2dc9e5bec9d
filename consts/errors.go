package consts

import "errors"

var (
	ErrMalformedMessage   = errors.New("malformed message")
	ErrStorageUnavailable = errors.New("subscriber storage unavailable")
	ErrTemplateNotFound   = errors.New("template not found")
	ErrInboxUnavailable   = errors.New("inbox unavailable")
	ErrDeliveryFailed     = errors.New("delivery failed")
)
