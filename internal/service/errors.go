package service

import "errors"

// Posting failures. The dispatcher treats all of them as a failed attempt for
// this tick, callers may still tell them apart.
var (
	ErrAuthInvalid = errors.New("posting session is invalid or expired")
	ErrNetwork     = errors.New("network error while posting")
	ErrRejected    = errors.New("post rejected by remote service")
)

var (
	ErrBlobNotFound     = errors.New("blob not found")
	ErrUnsupportedImage = errors.New("unsupported image type")
	ErrEmptyImage       = errors.New("image is empty")
)
