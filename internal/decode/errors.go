package decode

import (
	"errors"
	"fmt"
)

// ErrInvalidIDList is the sentinel wrapped by every IDListError.
// Use errors.Is(err, decode.ErrInvalidIDList) to recognise id-list diagnostics.
var ErrInvalidIDList = errors.New("decode: invalid id list")

// Reasons reported by ParseIDList.
const (
	ReasonInvalidToken = "invalid token"
	ReasonOutOfRange   = "out of range"
	ReasonInvalidRange = "invalid range"
	ReasonEmptyList    = "empty id list"
)

// IDListError describes one rejected token of a device id list.
type IDListError struct {
	Token  string
	Reason string
}

// Error renders the diagnostic as "<reason> '<token>'", or just the reason
// when the error is not tied to a token (empty input).
func (e *IDListError) Error() string {
	if e.Token == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s '%s'", e.Reason, e.Token)
}

// Unwrap allows errors.Is(err, ErrInvalidIDList).
func (e *IDListError) Unwrap() error {
	return ErrInvalidIDList
}
