// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package pathinfo

import "fmt"

// ErrorKind classifies why an attribute couldn't be parsed.
type ErrorKind int

const (
	// ErrNoEnvelope means the text isn't of the form key="value".
	ErrNoEnvelope ErrorKind = iota

	// ErrUnbalancedDelimiter means a '(' or '<' was never closed. Seeing this
	// usually means the backend changed its output format.
	ErrUnbalancedDelimiter

	// ErrNoBricks means a stripe unit had no brick records.
	ErrNoBricks

	// ErrMalformedStripeHeader means a STRIPE tag was present but its size or
	// units couldn't be read.
	ErrMalformedStripeHeader
)

var kindNames = map[ErrorKind]string{
	ErrNoEnvelope:            "no_envelope",
	ErrUnbalancedDelimiter:   "unbalanced_delimiter",
	ErrNoBricks:              "no_bricks",
	ErrMalformedStripeHeader: "malformed_stripe_header",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// ParseError records the kind of a parse failure and the text that caused it.
type ParseError struct {
	Kind ErrorKind // What went wrong?
	Near string    // Where? An excerpt of the text being parsed.
	Msg  string    // Details, may be empty.
}

// Error implements error.
func (e *ParseError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("pathinfo: %s near %q", e.Kind, e.Near)
	}
	return fmt.Sprintf("pathinfo: %s: %s near %q", e.Kind, e.Msg, e.Near)
}

// maxExcerpt bounds how much of the input goes into an error.
const maxExcerpt = 64

func newParseError(kind ErrorKind, near string, format string, args ...interface{}) *ParseError {
	if len(near) > maxExcerpt {
		near = near[:maxExcerpt] + "..."
	}
	return &ParseError{Kind: kind, Near: near, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the ErrorKind of err and true if err is a *ParseError.
func KindOf(err error) (ErrorKind, bool) {
	if pe, ok := err.(*ParseError); ok {
		return pe.Kind, true
	}
	return 0, false
}
