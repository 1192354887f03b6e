// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package pathinfo

import "strings"

// closerOf maps opening delimiters to their closing partner.
var closerOf = map[byte]byte{
	'(': ')',
	'<': '>',
}

// MatchingClose returns the index just past the delimiter that closes the one
// at s[0], which must be '(' or '<'. Only delimiters of the same type are
// counted, so for "<(>" the result is 3 although the '(' is never closed.
// It fails with ErrUnbalancedDelimiter if the depth never returns to zero.
func MatchingClose(s string) (int, error) {
	if s == "" {
		return 0, newParseError(ErrUnbalancedDelimiter, s, "expected an opening delimiter")
	}
	open := s[0]
	closer, ok := closerOf[open]
	if !ok {
		return 0, newParseError(ErrUnbalancedDelimiter, s, "expected an opening delimiter")
	}

	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case open:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return i + 1, nil
			}
		}
	}
	return 0, newParseError(ErrUnbalancedDelimiter, s, "no matching %q", closer)
}

// unwrap returns the text between the delimiter at s[0] and its partner, and
// whatever follows the partner.
func unwrap(s string) (inner, rest string, err error) {
	end, err := MatchingClose(s)
	if err != nil {
		return "", "", err
	}
	return s[1 : end-1], s[end:], nil
}

// isSpace reports whether c separates tokens in pathinfo text.
func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func trimSpace(s string) string {
	return strings.TrimFunc(s, func(r rune) bool { return r < 0x80 && isSpace(byte(r)) })
}

// nextToken returns s up to the first top-level space or opening delimiter.
func nextToken(s string) (tok, rest string) {
	for i := 0; i < len(s); i++ {
		if isSpace(s[i]) || closerOf[s[i]] != 0 {
			return s[:i], s[i:]
		}
	}
	return s, ""
}
