// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package pathinfo

import (
	"bytes"
	"math/rand"
	"testing"
)

const maxTestDepth = 10

var pairs = [][2]byte{{'(', ')'}, {'<', '>'}}

// genGroup writes a random well-formed group that starts with an opening
// delimiter and ends with its partner. Groups nest up to maxTestDepth deep
// and mix both delimiter types with plain text.
func genGroup(r *rand.Rand, b *bytes.Buffer, depth int) {
	p := pairs[r.Intn(len(pairs))]
	b.WriteByte(p[0])
	for n := r.Intn(5); n > 0; n-- {
		if depth < maxTestDepth && r.Intn(2) == 0 {
			genGroup(r, b, depth+1)
		} else {
			genText(r, b)
		}
	}
	b.WriteByte(p[1])
}

func genText(r *rand.Rand, b *bytes.Buffer) {
	const chars = "abc:/[]0123 -_"
	for n := 1 + r.Intn(6); n > 0; n-- {
		b.WriteByte(chars[r.Intn(len(chars))])
	}
}

// TestMatchingCloseWellFormed checks that the scanner stops exactly at the
// partner of the first delimiter, whatever follows.
func TestMatchingCloseWellFormed(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 5000; i++ {
		var b bytes.Buffer
		genGroup(r, &b, 1)
		group := b.String()

		// Something after the group must not change the answer.
		if r.Intn(2) == 0 {
			genText(r, &b)
		}
		if r.Intn(2) == 0 {
			genGroup(r, &b, 1)
		}

		end, err := MatchingClose(b.String())
		if err != nil {
			t.Fatalf("%q: unexpected error %v", b.String(), err)
		}
		if end != len(group) {
			t.Fatalf("%q: expected %d and got %d", b.String(), len(group), end)
		}
	}
}

// TestMatchingCloseUnbalanced injects one unmatched delimiter into well-formed
// groups and checks that the scanner reports it.
func TestMatchingCloseUnbalanced(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	for i := 0; i < 5000; i++ {
		var b bytes.Buffer
		genGroup(r, &b, 1)
		group := b.String()

		var bad string
		if r.Intn(2) == 0 {
			// Drop the closing partner.
			bad = group[:len(group)-1]
		} else {
			// Add another opener of the same type somewhere inside.
			at := 1 + r.Intn(len(group)-1)
			bad = group[:at] + group[:1] + group[at:]
		}

		end, err := MatchingClose(bad)
		if err == nil {
			t.Fatalf("%q: expected an error and got %d", bad, end)
		}
		if kind, ok := KindOf(err); !ok || kind != ErrUnbalancedDelimiter {
			t.Fatalf("%q: expected %s and got %v", bad, ErrUnbalancedDelimiter, err)
		}
	}
}

func TestMatchingCloseCases(t *testing.T) {
	cases := []struct {
		in  string
		end int
		ok  bool
	}{
		{"()", 2, true},
		{"<>", 2, true},
		{"(a(b)c)d", 7, true},
		{"<a<b>c>", 7, true},
		{"<(>", 3, true},
		{"(<)", 3, true},
		{"(<POSIX(/b):h:/b/f>)", 20, true},
		{"", 0, false},
		{"a()", 0, false},
		{")(", 0, false},
		{"(", 0, false},
		{"((())", 0, false},
		{"<<>", 0, false},
	}
	for _, c := range cases {
		end, err := MatchingClose(c.in)
		if c.ok {
			if err != nil || end != c.end {
				t.Errorf("%q: expected %d and got %d, %v", c.in, c.end, end, err)
			}
		} else if err == nil {
			t.Errorf("%q: expected an error and got %d", c.in, end)
		}
	}
}

func TestNextToken(t *testing.T) {
	cases := []struct{ in, tok, rest string }{
		{"abc def", "abc", " def"},
		{"abc(def)", "abc", "(def)"},
		{"abc<d>", "abc", "<d>"},
		{"abc", "abc", ""},
	}
	for _, c := range cases {
		tok, rest := nextToken(c.in)
		if tok != c.tok || rest != c.rest {
			t.Errorf("%q: expected (%q, %q) and got (%q, %q)", c.in, c.tok, c.rest, tok, rest)
		}
	}
}
