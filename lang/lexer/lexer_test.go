// Copyright 2024 The go-probeum Authors
// This file is part of the go-probeum library.
//
// The go-probeum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-probeum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-probeum library. If not, see <http://www.gnu.org/licenses/>.

package lexer

import (
	"testing"

	"github.com/probechain/go-probe/lang/token"
)

func tokenTypes(t *testing.T, src string) []token.Type {
	t.Helper()
	toks, err := Tokenize(src)
	if err != nil {
		t.Fatalf("Tokenize(%q): %v", src, err)
	}
	types := make([]token.Type, len(toks))
	for i, tok := range toks {
		types[i] = tok.Type
	}
	return types
}

func assertTypes(t *testing.T, got []token.Type, want ...token.Type) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d tokens %v, want %d %v", len(got), got, len(want), want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestKeywordsAndIdents(t *testing.T) {
	got := tokenTypes(t, "local x = foo and not y")
	assertTypes(t, got,
		token.LOCAL, token.IDENT, token.ASSIGN, token.IDENT,
		token.AND, token.NOT, token.IDENT, token.EOF)
}

func TestNumbers(t *testing.T) {
	toks, err := Tokenize("1 3.14 0x1A 1e10 0x1p4")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	want := []string{"1", "3.14", "0x1A", "1e10", "0x1p4"}
	for i, w := range want {
		if toks[i].Type != token.NUMBER {
			t.Fatalf("token %d: got %v, want NUMBER", i, toks[i].Type)
		}
		if toks[i].Literal != w {
			t.Fatalf("token %d: got %q, want %q", i, toks[i].Literal, w)
		}
	}
}

func TestStrings(t *testing.T) {
	toks, err := Tokenize(`"abc" 'de\nf' [[raw\nbracket]] [==[nested ]] here]==]`)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	want := []string{"abc", "de\nf", `raw\nbracket`, "nested ]] here"}
	for i, w := range want {
		if toks[i].Type != token.STRING {
			t.Fatalf("token %d: got %v, want STRING", i, toks[i].Type)
		}
		if toks[i].Literal != w {
			t.Fatalf("token %d: got %q, want %q", i, toks[i].Literal, w)
		}
	}
}

func TestOperators(t *testing.T) {
	got := tokenTypes(t, "== ~= <= >= .. ... // :: < >")
	assertTypes(t, got,
		token.EQ, token.NE, token.LE, token.GE, token.CONCAT,
		token.ELLIPSIS, token.DSLASH, token.DCOLON, token.LT, token.GT, token.EOF)
}

func TestComments(t *testing.T) {
	got := tokenTypes(t, "1 -- line comment\n2 --[[ block\ncomment ]] 3")
	assertTypes(t, got, token.NUMBER, token.NUMBER, token.NUMBER, token.EOF)
}

func TestUnterminatedStringError(t *testing.T) {
	_, err := Tokenize(`"abc`)
	if err == nil {
		t.Fatalf("expected error for unterminated string")
	}
}

func TestPositionTracking(t *testing.T) {
	toks, err := Tokenize("a\nb")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if toks[0].Pos.Line != 1 {
		t.Fatalf("first token line = %d, want 1", toks[0].Pos.Line)
	}
	if toks[1].Pos.Line != 2 {
		t.Fatalf("second token line = %d, want 2", toks[1].Pos.Line)
	}
}
