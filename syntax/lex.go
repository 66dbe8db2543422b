// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package syntax

import (
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/plumblang/plumb/errors"
)

// Tok identifies the kind of a token.
type Tok int

const (
	// TokEOF marks the end of the source text.
	TokEOF Tok = iota
	// TokIdent is an identifier.
	TokIdent
	// TokInt is a decimal integer literal.
	TokInt
	// TokStr is a double-quoted string literal.
	TokStr
	// TokOp is an operator or punctuation token; its text
	// distinguishes which.
	TokOp
)

// A Token is a single lexeme together with the byte span it
// occupies in the source text.
type Token struct {
	Tok  Tok
	Text string // identifier name, operator text
	Int  int64  // valid when Tok == TokInt
	Str  string // unescaped value when Tok == TokStr
	Span errors.Span
}

func (t Token) String() string {
	switch t.Tok {
	case TokEOF:
		return "end of input"
	case TokIdent:
		return fmt.Sprintf("identifier %q", t.Text)
	case TokInt:
		return fmt.Sprintf("integer %d", t.Int)
	case TokStr:
		return fmt.Sprintf("string %q", t.Str)
	default:
		return fmt.Sprintf("%q", t.Text)
	}
}

// A Lexer scans a program's source text into tokens carrying byte
// spans. The zero Lexer is not valid; use newLexer.
type Lexer struct {
	src []byte
	pos int
}

func newLexer(src []byte) *Lexer {
	return &Lexer{src: src}
}

func isIdentStart(c byte) bool {
	return c == '_' || 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z'
}

func isIdentRune(c byte) bool {
	return isIdentStart(c) || '0' <= c && c <= '9'
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

// twoByteOps lists the multi-character operators, longest match
// first. ":=" and "|>" and friends must be matched before their
// single-character prefixes.
var twoByteOps = []string{":=", "|>", ">>", "==", "!=", "<=", ">=", "&&", "||"}

// Scan returns the next token. Once the input is exhausted, Scan
// returns TokEOF forever.
func (lx *Lexer) Scan() (Token, error) {
	lx.skipSpace()
	start := lx.pos
	if lx.pos >= len(lx.src) {
		return Token{Tok: TokEOF, Span: errors.NewSpan(start, start)}, nil
	}
	c := lx.src[lx.pos]
	switch {
	case isIdentStart(c):
		for lx.pos < len(lx.src) && isIdentRune(lx.src[lx.pos]) {
			lx.pos++
		}
		text := string(lx.src[start:lx.pos])
		return Token{Tok: TokIdent, Text: text, Span: errors.NewSpan(start, lx.pos)}, nil
	case isDigit(c):
		for lx.pos < len(lx.src) && isDigit(lx.src[lx.pos]) {
			lx.pos++
		}
		text := string(lx.src[start:lx.pos])
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return Token{}, errors.E("lex", errors.LexError, errors.NewSpan(start, lx.pos),
				errors.Errorf("integer literal %s out of range", text))
		}
		return Token{Tok: TokInt, Int: n, Span: errors.NewSpan(start, lx.pos)}, nil
	case c == '"':
		return lx.scanString()
	}
	if lx.pos+1 < len(lx.src) {
		two := string(lx.src[lx.pos : lx.pos+2])
		for _, op := range twoByteOps {
			if two == op {
				lx.pos += 2
				return Token{Tok: TokOp, Text: op, Span: errors.NewSpan(start, lx.pos)}, nil
			}
		}
	}
	switch c {
	case '(', ')', '{', '}', '[', ']', ',', ';', '=', ':', '.',
		'~', '+', '-', '*', '/', '<', '>':
		lx.pos++
		return Token{Tok: TokOp, Text: string(c), Span: errors.NewSpan(start, lx.pos)}, nil
	}
	lx.pos++
	return Token{}, errors.E("lex", errors.LexError, errors.NewSpan(start, lx.pos),
		errors.Errorf("unexpected character %q", rune(c)))
}

// skipSpace advances past whitespace and both comment forms
// ("// ..." and "# ...", each to end of line).
func (lx *Lexer) skipSpace() {
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			lx.pos++
		case c == '#', c == '/' && lx.pos+1 < len(lx.src) && lx.src[lx.pos+1] == '/':
			for lx.pos < len(lx.src) && lx.src[lx.pos] != '\n' {
				lx.pos++
			}
		default:
			return
		}
	}
}

// scanString scans a double-quoted string literal with JSON-style
// escapes.
func (lx *Lexer) scanString() (Token, error) {
	start := lx.pos
	lx.pos++ // opening quote
	var buf []byte
	for {
		if lx.pos >= len(lx.src) {
			return Token{}, errors.E("lex", errors.LexError, errors.NewSpan(start, lx.pos),
				errors.New("unterminated string literal"))
		}
		c := lx.src[lx.pos]
		if c == '"' {
			lx.pos++
			return Token{Tok: TokStr, Str: string(buf), Span: errors.NewSpan(start, lx.pos)}, nil
		}
		if c != '\\' {
			buf = append(buf, c)
			lx.pos++
			continue
		}
		lx.pos++
		if lx.pos >= len(lx.src) {
			return Token{}, errors.E("lex", errors.LexError, errors.NewSpan(start, lx.pos),
				errors.New("unterminated escape sequence"))
		}
		esc := lx.src[lx.pos]
		lx.pos++
		switch esc {
		case '"':
			buf = append(buf, '"')
		case '\\':
			buf = append(buf, '\\')
		case '/':
			buf = append(buf, '/')
		case 'b':
			buf = append(buf, '\b')
		case 'f':
			buf = append(buf, '\f')
		case 'n':
			buf = append(buf, '\n')
		case 'r':
			buf = append(buf, '\r')
		case 't':
			buf = append(buf, '\t')
		case 'u':
			r, err := lx.scanUnicodeEscape(start)
			if err != nil {
				return Token{}, err
			}
			var tmp [utf8.UTFMax]byte
			n := utf8.EncodeRune(tmp[:], r)
			buf = append(buf, tmp[:n]...)
		default:
			return Token{}, errors.E("lex", errors.LexError, errors.NewSpan(start, lx.pos),
				errors.Errorf("unsupported escape \\%c", esc))
		}
	}
}

// scanUnicodeEscape scans the four hex digits following "\u",
// combining surrogate pairs when a second "\uXXXX" follows a high
// surrogate.
func (lx *Lexer) scanUnicodeEscape(start int) (rune, error) {
	r1, err := lx.scanHex4(start)
	if err != nil {
		return 0, err
	}
	if r1 < 0xd800 || r1 >= 0xe000 {
		return r1, nil
	}
	// High surrogate: a low surrogate must follow.
	if r1 >= 0xdc00 || lx.pos+6 > len(lx.src) || lx.src[lx.pos] != '\\' || lx.src[lx.pos+1] != 'u' {
		return utf8.RuneError, nil
	}
	lx.pos += 2
	r2, err := lx.scanHex4(start)
	if err != nil {
		return 0, err
	}
	if r2 < 0xdc00 || r2 >= 0xe000 {
		return utf8.RuneError, nil
	}
	return 0x10000 + (r1-0xd800)<<10 + (r2 - 0xdc00), nil
}

func (lx *Lexer) scanHex4(start int) (rune, error) {
	if lx.pos+4 > len(lx.src) {
		return 0, errors.E("lex", errors.LexError, errors.NewSpan(start, len(lx.src)),
			errors.New("truncated \\u escape"))
	}
	var r rune
	for i := 0; i < 4; i++ {
		c := lx.src[lx.pos]
		var d rune
		switch {
		case '0' <= c && c <= '9':
			d = rune(c - '0')
		case 'a' <= c && c <= 'f':
			d = rune(c-'a') + 10
		case 'A' <= c && c <= 'F':
			d = rune(c-'A') + 10
		default:
			return 0, errors.E("lex", errors.LexError, errors.NewSpan(start, lx.pos+1),
				errors.Errorf("bad hex digit %q in \\u escape", rune(c)))
		}
		r = r<<4 | d
		lx.pos++
	}
	return r, nil
}
