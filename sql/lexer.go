package sql

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Lexer for the expression text carried by the operators of a physical plan,
// ie predicates, select lists, group keys, aggregations and the column
// expression map. Unlike a normal lexer, it never rewrites the source, every
// token remembers the span it came from, so a rewrite can splice new text in
// and leave the rest of the expression byte for byte identical.

const (
	// Literal
	TkNumber = iota
	TkStr
	TkId

	// Keywords, treated as reserved, never as column reference
	TkKeyword

	// Punctuation
	TkComma
	TkLPar
	TkRPar
	TkLSqr
	TkRSqr
	TkOp

	TkError
	TkEof
)

type Lexeme struct {
	Text  string // raw text of the token, as it shows up in the source
	Start int    // byte offset of the first rune of the token
	End   int    // byte offset right after the token
}

type Lexer struct {
	Source string
	Cursor int
	Token  int
	Lexeme Lexeme
}

var keywords = map[string]bool{
	"and":      true,
	"or":       true,
	"not":      true,
	"is":       true,
	"null":     true,
	"true":     true,
	"false":    true,
	"like":     true,
	"rlike":    true,
	"regexp":   true,
	"in":       true,
	"between":  true,
	"case":     true,
	"when":     true,
	"then":     true,
	"else":     true,
	"end":      true,
	"as":       true,
	"cast":     true,
	"distinct": true,
	"asc":      true,
	"desc":     true,
	"div":      true,
	"interval": true,
}

func IsKeyword(x string) bool {
	return keywords[strings.ToLower(x)]
}

func (self *Lexer) nextRune() (rune, int) {
	if self.Cursor >= len(self.Source) {
		return utf8.RuneError, 0
	}
	return utf8.DecodeRuneInString(self.Source[self.Cursor:])
}

func (self *Lexer) nextRune2() rune {
	if self.Cursor+1 >= len(self.Source) {
		return utf8.RuneError
	}
	r, _ := utf8.DecodeRuneInString(self.Source[self.Cursor+1:])
	return r
}

func (self *Lexer) yield(tk int, sz int) int {
	self.Lexeme = Lexeme{
		Text:  self.Source[self.Cursor : self.Cursor+sz],
		Start: self.Cursor,
		End:   self.Cursor + sz,
	}
	self.Token = tk
	self.Cursor += sz
	return tk
}

func (self *Lexer) span(tk int, start int) int {
	self.Lexeme = Lexeme{
		Text:  self.Source[start:self.Cursor],
		Start: start,
		End:   self.Cursor,
	}
	self.Token = tk
	return tk
}

func (self *Lexer) eof() int {
	self.Lexeme = Lexeme{Start: self.Cursor, End: self.Cursor}
	self.Token = TkEof
	return TkEof
}

func (self *Lexer) dinfo() string {
	return fmt.Sprintf("around position(%d)", self.Cursor)
}

func (self *Lexer) err(msg string) int {
	self.Lexeme.Text = fmt.Sprintf("%s: %s", self.dinfo(), msg)
	self.Token = TkError
	return TkError
}

func (self *Lexer) errUtf8() int {
	return self.err("invalid utf8 character")
}

func (self *Lexer) isWS(r rune) bool {
	switch r {
	case ' ', '\r', '\t', '\n', '\b', '\v':
		return true
	default:
		return false
	}
}

func (self *Lexer) isIdChar(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r) || unicode.IsNumber(r)
}

func (self *Lexer) isIdLeadingChar(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r)
}

// number literal, the value itself is never needed so we only need to find
// where it ends. Suffix like 10L, 1.5BD, 1e10 are all part of the literal
func (self *Lexer) lexNum() int {
	start := self.Cursor
	for {
		r, sz := self.nextRune()
		if r == utf8.RuneError {
			if sz == 0 {
				break
			}
			return self.errUtf8()
		}
		if r == '.' || self.isIdChar(r) {
			self.Cursor += sz
			continue
		}
		break
	}
	return self.span(TkNumber, start)
}

func (self *Lexer) lexStr(quote rune) int {
	start := self.Cursor
	self.Cursor++

	for {
		c, sz := self.nextRune()
		if c == utf8.RuneError {
			if sz == 0 {
				return self.err("string literal is not closed by quote properly")
			}
			return self.errUtf8()
		}

		if c == '\\' {
			// escape sequence, skip the escaped rune whatever it is
			self.Cursor += sz
			_, esz := self.nextRune()
			if esz == 0 {
				return self.err("string literal is not closed by quote properly")
			}
			self.Cursor += esz
			continue
		}

		self.Cursor += sz
		if c == quote {
			break
		}
	}

	return self.span(TkStr, start)
}

// quoted identifier, `col name`, treated as a regular identifier
func (self *Lexer) lexQuotedId() bool {
	self.Cursor++
	for {
		c, sz := self.nextRune()
		if c == utf8.RuneError {
			self.err("quoted identifier is not closed properly")
			return false
		}
		self.Cursor += sz
		if c == '`' {
			return true
		}
	}
}

// identifier, possibly qualified, ie t.a, KEY._col0, `db`.`tbl`.col are all
// lexed as one single identifier since the plan always refers to columns with
// their qualified name
func (self *Lexer) lexId() int {
	start := self.Cursor

	for {
		c, sz := self.nextRune()
		if c == '`' {
			if !self.lexQuotedId() {
				return self.Token
			}
		} else if self.isIdLeadingChar(c) {
			self.Cursor += sz
			for {
				c, sz := self.nextRune()
				if c == utf8.RuneError || !self.isIdChar(c) {
					break
				}
				self.Cursor += sz
			}
		} else {
			return self.err("invalid leading character of identifier")
		}

		// qualified component
		if r, _ := self.nextRune(); r == '.' {
			rr := self.nextRune2()
			if rr == '`' || self.isIdLeadingChar(rr) {
				self.Cursor++
				continue
			}
		}
		break
	}

	self.span(TkId, start)
	if IsKeyword(self.Lexeme.Text) {
		self.Token = TkKeyword
	}
	return self.Token
}

func (self *Lexer) lexOp() int {
	c, _ := self.nextRune()
	cc := self.nextRune2()

	switch c {
	case '=':
		if cc == '=' {
			return self.yield(TkOp, 2)
		}
	case '<':
		if cc == '=' || cc == '>' {
			if cc == '=' && self.Cursor+2 < len(self.Source) && self.Source[self.Cursor+2] == '>' {
				return self.yield(TkOp, 3) // <=>
			}
			return self.yield(TkOp, 2)
		}
	case '>', '!':
		if cc == '=' {
			return self.yield(TkOp, 2)
		}
	case '&':
		if cc == '&' {
			return self.yield(TkOp, 2)
		}
	case '|':
		if cc == '|' {
			return self.yield(TkOp, 2)
		}
	case ':':
		if cc == ':' {
			return self.yield(TkOp, 2)
		}
	}
	return self.yield(TkOp, 1)
}

func (self *Lexer) Next() int {
	if self.Token == TkEof || self.Token == TkError {
		return self.Token
	}

	for {
		c, sz := self.nextRune()
		if c == utf8.RuneError {
			if sz == 0 {
				return self.eof()
			}
			return self.errUtf8()
		}

		switch c {
		case ' ', '\r', '\t', '\n', '\b', '\v':
			self.Cursor += sz
			continue

		case ',':
			return self.yield(TkComma, 1)
		case '(':
			return self.yield(TkLPar, 1)
		case ')':
			return self.yield(TkRPar, 1)
		case '[':
			return self.yield(TkLSqr, 1)
		case ']':
			return self.yield(TkRSqr, 1)

		case '\'', '"':
			return self.lexStr(c)

		case '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
			return self.lexNum()

		case '+', '-', '*', '/', '%', '=', '<', '>', '!', '&', '|', '^', '~', ':', '.', ';', '?':
			return self.lexOp()

		default:
			return self.lexId()
		}
	}
}

func NewLexer(source string) *Lexer {
	return &Lexer{
		Source: source,
		Cursor: 0,
		Token:  TkNumber,
	}
}
