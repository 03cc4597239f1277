package sql

import (
	"github.com/cockroachdb/errors"
	"github.com/grafana/regexp"
	"strings"
)

// Ident is one identifier found inside of an expression. Call is set when the
// identifier is immediately followed by a '(', ie it names a function rather
// than a column.
type Ident struct {
	Name  string
	Start int
	End   int
	Call  bool
}

// A Resolver returns the replacement text of an identifier. Returning false
// leaves the identifier untouched.
type Resolver func(Ident) (string, bool, error)

// generated positional column name, ie _col0, _col12
var placeholderPattern = regexp.MustCompile(`_col[0-9]+`)

// Scan collects every identifier of the expression in source order. Keywords,
// literals and the type name of a CAST(x AS type) are not identifiers.
func Scan(src string) ([]Ident, error) {
	l := NewLexer(src)
	out := []Ident{}
	prevAs := false

	tk := l.Next()
	for tk != TkEof {
		switch tk {
		case TkError:
			return nil, errors.Newf("expression(%s): %s", src, l.Lexeme.Text)

		case TkId:
			id := Ident{
				Name:  l.Lexeme.Text,
				Start: l.Lexeme.Start,
				End:   l.Lexeme.End,
			}
			skip := prevAs
			tk = l.Next()
			if tk == TkLPar {
				id.Call = true
			}
			if !skip {
				out = append(out, id)
			}
			prevAs = false
			continue

		case TkKeyword:
			prevAs = strings.EqualFold(l.Lexeme.Text, "as")

		default:
			prevAs = false
		}
		tk = l.Next()
	}
	return out, nil
}

// Rename rewrites every identifier of src the resolver knows about and keeps
// everything else, including spacing, literal and keyword spelling, intact.
func Rename(src string, resolve Resolver) (string, error) {
	ids, err := Scan(src)
	if err != nil {
		return "", err
	}

	buf := &strings.Builder{}
	cursor := 0
	for _, id := range ids {
		n, ok, err := resolve(id)
		if err != nil {
			return "", err
		}
		if !ok {
			continue
		}
		buf.WriteString(src[cursor:id.Start])
		buf.WriteString(n)
		cursor = id.End
	}
	buf.WriteString(src[cursor:])
	return buf.String(), nil
}

// Columns returns the distinct column references of the expression, ie every
// identifier that is not a function call, in order of first appearance.
func Columns(src string) ([]string, error) {
	ids, err := Scan(src)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	out := []string{}
	for _, id := range ids {
		if id.Call || seen[id.Name] {
			continue
		}
		seen[id.Name] = true
		out = append(out, id.Name)
	}
	return out, nil
}

// IsColumnRef tells whether the expression is nothing but a reference to one
// single column, returning that column.
func IsColumnRef(src string) (string, bool) {
	l := NewLexer(strings.TrimSpace(src))
	if l.Next() != TkId {
		return "", false
	}
	name := l.Lexeme.Text
	if l.Next() != TkEof {
		return "", false
	}
	return name, true
}

// IsAtom tells whether the expression binds tighter than any operator, ie a
// column, a literal, a function call or a parenthesized expression, so it can
// be spliced into another expression without parentheses.
func IsAtom(src string) bool {
	l := NewLexer(strings.TrimSpace(src))
	switch l.Next() {
	case TkNumber, TkStr:
		return l.Next() == TkEof
	case TkId:
		switch l.Next() {
		case TkEof:
			return true
		case TkLPar:
			return closed(l)
		}
	case TkKeyword:
		switch strings.ToLower(l.Lexeme.Text) {
		case "null", "true", "false":
			return l.Next() == TkEof
		case "cast":
			return l.Next() == TkLPar && closed(l)
		}
	case TkLPar:
		return closed(l)
	}
	return false
}

// closed consumes up to the parenthesis matching the one just read and tells
// whether the expression ends right after it.
func closed(l *Lexer) bool {
	depth := 1
	for {
		switch l.Next() {
		case TkLPar:
			depth++
		case TkRPar:
			depth--
			if depth == 0 {
				return l.Next() == TkEof
			}
		case TkEof, TkError:
			return false
		}
	}
}

// Paren returns the expression wrapped in parentheses unless it is an atom.
func Paren(src string) string {
	if IsAtom(src) {
		return src
	}
	return "(" + src + ")"
}

// Unquote strips the backtick quoting of every component of an identifier.
func Unquote(id string) string {
	return strings.ReplaceAll(id, "`", "")
}

func CountPlaceholder(x string) int {
	return len(placeholderPattern.FindAllStringIndex(x, -1))
}

func HasPlaceholder(x string) bool {
	return placeholderPattern.MatchString(x)
}
