package expr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type kind uint8

const (
	kindEOF kind = iota
	kindIdent
	kindString
	kindNumber
	kindTrue
	kindFalse
	kindNull
	kindOperator
	kindLParen
	kindRParen
)

type token struct {
	kind kind
	text string
	num  float64
}

type lexer struct {
	src string
	pos int
}

// operators lists the accepted operators, longest first.
var operators = []string{"==", "!=", "<=", ">=", "&&", "||", "<", ">", "!"}

// stops end a bare word.
const stops = " \t\r\n()!=&|<>"

func (l *lexer) next() (token, error) {
	for l.pos < len(l.src) && strings.IndexByte(" \t\r\n", l.src[l.pos]) >= 0 {
		l.pos++
	}
	if l.pos >= len(l.src) {
		return token{kind: kindEOF}, nil
	}

	rest := l.src[l.pos:]
	switch c := rest[0]; {
	case c == '(':
		l.pos++
		return token{kind: kindLParen, text: "("}, nil
	case c == ')':
		l.pos++
		return token{kind: kindRParen, text: ")"}, nil
	case c == '"' || c == '\'':
		return l.quoted(c)
	}

	for _, op := range operators {
		if strings.HasPrefix(rest, op) {
			l.pos += len(op)
			return token{kind: kindOperator, text: op}, nil
		}
	}
	switch rest[0] {
	case '=':
		return token{}, errors.New("visibility/expr: unexpected '='; use '=='")
	case '&':
		return token{}, errors.New("visibility/expr: unexpected '&'; use '&&'")
	case '|':
		return token{}, errors.New("visibility/expr: unexpected '|'; use '||'")
	}

	end := strings.IndexAny(rest, stops)
	if end < 0 {
		end = len(rest)
	}
	word := rest[:end]
	l.pos += end
	return classify(word)
}

func classify(word string) (token, error) {
	switch strings.ToLower(word) {
	case "true":
		return token{kind: kindTrue, text: word}, nil
	case "false":
		return token{kind: kindFalse, text: word}, nil
	case "null", "nil", "undefined":
		return token{kind: kindNull, text: word}, nil
	}
	if c := word[0]; c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9') {
		n, err := strconv.ParseFloat(word, 64)
		if err != nil {
			return token{}, fmt.Errorf("visibility/expr: invalid number %q", word)
		}
		return token{kind: kindNumber, text: word, num: n}, nil
	}
	return token{kind: kindIdent, text: word}, nil
}

// quoted reads a string literal opened by quote. Backslash escapes the next
// character; \n, \t and \r are control characters.
func (l *lexer) quoted(quote byte) (token, error) {
	var b strings.Builder
	for i := l.pos + 1; i < len(l.src); i++ {
		c := l.src[i]
		switch {
		case c == quote:
			l.pos = i + 1
			return token{kind: kindString, text: b.String()}, nil
		case c == '\\' && i+1 < len(l.src):
			i++
			switch e := l.src[i]; e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			default:
				b.WriteByte(e)
			}
		default:
			b.WriteByte(c)
		}
	}
	return token{}, fmt.Errorf("visibility/expr: unterminated string in %q", l.src)
}
