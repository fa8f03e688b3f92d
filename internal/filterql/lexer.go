package filterql

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Lexer tokenizes a filter expression.
type Lexer struct {
	input string
	pos   int // current byte position
	col   int // 1-based
}

// NewLexer creates a lexer for input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input, col: 1}
}

// Tokenize scans the whole input. It stops at the first error.
func (l *Lexer) Tokenize() ([]Token, error) {
	var tokens []Token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens, nil
		}
	}
}

func (l *Lexer) peek() rune {
	if l.pos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.pos:])
	return r
}

func (l *Lexer) peekAt(offset int) rune {
	p := l.pos + offset
	if p >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[p:])
	return r
}

func (l *Lexer) advance() rune {
	if l.pos >= len(l.input) {
		return 0
	}
	r, size := utf8.DecodeRuneInString(l.input[l.pos:])
	l.pos += size
	l.col++
	return r
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) && unicode.IsSpace(l.peek()) {
		l.advance()
	}
}

func (l *Lexer) next() (Token, error) {
	l.skipWhitespace()
	start := Token{Pos: l.pos, Col: l.col}
	if l.pos >= len(l.input) {
		start.Type = TokenEOF
		return start, nil
	}

	r := l.peek()
	switch {
	case r == '"' || r == '\'':
		return l.scanString(start)
	case r >= '0' && r <= '9', r == '-' && isDigit(l.peekAt(1)):
		return l.scanNumber(start), nil
	case isIdentStart(r):
		return l.scanIdent(start), nil
	case r == '!' && l.peekAt(1) == '=':
		l.advance()
		l.advance()
		start.Type, start.Literal = TokenNEQ, "!="
		return start, nil
	}

	l.advance()
	switch r {
	case '=':
		start.Type = TokenEQ
	case '>':
		start.Type = TokenGT
	case '<':
		start.Type = TokenLT
	case '(':
		start.Type = TokenLParen
	case ')':
		start.Type = TokenRParen
	default:
		return Token{}, errorf(start, "unexpected character %q", r)
	}
	start.Literal = string(r)
	return start, nil
}

func (l *Lexer) scanString(start Token) (Token, error) {
	quote := l.advance()
	var b strings.Builder
	for l.pos < len(l.input) {
		r := l.advance()
		if r == quote {
			start.Type, start.Literal = TokenString, b.String()
			return start, nil
		}
		if r == '\\' {
			next := l.advance()
			switch next {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case '\\', '"', '\'':
				b.WriteRune(next)
			default:
				b.WriteByte('\\')
				b.WriteRune(next)
			}
			continue
		}
		b.WriteRune(r)
	}
	return Token{}, errorf(start, "unterminated string")
}

func (l *Lexer) scanNumber(start Token) Token {
	from := l.pos
	if l.peek() == '-' {
		l.advance()
	}
	isFloat := false
scan:
	for l.pos < len(l.input) {
		r := l.peek()
		switch {
		case isDigit(r):
			l.advance()
		case r == '.' && !isFloat && isDigit(l.peekAt(1)):
			isFloat = true
			l.advance()
		default:
			break scan
		}
	}
	start.Literal = l.input[from:l.pos]
	start.Type = TokenInt
	if isFloat {
		start.Type = TokenFloat
	}
	return start
}

func (l *Lexer) scanIdent(start Token) Token {
	from := l.pos
	for l.pos < len(l.input) && isIdentPart(l.peek()) {
		l.advance()
	}
	start.Literal = l.input[from:l.pos]
	start.Type = LookupKeyword(start.Literal)
	return start
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || r == '.' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
