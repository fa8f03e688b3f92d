package filterql

import (
	"strconv"
	"strings"

	"github.com/matthewbaird/railgrid/internal/railgun"
)

// Parse compiles expr into a filter. Blank input yields nil.
func Parse(expr string) (*railgun.Filter, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, nil
	}
	tokens, err := NewLexer(expr).Tokenize()
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	f, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.Type != TokenEOF {
		return nil, errorf(tok, "unexpected %s '%s'", tok.Type, tok.Literal)
	}
	return &f, nil
}

// MustParse is Parse for expressions known to be valid.
func MustParse(expr string) *railgun.Filter {
	f, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return f
}

type parser struct {
	tokens []Token
	pos    int
}

func (p *parser) peek() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: TokenEOF}
	}
	return p.tokens[p.pos]
}

func (p *parser) advance() Token {
	tok := p.peek()
	if tok.Type != TokenEOF {
		p.pos++
	}
	return tok
}

func (p *parser) check(t TokenType) bool {
	return p.peek().Type == t
}

func (p *parser) expect(t TokenType) (Token, error) {
	if p.check(t) {
		return p.advance(), nil
	}
	tok := p.peek()
	return tok, errorf(tok, "expected %s, got %s", t, tok.Type)
}

func (p *parser) parseOr() (railgun.Filter, error) {
	return p.parseChain(railgun.Or, TokenOr, p.parseAnd)
}

func (p *parser) parseAnd() (railgun.Filter, error) {
	return p.parseChain(railgun.And, TokenAnd, p.parseUnary)
}

// parseChain reads operand (sep operand)* and joins the operands under op.
func (p *parser) parseChain(op string, sep TokenType, operand func() (railgun.Filter, error)) (railgun.Filter, error) {
	first, err := operand()
	if err != nil {
		return railgun.Filter{}, err
	}
	parts := []railgun.Filter{first}
	for p.check(sep) {
		p.advance()
		next, err := operand()
		if err != nil {
			return railgun.Filter{}, err
		}
		parts = append(parts, next)
	}
	if len(parts) == 1 {
		return first, nil
	}
	return join(op, parts), nil
}

// join merges parts under op. Parts that already use op, or that hold a
// single member, are flattened into the result.
func join(op string, parts []railgun.Filter) railgun.Filter {
	out := railgun.Filter{Operator: op}
	for _, f := range parts {
		if f.Operator == op || len(f.Conditions)+len(f.Groups) == 1 {
			out.Conditions = append(out.Conditions, f.Conditions...)
			out.Groups = append(out.Groups, f.Groups...)
			continue
		}
		out.Groups = append(out.Groups, f)
	}
	return out
}

func (p *parser) parseUnary() (railgun.Filter, error) {
	if p.check(TokenLParen) {
		p.advance()
		f, err := p.parseOr()
		if err != nil {
			return railgun.Filter{}, err
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return railgun.Filter{}, err
		}
		return f, nil
	}
	c, err := p.parseComparison()
	if err != nil {
		return railgun.Filter{}, err
	}
	return railgun.Filter{Operator: railgun.And, Conditions: []railgun.Condition{c}}, nil
}

func (p *parser) parseComparison() (railgun.Condition, error) {
	field, err := p.expect(TokenIdent)
	if err != nil {
		return railgun.Condition{}, err
	}
	op, err := p.parseOperator()
	if err != nil {
		return railgun.Condition{}, err
	}
	value, err := p.parseLiteral()
	if err != nil {
		return railgun.Condition{}, err
	}
	return railgun.Condition{Field: field.Literal, Operator: op, Value: value}, nil
}

func (p *parser) parseOperator() (string, error) {
	tok := p.advance()
	switch tok.Type {
	case TokenEQ:
		return railgun.OpIs, nil
	case TokenNEQ:
		return railgun.OpIsNot, nil
	case TokenGT:
		return railgun.OpGreaterThan, nil
	case TokenLT:
		return railgun.OpLessThan, nil
	case TokenOp:
		return strings.ToLower(tok.Literal), nil
	}
	return "", errorf(tok, "expected comparison operator (=, !=, >, <, is, is_not, contains, not_contains, starts_with, ends_with), got %s", tok.Type)
}

func (p *parser) parseLiteral() (any, error) {
	tok := p.advance()
	switch tok.Type {
	case TokenString:
		return tok.Literal, nil
	case TokenInt:
		n, err := strconv.ParseInt(tok.Literal, 10, 64)
		if err != nil {
			return nil, errorf(tok, "invalid integer '%s'", tok.Literal)
		}
		return n, nil
	case TokenFloat:
		f, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			return nil, errorf(tok, "invalid number '%s'", tok.Literal)
		}
		return f, nil
	case TokenBool:
		return strings.EqualFold(tok.Literal, "true"), nil
	case TokenNull:
		return nil, nil
	case TokenIdent:
		// Bare words read as strings: stage = customer.
		return tok.Literal, nil
	}
	return nil, errorf(tok, "expected literal value, got %s", tok.Type)
}
