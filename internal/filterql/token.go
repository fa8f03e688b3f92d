// Package filterql parses grid filter expressions into record service
// filters.
//
//	stage = "customer" and (age > 40 or name starts_with "al")
//
// Comparisons are field, operator, literal. Operators are =, !=, >, < or one
// of the service's named operators (is, is_not, contains, not_contains,
// starts_with, ends_with). "and" binds tighter than "or"; parentheses group.
package filterql

import "strings"

// TokenType identifies the kind of lexical token.
type TokenType int

const (
	TokenEOF    TokenType = iota
	TokenIdent            // field name
	TokenString           // "quoted string"
	TokenInt              // 123
	TokenFloat            // 1.23
	TokenBool             // true / false
	TokenNull             // null

	TokenEQ  // =
	TokenNEQ // !=
	TokenGT  // >
	TokenLT  // <
	TokenOp  // named operator

	TokenLParen // (
	TokenRParen // )

	TokenAnd
	TokenOr
)

// String returns a human-readable name for the token type.
func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "end of input"
	case TokenIdent:
		return "identifier"
	case TokenString:
		return "string"
	case TokenInt:
		return "integer"
	case TokenFloat:
		return "float"
	case TokenBool:
		return "boolean"
	case TokenNull:
		return "null"
	case TokenEQ:
		return "="
	case TokenNEQ:
		return "!="
	case TokenGT:
		return ">"
	case TokenLT:
		return "<"
	case TokenOp:
		return "operator"
	case TokenLParen:
		return "("
	case TokenRParen:
		return ")"
	case TokenAnd:
		return "and"
	case TokenOr:
		return "or"
	default:
		return "unknown"
	}
}

// Token is a single lexical token.
type Token struct {
	Type    TokenType
	Literal string // raw text, unquoted for strings
	Pos     int    // byte offset in source
	Col     int    // 1-based rune column
}

var keywords = map[string]TokenType{
	"and":          TokenAnd,
	"or":           TokenOr,
	"true":         TokenBool,
	"false":        TokenBool,
	"null":         TokenNull,
	"is":           TokenOp,
	"is_not":       TokenOp,
	"contains":     TokenOp,
	"not_contains": TokenOp,
	"starts_with":  TokenOp,
	"ends_with":    TokenOp,
}

// LookupKeyword returns the token type for an identifier. Lookup is
// case-insensitive.
func LookupKeyword(ident string) TokenType {
	if tok, ok := keywords[strings.ToLower(ident)]; ok {
		return tok
	}
	return TokenIdent
}
