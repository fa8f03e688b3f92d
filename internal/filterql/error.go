package filterql

import "fmt"

// ParseError is a positioned error with an optional suggestion.
type ParseError struct {
	Message    string
	Col        int
	Pos        int
	Suggestion string // "did you mean 'name'?" or ""
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("col %d: %s", e.Col, e.Message)
	if e.Suggestion != "" {
		msg += " (" + e.Suggestion + ")"
	}
	return msg
}

func errorf(tok Token, format string, args ...any) *ParseError {
	return &ParseError{
		Message: fmt.Sprintf(format, args...),
		Col:     tok.Col,
		Pos:     tok.Pos,
	}
}
