// Package feel implements the entry-level FEEL subset used inside DMN
// decision tables: unary tests for input entries and a pure expression
// evaluator for literal expressions and output entries.
package feel

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenNumber
	tokenString
	tokenIdent
	tokenKeyword
	tokenOp
	tokenPunct
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

var keywords = map[string]bool{
	"if": true, "then": true, "else": true,
	"for": true, "return": true, "in": true,
	"some": true, "every": true, "satisfies": true,
	"and": true, "or": true, "not": true,
	"between": true, "instance": true, "of": true,
	"true": true, "false": true, "null": true,
}

// ParseError reports a structural defect in FEEL input.
type ParseError struct {
	Input  string
	Pos    int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("feel: parse error at %d in %q: %s", e.Pos, e.Input, e.Reason)
}

func lex(input string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(input) {
		c := rune(input[i])
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '"':
			j := i + 1
			var sb strings.Builder
			for j < len(input) && input[j] != '"' {
				if input[j] == '\\' && j+1 < len(input) {
					j++
				}
				sb.WriteByte(input[j])
				j++
			}
			if j >= len(input) {
				return nil, &ParseError{Input: input, Pos: i, Reason: "unterminated string"}
			}
			tokens = append(tokens, token{tokenString, sb.String(), i})
			i = j + 1
		case unicode.IsDigit(c):
			j := i
			for j < len(input) && (unicode.IsDigit(rune(input[j])) || input[j] == '.') {
				// ".." is the range separator, not a decimal point.
				if input[j] == '.' && j+1 < len(input) && input[j+1] == '.' {
					break
				}
				j++
			}
			tokens = append(tokens, token{tokenNumber, input[i:j], i})
			i = j
		case unicode.IsLetter(c) || c == '_':
			j := i
			for j < len(input) && (unicode.IsLetter(rune(input[j])) || unicode.IsDigit(rune(input[j])) || input[j] == '_') {
				j++
			}
			word := input[i:j]
			kind := tokenIdent
			if keywords[word] {
				kind = tokenKeyword
			}
			tokens = append(tokens, token{kind, word, i})
			i = j
		default:
			matched := false
			for _, op := range []string{"**", "..", "<=", ">=", "!="} {
				if strings.HasPrefix(input[i:], op) {
					tokens = append(tokens, token{tokenOp, op, i})
					i += len(op)
					matched = true
					break
				}
			}
			if matched {
				continue
			}
			switch c {
			case '+', '-', '*', '/', '%', '<', '>', '=':
				tokens = append(tokens, token{tokenOp, string(c), i})
				i++
			case '(', ')', '[', ']', '{', '}', ',', ':', '.':
				tokens = append(tokens, token{tokenPunct, string(c), i})
				i++
			default:
				return nil, &ParseError{Input: input, Pos: i, Reason: fmt.Sprintf("unexpected character %q", c)}
			}
		}
	}
	tokens = append(tokens, token{tokenEOF, "", len(input)})
	return tokens, nil
}
