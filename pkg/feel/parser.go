package feel

import (
	"fmt"
	"strconv"
)

// Node is a parsed FEEL expression. The tree is immutable; evaluation is
// pure over its input scope.
type Node interface{ feelNode() }

type (
	numberNode struct{ value float64 }
	stringNode struct{ value string }
	boolNode   struct{ value bool }
	nullNode   struct{}
	identNode  struct{ name string }

	listNode    struct{ elems []Node }
	contextNode struct {
		keys   []string
		values []Node
	}
	rangeNode struct {
		start, end         Node
		startIncl, endIncl bool
	}

	unaryNode struct {
		op      string
		operand Node
	}
	binaryNode struct {
		op          string
		left, right Node
	}
	pathNode struct {
		base Node
		key  string
	}
	callNode struct {
		name string
		args []Node
	}
	ifNode struct {
		cond, then, els Node
	}
	forNode struct {
		binding  string
		iterable Node
		body     Node
	}
	quantNode struct {
		every     bool
		binding   string
		iterable  Node
		condition Node
	}
	betweenNode struct {
		value, lo, hi Node
	}
	inNode struct {
		value, target Node
	}
	instanceOfNode struct {
		value    Node
		typeName string
	}
)

func (numberNode) feelNode()     {}
func (stringNode) feelNode()     {}
func (boolNode) feelNode()       {}
func (nullNode) feelNode()       {}
func (identNode) feelNode()      {}
func (listNode) feelNode()       {}
func (contextNode) feelNode()    {}
func (rangeNode) feelNode()      {}
func (unaryNode) feelNode()      {}
func (binaryNode) feelNode()     {}
func (pathNode) feelNode()       {}
func (callNode) feelNode()       {}
func (ifNode) feelNode()         {}
func (forNode) feelNode()        {}
func (quantNode) feelNode()      {}
func (betweenNode) feelNode()    {}
func (inNode) feelNode()         {}
func (instanceOfNode) feelNode() {}

type parser struct {
	input  string
	tokens []token
	pos    int
}

// Parse parses a FEEL expression into its tree.
func Parse(input string) (Node, error) {
	tokens, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{input: input, tokens: tokens}
	node, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokenEOF {
		return nil, p.errorf("unexpected trailing input %q", p.peek().text)
	}
	return node, nil
}

func (p *parser) peek() token { return p.tokens[p.pos] }
func (p *parser) next() token { t := p.tokens[p.pos]; p.pos++; return t }
func (p *parser) errorf(format string, args ...any) error {
	return &ParseError{Input: p.input, Pos: p.peek().pos, Reason: fmt.Sprintf(format, args...)}
}

func (p *parser) accept(kind tokenKind, text string) bool {
	if p.peek().kind == kind && p.peek().text == text {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(kind tokenKind, text string) error {
	if !p.accept(kind, text) {
		return p.errorf("expected %q, found %q", text, p.peek().text)
	}
	return nil
}

func (p *parser) parseExpr() (Node, error) { return p.parseOr() }

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.accept(tokenKeyword, "or") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: "or", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.accept(tokenKeyword, "and") {
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: "and", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseComparison() (Node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	switch {
	case p.accept(tokenKeyword, "between"):
		lo, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokenKeyword, "and"); err != nil {
			return nil, err
		}
		hi, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return betweenNode{value: left, lo: lo, hi: hi}, nil
	case p.accept(tokenKeyword, "in"):
		target, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return inNode{value: left, target: target}, nil
	case p.accept(tokenKeyword, "instance"):
		if err := p.expect(tokenKeyword, "of"); err != nil {
			return nil, err
		}
		name := p.peek().text
		if p.peek().kind != tokenIdent && p.peek().text != "null" {
			return nil, p.errorf("expected type name, found %q", p.peek().text)
		}
		p.next()
		return instanceOfNode{value: left, typeName: name}, nil
	}
	for _, op := range []string{"<=", ">=", "!=", "<", ">", "="} {
		if p.accept(tokenOp, op) {
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			return binaryNode{op: op, left: left, right: right}, nil
		}
	}
	return left, nil
}

func (p *parser) parseAdditive() (Node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.accept(tokenOp, "+"):
			right, err := p.parseMultiplicative()
			if err != nil {
				return nil, err
			}
			left = binaryNode{op: "+", left: left, right: right}
		case p.accept(tokenOp, "-"):
			right, err := p.parseMultiplicative()
			if err != nil {
				return nil, err
			}
			left = binaryNode{op: "-", left: left, right: right}
		default:
			return left, nil
		}
	}
}

func (p *parser) parseMultiplicative() (Node, error) {
	left, err := p.parseExponent()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch {
		case p.accept(tokenOp, "*"):
			op = "*"
		case p.accept(tokenOp, "/"):
			op = "/"
		case p.accept(tokenOp, "%"):
			op = "%"
		default:
			return left, nil
		}
		right, err := p.parseExponent()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
}

// parseExponent handles **, right-associative.
func (p *parser) parseExponent() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if p.accept(tokenOp, "**") {
		right, err := p.parseExponent()
		if err != nil {
			return nil, err
		}
		return binaryNode{op: "**", left: left, right: right}, nil
	}
	return left, nil
}

func (p *parser) parseUnary() (Node, error) {
	if p.accept(tokenOp, "-") {
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unaryNode{op: "-", operand: operand}, nil
	}
	if p.peek().kind == tokenKeyword && p.peek().text == "not" {
		// not(x) is the built-in call form; bare "not expr" is negation.
		p.next()
		if p.accept(tokenPunct, "(") {
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expect(tokenPunct, ")"); err != nil {
				return nil, err
			}
			return unaryNode{op: "not", operand: arg}, nil
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unaryNode{op: "not", operand: operand}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (Node, error) {
	node, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		if p.accept(tokenPunct, ".") {
			key := p.peek()
			if key.kind != tokenIdent {
				return nil, p.errorf("expected property name after '.'")
			}
			p.next()
			node = pathNode{base: node, key: key.text}
			continue
		}
		if ident, ok := node.(identNode); ok && p.accept(tokenPunct, "(") {
			var args []Node
			if !p.accept(tokenPunct, ")") {
				for {
					arg, err := p.parseExpr()
					if err != nil {
						return nil, err
					}
					args = append(args, arg)
					if p.accept(tokenPunct, ")") {
						break
					}
					if err := p.expect(tokenPunct, ","); err != nil {
						return nil, err
					}
				}
			}
			node = callNode{name: ident.name, args: args}
			continue
		}
		return node, nil
	}
}

func (p *parser) parsePrimary() (Node, error) {
	t := p.peek()
	switch {
	case t.kind == tokenNumber:
		p.next()
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, p.errorf("malformed number %q", t.text)
		}
		return numberNode{value: f}, nil
	case t.kind == tokenString:
		p.next()
		return stringNode{value: t.text}, nil
	case t.kind == tokenKeyword && (t.text == "true" || t.text == "false"):
		p.next()
		return boolNode{value: t.text == "true"}, nil
	case t.kind == tokenKeyword && t.text == "null":
		p.next()
		return nullNode{}, nil
	case t.kind == tokenKeyword && t.text == "if":
		return p.parseIf()
	case t.kind == tokenKeyword && t.text == "for":
		return p.parseFor()
	case t.kind == tokenKeyword && (t.text == "some" || t.text == "every"):
		return p.parseQuantified()
	case t.kind == tokenIdent:
		p.next()
		return identNode{name: t.text}, nil
	case t.kind == tokenPunct && t.text == "(":
		p.next()
		// Either a parenthesized expression or an open-start range (a..b).
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.accept(tokenOp, "..") {
			end, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			incl := false
			if p.accept(tokenPunct, ")") {
				incl = false
			} else if p.accept(tokenPunct, "]") {
				incl = true
			} else {
				return nil, p.errorf("unterminated range")
			}
			return rangeNode{start: inner, end: end, startIncl: false, endIncl: incl}, nil
		}
		if err := p.expect(tokenPunct, ")"); err != nil {
			return nil, err
		}
		return inner, nil
	case t.kind == tokenPunct && t.text == "[":
		return p.parseBracket()
	case t.kind == tokenPunct && t.text == "]":
		// ]a..b[ or ]a..b] half-open range start.
		p.next()
		start, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokenOp, ".."); err != nil {
			return nil, err
		}
		end, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		endIncl := false
		if p.accept(tokenPunct, "]") {
			endIncl = true
		} else if p.accept(tokenPunct, "[") {
			endIncl = false
		} else {
			return nil, p.errorf("unterminated range")
		}
		return rangeNode{start: start, end: end, startIncl: false, endIncl: endIncl}, nil
	case t.kind == tokenPunct && t.text == "{":
		return p.parseContext()
	default:
		return nil, p.errorf("unexpected token %q", t.text)
	}
}

// parseBracket disambiguates list literals from closed-start ranges.
func (p *parser) parseBracket() (Node, error) {
	if err := p.expect(tokenPunct, "["); err != nil {
		return nil, err
	}
	if p.accept(tokenPunct, "]") {
		return listNode{}, nil
	}
	first, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.accept(tokenOp, "..") {
		end, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		endIncl := false
		if p.accept(tokenPunct, "]") {
			endIncl = true
		} else if p.accept(tokenPunct, "[") {
			endIncl = false
		} else {
			return nil, p.errorf("unterminated range")
		}
		return rangeNode{start: first, end: end, startIncl: true, endIncl: endIncl}, nil
	}
	elems := []Node{first}
	for p.accept(tokenPunct, ",") {
		elem, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		elems = append(elems, elem)
	}
	if err := p.expect(tokenPunct, "]"); err != nil {
		return nil, err
	}
	return listNode{elems: elems}, nil
}

func (p *parser) parseContext() (Node, error) {
	if err := p.expect(tokenPunct, "{"); err != nil {
		return nil, err
	}
	node := contextNode{}
	if p.accept(tokenPunct, "}") {
		return node, nil
	}
	for {
		key := p.peek()
		if key.kind != tokenIdent && key.kind != tokenString {
			return nil, p.errorf("expected context key, found %q", key.text)
		}
		p.next()
		if err := p.expect(tokenPunct, ":"); err != nil {
			return nil, err
		}
		value, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		node.keys = append(node.keys, key.text)
		node.values = append(node.values, value)
		if p.accept(tokenPunct, "}") {
			return node, nil
		}
		if err := p.expect(tokenPunct, ","); err != nil {
			return nil, err
		}
	}
}

func (p *parser) parseIf() (Node, error) {
	if err := p.expect(tokenKeyword, "if"); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expect(tokenKeyword, "then"); err != nil {
		return nil, err
	}
	then, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expect(tokenKeyword, "else"); err != nil {
		return nil, err
	}
	els, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return ifNode{cond: cond, then: then, els: els}, nil
}

func (p *parser) parseFor() (Node, error) {
	if err := p.expect(tokenKeyword, "for"); err != nil {
		return nil, err
	}
	binding := p.peek()
	if binding.kind != tokenIdent {
		return nil, p.errorf("expected loop variable")
	}
	p.next()
	if err := p.expect(tokenKeyword, "in"); err != nil {
		return nil, err
	}
	iterable, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expect(tokenKeyword, "return"); err != nil {
		return nil, err
	}
	body, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return forNode{binding: binding.text, iterable: iterable, body: body}, nil
}

func (p *parser) parseQuantified() (Node, error) {
	every := p.peek().text == "every"
	p.next()
	binding := p.peek()
	if binding.kind != tokenIdent {
		return nil, p.errorf("expected quantifier variable")
	}
	p.next()
	if err := p.expect(tokenKeyword, "in"); err != nil {
		return nil, err
	}
	iterable, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expect(tokenKeyword, "satisfies"); err != nil {
		return nil, err
	}
	condition, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return quantNode{every: every, binding: binding.text, iterable: iterable, condition: condition}, nil
}
