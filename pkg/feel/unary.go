package feel

// UnaryTest is one parsed input-entry alternative. An input entry like
// "< 10, > 20" parses into two tests; matching any of them satisfies
// the entry.
type UnaryTest struct {
	// Any matches every value ("-" or empty entry).
	Any bool
	// Op is a comparison prefix ("<", "<=", ">", ">=") when set.
	Op string
	// Expr is the operand for Op, the range literal, or the literal to
	// compare for equality.
	Expr Node
}

// ParseUnaryTests parses a decision table input entry into its
// alternatives.
func ParseUnaryTests(input string) ([]UnaryTest, error) {
	trimmed := trimSpace(input)
	if trimmed == "" || trimmed == "-" {
		return []UnaryTest{{Any: true}}, nil
	}

	tokens, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{input: input, tokens: tokens}

	var tests []UnaryTest
	for {
		test, err := p.parseUnaryTest()
		if err != nil {
			return nil, err
		}
		tests = append(tests, test)
		if p.accept(tokenPunct, ",") {
			continue
		}
		if p.peek().kind != tokenEOF {
			return nil, p.errorf("unexpected token %q in unary test", p.peek().text)
		}
		return tests, nil
	}
}

func (p *parser) parseUnaryTest() (UnaryTest, error) {
	for _, op := range []string{"<=", ">=", "<", ">"} {
		if p.accept(tokenOp, op) {
			// Comma separates alternatives, so the operand parses at
			// additive precedence rather than full expression.
			expr, err := p.parseAdditive()
			if err != nil {
				return UnaryTest{}, err
			}
			return UnaryTest{Op: op, Expr: expr}, nil
		}
	}

	expr, err := p.parseAdditive()
	if err != nil {
		return UnaryTest{}, err
	}
	return UnaryTest{Expr: expr}, nil
}

// MatchUnaryTests reports whether value satisfies any alternative of a
// parsed input entry. scope resolves identifiers referenced by test
// operands.
func MatchUnaryTests(value any, tests []UnaryTest, scope map[string]any) (bool, error) {
	for _, test := range tests {
		ok, err := matchOne(value, test, scope)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// MatchEntry parses and matches an input entry in one call.
func MatchEntry(value any, entry string, scope map[string]any) (bool, error) {
	tests, err := ParseUnaryTests(entry)
	if err != nil {
		return false, err
	}
	return MatchUnaryTests(value, tests, scope)
}

func matchOne(value any, test UnaryTest, scope map[string]any) (bool, error) {
	if test.Any {
		return true, nil
	}
	operand, err := evalNode(test.Expr, scope)
	if err != nil {
		return false, err
	}
	if test.Op != "" {
		c, ok := compareValues(value, operand)
		if !ok {
			return false, nil
		}
		switch test.Op {
		case "<":
			return c < 0, nil
		case "<=":
			return c <= 0, nil
		case ">":
			return c > 0, nil
		default:
			return c >= 0, nil
		}
	}
	if r, ok := operand.(Range); ok {
		return r.Contains(value), nil
	}
	return looseEqual(value, operand), nil
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t' || s[start] == '\n' || s[start] == '\r') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t' || s[end-1] == '\n' || s[end-1] == '\r') {
		end--
	}
	return s[start:end]
}
