package workflow

import (
	"fmt"
	"strconv"
	"strings"
)

// Condition is a compiled edge predicate over session state.
//
// Conditions use a small, closed expression grammar that is interpreted
// directly; there is no function call, attribute access, or host-language
// escape of any kind. The grammar:
//
//	condition  := or-expr
//	or-expr    := and-expr { ("or" | "||") and-expr }
//	and-expr   := unary { ("and" | "&&") unary }
//	unary      := ("not" | "!") unary | primary
//	primary    := "(" or-expr ")" | comparison
//	comparison := operand [ ("==" | "!=" | "<" | "<=" | ">" | ">=") operand ]
//	operand    := 'string' | "string" | number | true | false | identifier
//
// Identifiers name session state keys; a missing key resolves to the empty
// string, so `response != ''` reads naturally as "a response exists".
// Comparisons are numeric when both sides parse as numbers and lexicographic
// otherwise. A bare operand is truthy when it is non-empty and is neither
// "false" nor "0".
type Condition struct {
	src  string
	root condNode
}

// ParseCondition compiles a condition expression. Parsing is the only place
// errors can surface; evaluation is total.
func ParseCondition(src string) (*Condition, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("condition is empty")
	}
	tokens, err := lexCondition(src)
	if err != nil {
		return nil, err
	}
	p := &condParser{tokens: tokens}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokenEOF {
		return nil, fmt.Errorf("unexpected %q after expression", tok.text)
	}
	return &Condition{src: src, root: root}, nil
}

// Eval evaluates the condition against a session state snapshot.
func (c *Condition) Eval(state map[string]string) bool {
	return c.root.eval(state)
}

func (c *Condition) String() string {
	return c.src
}

// =============================================================================
// Lexer
// =============================================================================

type tokenKind int

const (
	tokenIdent tokenKind = iota
	tokenString
	tokenNumber
	tokenCompare
	tokenAnd
	tokenOr
	tokenNot
	tokenLParen
	tokenRParen
	tokenEOF
)

type token struct {
	kind tokenKind
	text string
}

func lexCondition(src string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(src) {
		ch := src[i]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			i++
		case ch == '(':
			tokens = append(tokens, token{tokenLParen, "("})
			i++
		case ch == ')':
			tokens = append(tokens, token{tokenRParen, ")"})
			i++
		case ch == '=':
			if i+1 < len(src) && src[i+1] == '=' {
				tokens = append(tokens, token{tokenCompare, "=="})
				i += 2
			} else {
				return nil, fmt.Errorf("unexpected %q at position %d (did you mean ==?)", "=", i)
			}
		case ch == '!':
			if i+1 < len(src) && src[i+1] == '=' {
				tokens = append(tokens, token{tokenCompare, "!="})
				i += 2
			} else {
				tokens = append(tokens, token{tokenNot, "!"})
				i++
			}
		case ch == '<' || ch == '>':
			op := string(ch)
			i++
			if i < len(src) && src[i] == '=' {
				op += "="
				i++
			}
			tokens = append(tokens, token{tokenCompare, op})
		case ch == '&':
			if i+1 < len(src) && src[i+1] == '&' {
				tokens = append(tokens, token{tokenAnd, "&&"})
				i += 2
			} else {
				return nil, fmt.Errorf("unexpected %q at position %d (did you mean &&?)", "&", i)
			}
		case ch == '|':
			if i+1 < len(src) && src[i+1] == '|' {
				tokens = append(tokens, token{tokenOr, "||"})
				i += 2
			} else {
				return nil, fmt.Errorf("unexpected %q at position %d (did you mean ||?)", "|", i)
			}
		case ch == '\'' || ch == '"':
			quote := ch
			j := i + 1
			for j < len(src) && src[j] != quote {
				j++
			}
			if j >= len(src) {
				return nil, fmt.Errorf("unterminated string starting at position %d", i)
			}
			tokens = append(tokens, token{tokenString, src[i+1 : j]})
			i = j + 1
		case isDigit(ch) || (ch == '-' && i+1 < len(src) && isDigit(src[i+1])):
			j := i + 1
			sawDot := false
			for j < len(src) && (isDigit(src[j]) || (src[j] == '.' && !sawDot)) {
				if src[j] == '.' {
					sawDot = true
				}
				j++
			}
			tokens = append(tokens, token{tokenNumber, src[i:j]})
			i = j
		case isIdentStart(ch):
			j := i + 1
			for j < len(src) && isIdentPart(src[j]) {
				j++
			}
			word := src[i:j]
			switch strings.ToLower(word) {
			case "and":
				tokens = append(tokens, token{tokenAnd, word})
			case "or":
				tokens = append(tokens, token{tokenOr, word})
			case "not":
				tokens = append(tokens, token{tokenNot, word})
			case "true":
				tokens = append(tokens, token{tokenString, "true"})
			case "false":
				tokens = append(tokens, token{tokenString, "false"})
			default:
				tokens = append(tokens, token{tokenIdent, word})
			}
			i = j
		default:
			return nil, fmt.Errorf("unexpected character %q at position %d", string(ch), i)
		}
	}
	tokens = append(tokens, token{tokenEOF, ""})
	return tokens, nil
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}

// =============================================================================
// Parser
// =============================================================================

type condParser struct {
	tokens []token
	pos    int
}

func (p *condParser) peek() token {
	return p.tokens[p.pos]
}

func (p *condParser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokenEOF {
		p.pos++
	}
	return tok
}

func (p *condParser) parseOr() (condNode, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokenOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &orNode{left: left, right: right}
	}
	return left, nil
}

func (p *condParser) parseAnd() (condNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokenAnd {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &andNode{left: left, right: right}
	}
	return left, nil
}

func (p *condParser) parseUnary() (condNode, error) {
	if p.peek().kind == tokenNot {
		p.next()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &notNode{inner: inner}, nil
	}
	return p.parsePrimary()
}

func (p *condParser) parsePrimary() (condNode, error) {
	if p.peek().kind == tokenLParen {
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if tok := p.next(); tok.kind != tokenRParen {
			return nil, fmt.Errorf("expected ) but found %q", tok.text)
		}
		return inner, nil
	}
	return p.parseComparison()
}

func (p *condParser) parseComparison() (condNode, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokenCompare {
		return &truthyNode{val: left}, nil
	}
	op := p.next().text
	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return &cmpNode{op: op, left: left, right: right}, nil
}

func (p *condParser) parseOperand() (operand, error) {
	tok := p.next()
	switch tok.kind {
	case tokenIdent:
		return operand{key: tok.text}, nil
	case tokenString, tokenNumber:
		return operand{literal: true, text: tok.text}, nil
	case tokenEOF:
		return operand{}, fmt.Errorf("expression ends where a value was expected")
	default:
		return operand{}, fmt.Errorf("expected a value but found %q", tok.text)
	}
}

// =============================================================================
// Evaluation
// =============================================================================

type condNode interface {
	eval(state map[string]string) bool
}

type orNode struct {
	left, right condNode
}

func (n *orNode) eval(state map[string]string) bool {
	return n.left.eval(state) || n.right.eval(state)
}

type andNode struct {
	left, right condNode
}

func (n *andNode) eval(state map[string]string) bool {
	return n.left.eval(state) && n.right.eval(state)
}

type notNode struct {
	inner condNode
}

func (n *notNode) eval(state map[string]string) bool {
	return !n.inner.eval(state)
}

type cmpNode struct {
	op          string
	left, right operand
}

func (n *cmpNode) eval(state map[string]string) bool {
	l := n.left.resolve(state)
	r := n.right.resolve(state)
	if lf, lerr := strconv.ParseFloat(l, 64); lerr == nil {
		if rf, rerr := strconv.ParseFloat(r, 64); rerr == nil {
			return compareNumbers(n.op, lf, rf)
		}
	}
	return compareStrings(n.op, l, r)
}

func compareNumbers(op string, l, r float64) bool {
	switch op {
	case "==":
		return l == r
	case "!=":
		return l != r
	case "<":
		return l < r
	case "<=":
		return l <= r
	case ">":
		return l > r
	default:
		return l >= r
	}
}

func compareStrings(op string, l, r string) bool {
	switch op {
	case "==":
		return l == r
	case "!=":
		return l != r
	case "<":
		return l < r
	case "<=":
		return l <= r
	case ">":
		return l > r
	default:
		return l >= r
	}
}

type truthyNode struct {
	val operand
}

func (n *truthyNode) eval(state map[string]string) bool {
	v := n.val.resolve(state)
	return v != "" && v != "false" && v != "0"
}

// operand is a leaf value: either a literal or a session state key reference.
// Missing keys resolve to the empty string.
type operand struct {
	key     string
	text    string
	literal bool
}

func (o operand) resolve(state map[string]string) string {
	if o.literal {
		return o.text
	}
	return state[o.key]
}
