package interp

import (
	"fmt"
	"strconv"
	"strings"
)

// Condition grammar (side-effect free, no arithmetic, no calls):
//
//	expr    := atom ( ('&&' | '||') atom )*
//	atom    := '!'? primary
//	primary := '(' expr ')' | compare | varref
//	compare := varref OP ( varref | literal )
//	OP      := '==' | '!=' | '<' | '<=' | '>' | '>='
//	literal := NUMBER | STRING | 'true' | 'false'
//
// Variables are strings. Equality is textual; ordered comparisons require
// both sides to parse as numbers, otherwise they evaluate to false and a
// warning is recorded. Unknown variables evaluate to the empty string.

// EvalCondition parses and evaluates condition against env. The returned
// warnings describe soft evaluation issues (non-numeric ordered compare,
// unknown variable); a non-nil error means the condition does not parse.
func EvalCondition(condition string, env *Environment) (bool, []string, error) {
	node, err := parseCondition(condition)
	if err != nil {
		return false, nil, err
	}
	ev := &evaluator{env: env}
	result := node.eval(ev)
	return result, ev.warnings, nil
}

// CheckCondition reports whether condition conforms to the grammar. Used by
// the plan validator, which must not evaluate anything.
func CheckCondition(condition string) error {
	_, err := parseCondition(condition)
	return err
}

// --- tokens ---

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokNumber
	tokString
	tokBool
	tokOp     // == != < <= > >=
	tokAndOr  // && ||
	tokNot    // !
	tokLParen // (
	tokRParen // )
	tokEOF
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func lexCondition(s string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case c == '&' || c == '|':
			if i+1 >= len(s) || s[i+1] != c {
				return nil, fmt.Errorf("position %d: expected %q", i, string(c)+string(c))
			}
			toks = append(toks, token{tokAndOr, s[i : i+2], i})
			i += 2
		case c == '!':
			if i+1 < len(s) && s[i+1] == '=' {
				toks = append(toks, token{tokOp, "!=", i})
				i += 2
			} else {
				toks = append(toks, token{tokNot, "!", i})
				i++
			}
		case c == '=':
			if i+1 >= len(s) || s[i+1] != '=' {
				return nil, fmt.Errorf("position %d: single '=' is not an operator", i)
			}
			toks = append(toks, token{tokOp, "==", i})
			i += 2
		case c == '<' || c == '>':
			if i+1 < len(s) && s[i+1] == '=' {
				toks = append(toks, token{tokOp, s[i : i+2], i})
				i += 2
			} else {
				toks = append(toks, token{tokOp, string(c), i})
				i++
			}
		case c == '\'' || c == '"':
			end := strings.IndexByte(s[i+1:], c)
			if end < 0 {
				return nil, fmt.Errorf("position %d: unterminated string", i)
			}
			toks = append(toks, token{tokString, s[i+1 : i+1+end], i})
			i += end + 2
		case c >= '0' && c <= '9':
			j := i + 1
			for j < len(s) && (s[j] >= '0' && s[j] <= '9' || s[j] == '.') {
				j++
			}
			toks = append(toks, token{tokNumber, s[i:j], i})
			i = j
		case isIdentStart(c):
			j := i + 1
			for j < len(s) && isIdentPart(s[j]) {
				j++
			}
			word := s[i:j]
			if word == "true" || word == "false" {
				toks = append(toks, token{tokBool, word, i})
			} else {
				toks = append(toks, token{tokIdent, word, i})
			}
			i = j
		default:
			return nil, fmt.Errorf("position %d: unexpected character %q", i, string(c))
		}
	}
	toks = append(toks, token{tokEOF, "", len(s)})
	return toks, nil
}

// --- AST ---

type evaluator struct {
	env      *Environment
	warnings []string
}

func (ev *evaluator) warnf(format string, args ...interface{}) {
	ev.warnings = append(ev.warnings, fmt.Sprintf(format, args...))
}

func (ev *evaluator) value(name string) string {
	v, ok := ev.env.Lookup(name)
	if !ok {
		ev.warnf("variable %q is not bound, treated as empty", name)
	}
	return v
}

type condNode interface {
	eval(ev *evaluator) bool
}

type logicalNode struct {
	op       string // "&&" or "||"
	lhs, rhs condNode
}

func (n *logicalNode) eval(ev *evaluator) bool {
	left := n.lhs.eval(ev)
	// Short-circuit: the right side is not evaluated when the left decides.
	if n.op == "&&" {
		if !left {
			return false
		}
		return n.rhs.eval(ev)
	}
	if left {
		return true
	}
	return n.rhs.eval(ev)
}

type notNode struct {
	child condNode
}

func (n *notNode) eval(ev *evaluator) bool {
	return !n.child.eval(ev)
}

// varNode is a bare variable used as a boolean: true unless empty, "false"
// or "0" after trimming.
type varNode struct {
	name string
}

func (n *varNode) eval(ev *evaluator) bool {
	v := strings.ToLower(strings.TrimSpace(ev.value(n.name)))
	return v != "" && v != "false" && v != "0"
}

type operand struct {
	isVar bool
	name  string // when isVar
	text  string // literal text otherwise
}

func (o operand) resolve(ev *evaluator) string {
	if o.isVar {
		return ev.value(o.name)
	}
	return o.text
}

type compareNode struct {
	lhs operand
	op  string
	rhs operand
}

func (n *compareNode) eval(ev *evaluator) bool {
	left := n.lhs.resolve(ev)
	right := n.rhs.resolve(ev)

	switch n.op {
	case "==":
		return compareEqual(left, right)
	case "!=":
		return !compareEqual(left, right)
	}

	// Ordered comparison: both sides must be numbers.
	lf, lerr := strconv.ParseFloat(strings.TrimSpace(left), 64)
	rf, rerr := strconv.ParseFloat(strings.TrimSpace(right), 64)
	if lerr != nil || rerr != nil {
		ev.warnf("ordered comparison %q needs numeric operands, got %q and %q", n.op, left, right)
		return false
	}
	switch n.op {
	case "<":
		return lf < rf
	case "<=":
		return lf <= rf
	case ">":
		return lf > rf
	case ">=":
		return lf >= rf
	}
	return false
}

// compareEqual is textual equality with whitespace trimmed; boolean literal
// comparison is case-insensitive so planner output like "True" matches.
func compareEqual(left, right string) bool {
	lt := strings.TrimSpace(left)
	rt := strings.TrimSpace(right)
	if lt == rt {
		return true
	}
	ll, rl := strings.ToLower(lt), strings.ToLower(rt)
	if (rl == "true" || rl == "false") && ll == rl {
		return true
	}
	return false
}

// --- parser ---

type condParser struct {
	toks []token
	pos  int
}

func parseCondition(condition string) (condNode, error) {
	if strings.TrimSpace(condition) == "" {
		return nil, fmt.Errorf("empty condition")
	}
	toks, err := lexCondition(condition)
	if err != nil {
		return nil, err
	}
	p := &condParser{toks: toks}
	node, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("position %d: unexpected %q after expression", p.peek().pos, p.peek().text)
	}
	return node, nil
}

func (p *condParser) peek() token {
	return p.toks[p.pos]
}

func (p *condParser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *condParser) parseExpr() (condNode, error) {
	left, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAndOr {
		op := p.next().text
		right, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		left = &logicalNode{op: op, lhs: left, rhs: right}
	}
	return left, nil
}

func (p *condParser) parseAtom() (condNode, error) {
	if p.peek().kind == tokNot {
		p.next()
		child, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return &notNode{child: child}, nil
	}
	return p.parsePrimary()
}

func (p *condParser) parsePrimary() (condNode, error) {
	tok := p.peek()
	switch tok.kind {
	case tokLParen:
		p.next()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokRParen {
			return nil, fmt.Errorf("position %d: expected ')'", p.peek().pos)
		}
		p.next()
		return inner, nil
	case tokIdent:
		p.next()
		if p.peek().kind != tokOp {
			return &varNode{name: tok.text}, nil
		}
		op := p.next().text
		rhs, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return &compareNode{lhs: operand{isVar: true, name: tok.text}, op: op, rhs: rhs}, nil
	default:
		return nil, fmt.Errorf("position %d: expected variable or '(', got %q", tok.pos, tok.text)
	}
}

func (p *condParser) parseOperand() (operand, error) {
	tok := p.next()
	switch tok.kind {
	case tokIdent:
		return operand{isVar: true, name: tok.text}, nil
	case tokNumber, tokString, tokBool:
		return operand{text: tok.text}, nil
	default:
		return operand{}, fmt.Errorf("position %d: expected variable or literal, got %q", tok.pos, tok.text)
	}
}
