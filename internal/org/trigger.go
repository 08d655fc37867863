package org

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// The PACE trigger DSL: freeform strings like
//
//	consecutive_tool_failures >= 5 OR turns_without_progress > max * 1.5
//
// compiled by a tokenizer and recursive-descent parser into a small
// expression AST evaluated against the turn's metric set.

// Metrics is the known metric set trigger expressions evaluate against.
type Metrics struct {
	ConsecutiveToolFailures int
	TotalToolFailures       int
	TurnsWithoutProgress    int
	ContextFill             float64
	// MaxTurns binds the bare identifier "max" (and "max_turns"): the
	// role's doctrine.max_turns_without_progress.
	MaxTurns int
	// UnrecoverableError binds the bare flag identifier of the same name.
	UnrecoverableError bool
}

func (m Metrics) lookup(name string) (float64, bool) {
	switch name {
	case "consecutive_tool_failures":
		return float64(m.ConsecutiveToolFailures), true
	case "total_tool_failures":
		return float64(m.TotalToolFailures), true
	case "turns_without_progress":
		return float64(m.TurnsWithoutProgress), true
	case "context_fill":
		return m.ContextFill, true
	case "max", "max_turns":
		return float64(m.MaxTurns), true
	}
	return 0, false
}

func (m Metrics) lookupFlag(name string) (bool, bool) {
	if name == "unrecoverable_error" {
		return m.UnrecoverableError, true
	}
	return false, false
}

// TriggerExpr is a compiled trigger expression.
type TriggerExpr interface {
	Eval(m Metrics) bool
}

type orExpr struct {
	operands []TriggerExpr
}

func (e *orExpr) Eval(m Metrics) bool {
	for _, operand := range e.operands {
		if operand.Eval(m) {
			return true
		}
	}
	return false
}

type cmpExpr struct {
	left  valueExpr
	op    string
	right valueExpr
}

func (e *cmpExpr) Eval(m Metrics) bool {
	left, ok := e.left.eval(m)
	if !ok {
		return false
	}
	right, ok := e.right.eval(m)
	if !ok {
		return false
	}
	switch e.op {
	case ">":
		return left > right
	case ">=":
		return left >= right
	case "<":
		return left < right
	case "<=":
		return left <= right
	case "==":
		return left == right
	}
	return false
}

// flagExpr is a bare identifier used as a boolean, e.g. unrecoverable_error.
type flagExpr struct {
	name string
}

func (e *flagExpr) Eval(m Metrics) bool {
	value, ok := m.lookupFlag(e.name)
	return ok && value
}

// valueExpr is a numeric operand: a literal, a metric, or a product of them.
type valueExpr struct {
	factors []valueFactor
}

type valueFactor struct {
	literal float64
	metric  string // non-empty when the factor is a metric reference
}

func (v valueExpr) eval(m Metrics) (float64, bool) {
	result := 1.0
	for _, factor := range v.factors {
		if factor.metric != "" {
			value, ok := m.lookup(factor.metric)
			if !ok {
				return 0, false
			}
			result *= value
			continue
		}
		result *= factor.literal
	}
	return result, true
}

// References reports whether the expression mentions the given identifier
// anywhere. The emergency rule uses this to detect unrecoverable_error
// triggers.
func References(expr string, ident string) bool {
	tokens, err := tokenize(expr)
	if err != nil {
		return false
	}
	for _, token := range tokens {
		if token.kind == tokenIdent && token.text == ident {
			return true
		}
	}
	return false
}

// ParseTrigger compiles a trigger expression. An empty expression parses to a
// never-firing trigger.
func ParseTrigger(expr string) (TriggerExpr, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return &orExpr{}, nil
	}
	tokens, err := tokenize(expr)
	if err != nil {
		return nil, err
	}
	parser := &triggerParser{tokens: tokens}
	parsed, err := parser.parseOr()
	if err != nil {
		return nil, err
	}
	if !parser.atEnd() {
		return nil, fmt.Errorf("trigger %q: unexpected token %q", expr, parser.peek().text)
	}
	return parsed, nil
}

// --- tokenizer ---

type tokenKind int

const (
	tokenIdent tokenKind = iota
	tokenNumber
	tokenOp   // comparison operators
	tokenStar // multiplication
	tokenOr
)

type token struct {
	kind tokenKind
	text string
}

func tokenize(expr string) ([]token, error) {
	var tokens []token
	runes := []rune(expr)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '*':
			tokens = append(tokens, token{kind: tokenStar, text: "*"})
			i++
		case r == '>' || r == '<' || r == '=':
			op := string(r)
			if i+1 < len(runes) && runes[i+1] == '=' {
				op += "="
				i++
			}
			if op == "=" {
				return nil, fmt.Errorf("trigger: single '=' at offset %d (use ==)", i)
			}
			tokens = append(tokens, token{kind: tokenOp, text: op})
			i++
		case unicode.IsDigit(r) || r == '.':
			start := i
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
				i++
			}
			tokens = append(tokens, token{kind: tokenNumber, text: string(runes[start:i])})
		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_') {
				i++
			}
			word := string(runes[start:i])
			if strings.EqualFold(word, "or") {
				tokens = append(tokens, token{kind: tokenOr, text: "OR"})
			} else {
				tokens = append(tokens, token{kind: tokenIdent, text: strings.ToLower(word)})
			}
		default:
			return nil, fmt.Errorf("trigger: unexpected character %q at offset %d", r, i)
		}
	}
	return tokens, nil
}

// --- parser ---

type triggerParser struct {
	tokens []token
	pos    int
}

func (p *triggerParser) atEnd() bool {
	return p.pos >= len(p.tokens)
}

func (p *triggerParser) peek() token {
	if p.atEnd() {
		return token{}
	}
	return p.tokens[p.pos]
}

func (p *triggerParser) next() token {
	t := p.peek()
	p.pos++
	return t
}

// parseOr := comparison (OR comparison)*
func (p *triggerParser) parseOr() (TriggerExpr, error) {
	first, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	operands := []TriggerExpr{first}
	for !p.atEnd() && p.peek().kind == tokenOr {
		p.next()
		operand, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		operands = append(operands, operand)
	}
	if len(operands) == 1 {
		return operands[0], nil
	}
	return &orExpr{operands: operands}, nil
}

// parseComparison := value op value | IDENT
func (p *triggerParser) parseComparison() (TriggerExpr, error) {
	left, err := p.parseValue()
	if err != nil {
		return nil, err
	}

	if p.atEnd() || p.peek().kind != tokenOp {
		// A bare identifier is a boolean flag.
		if len(left.factors) == 1 && left.factors[0].metric != "" {
			return &flagExpr{name: left.factors[0].metric}, nil
		}
		return nil, fmt.Errorf("trigger: expected comparison operator")
	}

	op := p.next().text
	right, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	return &cmpExpr{left: left, op: op, right: right}, nil
}

// parseValue := factor ('*' factor)*
func (p *triggerParser) parseValue() (valueExpr, error) {
	var value valueExpr
	factor, err := p.parseFactor()
	if err != nil {
		return value, err
	}
	value.factors = append(value.factors, factor)
	for !p.atEnd() && p.peek().kind == tokenStar {
		p.next()
		factor, err := p.parseFactor()
		if err != nil {
			return value, err
		}
		value.factors = append(value.factors, factor)
	}
	return value, nil
}

func (p *triggerParser) parseFactor() (valueFactor, error) {
	switch t := p.next(); t.kind {
	case tokenNumber:
		literal, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return valueFactor{}, fmt.Errorf("trigger: bad number %q", t.text)
		}
		return valueFactor{literal: literal}, nil
	case tokenIdent:
		return valueFactor{metric: t.text}, nil
	default:
		return valueFactor{}, fmt.Errorf("trigger: expected number or metric, got %q", t.text)
	}
}
